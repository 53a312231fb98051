package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
//                          Prometheus 监控指标
// ============================================================================

// metrics 编排器指标
//
// 同一 Registerer 上重复创建时复用已注册的收集器。
type metrics struct {
	requests       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	coalesced      prometheus.Counter
	proveAttempts  *prometheus.CounterVec
	proveDuration  *prometheus.HistogramVec
	proverFaults   *prometheus.CounterVec
	sinkFailures   prometheus.Counter
	queueDepth     prometheus.Gauge
	busyWorkers    prometheus.Gauge
	activeRequests prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "requests_total",
			Help:      "Finished proof requests by terminal state and error kind",
		}, []string{"state", "kind"})),

		cacheLookups: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "cache_lookups_total",
			Help:      "Post-build cache lookups by tier",
		}, []string{"tier"})),

		coalesced: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "coalesced_total",
			Help:      "Requests attached as waiters to an in-flight job",
		})),

		proveAttempts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "prove_attempts_total",
			Help:      "Backend prove invocations by backend and outcome",
		}, []string{"backend", "result"})), // ok, retry, failed, verify_failed

		proveDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "prove_duration_seconds",
			Help:      "Duration of a single backend prove call",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms ~ 82s
		}, []string{"backend"})),

		proverFaults: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "prover_faults_total",
			Help:      "Proofs rejected by their own backend verifier after the retry budget",
		}, []string{"backend"})),

		sinkFailures: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "sink_failures_total",
			Help:      "Result sink deliveries that returned an error",
		})),

		queueDepth: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker",
		})),

		busyWorkers: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "busy_workers",
			Help:      "Workers currently proving",
		})),

		activeRequests: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkattest",
			Subsystem: "proofgen",
			Name:      "active_requests",
			Help:      "Admitted requests that have not reached a terminal state",
		})),
	}

	return m
}

// register 注册收集器，已存在同名收集器时返回已有实例
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
