// Package metrics 进程内存监控与 Prometheus 注册表
//
// MemoryDoctor 周期性采样进程内存与各模块上报的逻辑状态，导出为指标，
// 并在 RSS 超出证明工作池内存预算或短期增长过快时告警。
package metrics

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	metricsiface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/metrics"
)

// MemoryDoctorConfig MemoryDoctor 配置
type MemoryDoctorConfig struct {
	// SampleInterval 采样间隔
	SampleInterval time.Duration

	// WindowSize 保留最近 N 次样本用于趋势判定
	WindowSize int

	// RSSGrowthSoftLimitBytes 窗口内允许的最大 RSS 增长
	RSSGrowthSoftLimitBytes int64

	// BudgetBytes 证明工作池内存预算（Workers × MemoryPerWorkerMB），0 表示不检查
	BudgetBytes uint64

	// GoroutineWarnThreshold Goroutine 数量告警阈值
	GoroutineWarnThreshold int
}

// DefaultMemoryDoctorConfig 返回默认配置
func DefaultMemoryDoctorConfig() MemoryDoctorConfig {
	return MemoryDoctorConfig{
		SampleInterval:          15 * time.Second,
		WindowSize:              20,
		RSSGrowthSoftLimitBytes: 512 * 1024 * 1024, // 512MB
		GoroutineWarnThreshold:  5000,
	}
}

// HeapSample 内存采样数据
//
// ⚠️ 判断内存压力以 RSS 为准，HeapAlloc 仅作诊断参考。
type HeapSample struct {
	Time         time.Time                        `json:"time"`
	HeapAlloc    uint64                           `json:"heap_alloc"`
	HeapInuse    uint64                           `json:"heap_inuse"`
	Sys          uint64                           `json:"sys"`
	RSSBytes     uint64                           `json:"rss_bytes"`
	NumGC        uint32                           `json:"num_gc"`
	NumGoroutine int                              `json:"num_goroutine"`
	Modules      []metricsiface.ModuleMemoryStats `json:"modules"`
}

// Alert 采样触发的告警
type Alert struct {
	Reason string `json:"reason"`
	Value  int64  `json:"value"`
	Limit  int64  `json:"limit"`
}

type doctorMetrics struct {
	rss         prometheus.Gauge
	heap        prometheus.Gauge
	budget      prometheus.Gauge
	alerts      *prometheus.CounterVec
	objects     *prometheus.GaugeVec
	approxBytes *prometheus.GaugeVec
	cacheItems  *prometheus.GaugeVec
	queueLength *prometheus.GaugeVec
}

func newDoctorMetrics() *doctorMetrics {
	moduleGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zkattest",
			Subsystem: "memory",
			Name:      name,
			Help:      help,
		}, []string{"module"})
	}
	return &doctorMetrics{
		rss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkattest", Subsystem: "memory", Name: "rss_bytes",
			Help: "Resident set size of the process at the last sample.",
		}),
		heap: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkattest", Subsystem: "memory", Name: "heap_alloc_bytes",
			Help: "Go heap allocation at the last sample.",
		}),
		budget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkattest", Subsystem: "memory", Name: "budget_bytes",
			Help: "Configured memory budget of the prover worker pool.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkattest", Subsystem: "memory", Name: "alerts_total",
			Help: "Memory alerts raised by the sampler.",
		}, []string{"reason"}),
		objects:     moduleGauge("module_objects", "Objects reported by a module."),
		approxBytes: moduleGauge("module_approx_bytes", "Approximate bytes reported by a module."),
		cacheItems:  moduleGauge("module_cache_items", "Cache items reported by a module."),
		queueLength: moduleGauge("module_queue_length", "Queue length reported by a module."),
	}
}

func (m *doctorMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.rss, m.heap, m.budget, m.alerts,
		m.objects, m.approxBytes, m.cacheItems, m.queueLength,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MemoryDoctor 内存监控组件
type MemoryDoctor struct {
	cfg       MemoryDoctorConfig
	logger    *zap.Logger
	reporters []metricsiface.MemoryReporter
	metrics   *doctorMetrics

	mu      sync.RWMutex
	history []HeapSample

	// rss 可替换，便于测试
	rss func() uint64
}

// NewMemoryDoctor 创建 MemoryDoctor 并注册指标，reg 为 nil 时不导出指标
func NewMemoryDoctor(
	cfg MemoryDoctorConfig,
	logger *zap.Logger,
	reg prometheus.Registerer,
	reporters ...metricsiface.MemoryReporter,
) (*MemoryDoctor, error) {
	def := DefaultMemoryDoctorConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.RSSGrowthSoftLimitBytes <= 0 {
		cfg.RSSGrowthSoftLimitBytes = def.RSSGrowthSoftLimitBytes
	}
	if cfg.GoroutineWarnThreshold <= 0 {
		cfg.GoroutineWarnThreshold = def.GoroutineWarnThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := newDoctorMetrics()
	if reg != nil {
		if err := m.register(reg); err != nil {
			return nil, err
		}
	}
	m.budget.Set(float64(cfg.BudgetBytes))

	// 按名称排序，日志与指标输出顺序稳定
	sorted := append([]metricsiface.MemoryReporter(nil), reporters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ModuleName() < sorted[j].ModuleName() })

	return &MemoryDoctor{
		cfg:       cfg,
		logger:    logger,
		reporters: sorted,
		metrics:   m,
		history:   make([]HeapSample, 0, cfg.WindowSize),
		rss:       getRSSBytes,
	}, nil
}

// Start 按采样间隔循环采样，直到 ctx 取消
func (d *MemoryDoctor) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SampleInterval)
	defer ticker.Stop()

	d.logger.Info("MemoryDoctor 启动",
		zap.Duration("sample_interval", d.cfg.SampleInterval),
		zap.Uint64("budget_bytes", d.cfg.BudgetBytes))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("MemoryDoctor 停止")
			return
		case <-ticker.C:
			d.SampleOnce()
		}
	}
}

// SampleOnce 执行一次采样并返回触发的告警
func (d *MemoryDoctor) SampleOnce() []Alert {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	modules := make([]metricsiface.ModuleMemoryStats, 0, len(d.reporters))
	for _, r := range d.reporters {
		st := r.CollectMemoryStats()
		if st.Module == "" {
			st.Module = r.ModuleName()
		}
		modules = append(modules, st)
	}

	s := HeapSample{
		Time:         time.Now(),
		HeapAlloc:    ms.HeapAlloc,
		HeapInuse:    ms.HeapInuse,
		Sys:          ms.Sys,
		RSSBytes:     d.rss(),
		NumGC:        ms.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
		Modules:      modules,
	}

	d.mu.Lock()
	d.history = append(d.history, s)
	if len(d.history) > d.cfg.WindowSize {
		d.history = d.history[len(d.history)-d.cfg.WindowSize:]
	}
	alerts := d.detectLocked(s)
	d.mu.Unlock()

	d.export(s, alerts)

	d.logger.Debug("memory_sample",
		zap.Uint64("rss_mb", s.RSSBytes/1024/1024),
		zap.Uint64("heap_mb", s.HeapAlloc/1024/1024),
		zap.Uint32("gc", s.NumGC),
		zap.Int("goroutines", s.NumGoroutine),
		zap.Any("modules", s.Modules))

	for _, a := range alerts {
		d.logger.Warn("内存告警",
			zap.String("reason", a.Reason),
			zap.Int64("value", a.Value),
			zap.Int64("limit", a.Limit),
			zap.Any("modules", s.Modules))
	}
	return alerts
}

// detectLocked 检查预算、窗口内 RSS 增长和 Goroutine 数量
func (d *MemoryDoctor) detectLocked(s HeapSample) []Alert {
	var alerts []Alert

	if d.cfg.BudgetBytes > 0 && s.RSSBytes > d.cfg.BudgetBytes {
		alerts = append(alerts, Alert{
			Reason: "rss_over_budget",
			Value:  int64(s.RSSBytes),
			Limit:  int64(d.cfg.BudgetBytes),
		})
	}

	if len(d.history) >= 2 {
		growth := int64(s.RSSBytes) - int64(d.history[0].RSSBytes)
		if growth > d.cfg.RSSGrowthSoftLimitBytes {
			alerts = append(alerts, Alert{
				Reason: "rss_growth",
				Value:  growth,
				Limit:  d.cfg.RSSGrowthSoftLimitBytes,
			})
		}
	}

	if s.NumGoroutine >= d.cfg.GoroutineWarnThreshold {
		alerts = append(alerts, Alert{
			Reason: "goroutine_count",
			Value:  int64(s.NumGoroutine),
			Limit:  int64(d.cfg.GoroutineWarnThreshold),
		})
	}
	return alerts
}

func (d *MemoryDoctor) export(s HeapSample, alerts []Alert) {
	d.metrics.rss.Set(float64(s.RSSBytes))
	d.metrics.heap.Set(float64(s.HeapAlloc))
	for _, m := range s.Modules {
		d.metrics.objects.WithLabelValues(m.Module).Set(float64(m.Objects))
		d.metrics.approxBytes.WithLabelValues(m.Module).Set(float64(m.ApproxBytes))
		d.metrics.cacheItems.WithLabelValues(m.Module).Set(float64(m.CacheItems))
		d.metrics.queueLength.WithLabelValues(m.Module).Set(float64(m.QueueLength))
	}
	for _, a := range alerts {
		d.metrics.alerts.WithLabelValues(a.Reason).Inc()
	}
}

// GetCurrentStats 返回最近一次采样，尚未采样时返回零值
func (d *MemoryDoctor) GetCurrentStats() HeapSample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.history) == 0 {
		return HeapSample{}
	}
	return d.history[len(d.history)-1]
}

// GetHistory 返回窗口内样本的副本
func (d *MemoryDoctor) GetHistory() []HeapSample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HeapSample, len(d.history))
	copy(out, d.history)
	return out
}

// getRSSBytes 获取进程物理内存
//
// Linux 读取 /proc/self/status 的 VmRSS；macOS 的 ru_maxrss 是峰值 RSS；其他平台返回 0。
func getRSSBytes() uint64 {
	switch runtime.GOOS {
	case "linux":
		return getRSSBytesFromProc()
	case "darwin":
		var rusage syscall.Rusage
		if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
			return 0
		}
		return uint64(rusage.Maxrss)
	default:
		return 0
	}
}

func getRSSBytesFromProc() uint64 {
	file, err := os.Open("/proc/self/status")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		// VmRSS:    12345 kB
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
