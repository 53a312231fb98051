package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	proverconfig "github.com/weisyn/zkattest/internal/config/prover"
	metricsiface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/metrics"
)

// ReporterGroup fx 值组名称，模块通过该组提供 MemoryReporter
const ReporterGroup = "memory_reporters"

// RegistryOutput 进程级 Prometheus 注册表
type RegistryOutput struct {
	fx.Out

	Registry   *prometheus.Registry
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Module 返回 metrics 模块
//
// 提供：
//   - *prometheus.Registry（同时作为 Registerer 和 Gatherer）
//   - MemoryDoctor
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(
			ProvideRegistry,
			NewMemoryDoctorProvider,
		),
		fx.Invoke(StartMemoryDoctor),
	)
}

// ProvideRegistry 创建注册表并注册 Go 运行时与进程指标
func ProvideRegistry() RegistryOutput {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return RegistryOutput{Registry: reg, Registerer: reg, Gatherer: reg}
}

// MemoryDoctorProviderInput MemoryDoctor 的输入依赖
type MemoryDoctorProviderInput struct {
	fx.In

	Options    *proverconfig.ProverOptions
	Registerer prometheus.Registerer
	Logger     *zap.Logger                    `optional:"true"`
	Reporters  []metricsiface.MemoryReporter `group:"memory_reporters"`
}

// NewMemoryDoctorProvider 创建 MemoryDoctor，预算取自证明工作池配置
func NewMemoryDoctorProvider(input MemoryDoctorProviderInput) (*MemoryDoctor, error) {
	cfg := DefaultMemoryDoctorConfig()
	if o := input.Options; o != nil && o.Workers > 0 && o.MemoryPerWorkerMB > 0 {
		cfg.BudgetBytes = uint64(o.Workers) * uint64(o.MemoryPerWorkerMB) * 1024 * 1024
	}

	var logger *zap.Logger
	if input.Logger != nil {
		logger = input.Logger.With(zap.String("module", "metrics"))
	}
	return NewMemoryDoctor(cfg, logger, input.Registerer, input.Reporters...)
}

// StartMemoryDoctor 注册 MemoryDoctor 生命周期
//
// 采样循环使用独立 ctx，OnStart 的 ctx 在启动完成后即被取消。
func StartMemoryDoctor(lifecycle fx.Lifecycle, doctor *MemoryDoctor) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				doctor.SampleOnce()
				doctor.Start(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
