// Package proofgen 组装证明生成流水线：后端注册表、密钥、缓存、证据源、结果投递与编排器
package proofgen

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	proverconfig "github.com/weisyn/zkattest/internal/config/prover"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend/gnark"
	"github.com/weisyn/zkattest/internal/core/proofgen/cache"
	"github.com/weisyn/zkattest/internal/core/proofgen/collector"
	"github.com/weisyn/zkattest/internal/core/proofgen/orchestrator"
	"github.com/weisyn/zkattest/internal/core/proofgen/sink"
	"github.com/weisyn/zkattest/internal/core/proofgen/witness"
	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/metrics"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	proofgenInterface "github.com/weisyn/zkattest/pkg/interfaces/proofgen"
)

// recentResults 内存结果投递保留的最近结果数
const recentResults = 1024

// ModuleInput 证明流水线模块输入依赖
type ModuleInput struct {
	fx.In

	Lifecycle fx.Lifecycle
	Provider  config.Provider
	Options   *proverconfig.ProverOptions
	Logger    log.Logger

	BlobStore  storage.BlobStore     `optional:"true"`
	EventBus   event.EventBus        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// ModuleOutput 证明流水线模块输出服务
type ModuleOutput struct {
	fx.Out

	Registry     *backend.Registry
	Keys         *backend.KeyStore
	Cache        *cache.Cache
	Evidence     *collector.Static
	Results      *sink.Memory
	StoredResult *sink.Store
	Orchestrator *orchestrator.Orchestrator
	Service      proofgenInterface.ProofService

	Reporters []metrics.MemoryReporter `group:"memory_reporters,flatten"`
}

// Module 返回证明流水线模块
func Module() fx.Option {
	return fx.Module("proofgen",
		fx.Provide(ProvideServices),
	)
}

// NewPlugin 按 ID 创建内置后端
func NewPlugin(id string, logger log.Logger) (proofgenInterface.BackendPlugin, error) {
	switch id {
	case gnark.Groth16ID:
		return gnark.NewGroth16(gnark.WithLogger(logger)), nil
	case gnark.PlonkID:
		return gnark.NewPlonk(gnark.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", id)
	}
}

// ProvideServices 创建流水线各组件并注册生命周期
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	opts := input.Options
	logger := input.Logger

	// 后端与密钥
	keys := backend.NewKeyStore(input.BlobStore, proofgenInterface.SetupParams{}, logger)
	registry := backend.NewRegistry(keys, logger)
	for _, id := range opts.Backends {
		plugin, err := NewPlugin(id, logger)
		if err != nil {
			return ModuleOutput{}, err
		}
		if err := registry.Register(plugin); err != nil {
			return ModuleOutput{}, fmt.Errorf("register backend: %w", err)
		}
	}

	// 缓存，后端升级时失效
	c, err := cache.New(input.Provider.GetCache().Capacity, registry, input.BlobStore, logger)
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("create proof cache: %w", err)
	}
	registry.OnUpgrade(c.OnUpgrade())

	// 证据源：内存登记优先，其次是证据目录
	static := collector.NewStatic()
	sources := collector.Chain{static}
	if opts.EvidenceDir != "" {
		dir, err := collector.NewFile(opts.EvidenceDir, logger)
		if err != nil {
			return ModuleOutput{}, err
		}
		sources = append(sources, dir)
	}

	// 结果投递
	recent := sink.NewMemory(recentResults)
	sinks := sink.Multi{sink.NewLog(logger), recent}
	var stored *sink.Store
	if input.BlobStore != nil {
		stored = sink.NewStore(input.BlobStore)
		sinks = append(sinks, stored)
	}

	registerer := input.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	orch, err := orchestrator.New(opts, orchestrator.Deps{
		Registry:  registry,
		Keys:      keys,
		Collector: sources,
		Builder:   witness.New(opts.MaxEvidenceBytes, logger),
		Cache:     c,
		Sink:      sinks,
		Events:    input.EventBus,
		Metrics:   registerer,
		Logger:    logger,
	})
	if err != nil {
		return ModuleOutput{}, err
	}

	warmCtx, cancelWarm := context.WithCancel(context.Background())
	input.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := orch.Start(ctx); err != nil {
				return err
			}
			// setup 开销大，启动后在后台预加载密钥
			go warmKeys(warmCtx, registry, keys, logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelWarm()
			err := orch.Stop(ctx)
			registry.Close()
			return err
		},
	})

	return ModuleOutput{
		Registry:     registry,
		Keys:         keys,
		Cache:        c,
		Evidence:     static,
		Results:      recent,
		StoredResult: stored,
		Orchestrator: orch,
		Service:      orch,
		Reporters: []metrics.MemoryReporter{
			cacheReporter{c},
			orchestratorReporter{orch},
			resultReporter{recent},
		},
	}, nil
}

// warmKeys 依次加载所有已注册后端的密钥
func warmKeys(ctx context.Context, registry *backend.Registry, keys *backend.KeyStore, logger log.Logger) {
	for _, desc := range registry.List() {
		plugin, ok := registry.Get(desc.ID)
		if !ok {
			continue
		}
		if _, err := keys.Load(ctx, plugin); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("预加载密钥失败: backend=%s err=%v", desc, err)
			continue
		}
		logger.Infof("密钥已就绪: backend=%s", desc)
	}
}
