package http

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/weisyn/zkattest/internal/api/http/handlers"
	"github.com/weisyn/zkattest/internal/api/websocket"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/internal/core/proofgen/cache"
	"github.com/weisyn/zkattest/internal/core/proofgen/orchestrator"
	"github.com/weisyn/zkattest/internal/core/proofgen/sink"
	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
)

// ModuleInput HTTP模块依赖
type ModuleInput struct {
	fx.In

	Lifecycle    fx.Lifecycle
	Provider     config.Provider
	Logger       log.Logger
	Registry     *backend.Registry
	Cache        *cache.Cache
	Results      *sink.Memory
	Orchestrator *orchestrator.Orchestrator

	StoredResult *sink.Store           `optional:"true"`
	EventBus     event.EventBus        `optional:"true"`
	Registerer   prometheus.Registerer `optional:"true"`
	Gatherer     prometheus.Gatherer   `optional:"true"`
}

// initializeGinMode 非开发环境使用 Release 模式并关闭 gin 自带输出
func initializeGinMode(provider config.Provider) {
	if provider.GetEnvironment() != "dev" {
		gin.SetMode(gin.ReleaseMode)
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
	}
}

// ProvideServer 创建HTTP服务器并注册生命周期
func ProvideServer(input ModuleInput) (*Server, error) {
	opts := input.Provider.GetAPI()

	results := []handlers.ResultLookup{input.Results}
	if input.StoredResult != nil {
		results = append(results, input.StoredResult)
	}

	var events *websocket.Server
	if opts.EnableWebSocket {
		events = websocket.NewServer(input.Logger.GetZapLogger().Named("websocket"), input.EventBus)
	}

	server, err := NewServer(opts, input.Logger, Deps{
		Service:    input.Orchestrator,
		Runtime:    input.Orchestrator,
		Registry:   input.Registry,
		Cache:      input.Cache,
		Results:    results,
		Events:     events,
		Registerer: input.Registerer,
		Gatherer:   input.Gatherer,
	})
	if err != nil {
		return nil, err
	}

	if !opts.HTTPEnabled {
		input.Logger.Info("HTTP API在配置中被禁用")
		return server, nil
	}
	input.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return server.Start() },
		OnStop:  server.Stop,
	})
	return server, nil
}

// Module 返回HTTP服务模块
func Module() fx.Option {
	return fx.Options(
		fx.Invoke(initializeGinMode),
		fx.Provide(ProvideServer),
		// 确保服务器被构造并注册生命周期
		fx.Invoke(func(*Server) {}),
	)
}
