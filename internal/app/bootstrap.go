package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/weisyn/zkattest/internal/api"
	config "github.com/weisyn/zkattest/internal/config"
	"github.com/weisyn/zkattest/internal/core/infrastructure/event"
	log "github.com/weisyn/zkattest/internal/core/infrastructure/log"
	"github.com/weisyn/zkattest/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkattest/internal/core/infrastructure/storage"
	"github.com/weisyn/zkattest/internal/core/proofgen"
)

// Framework layers
const (
	// 基础设施层
	LayerInfrastructure = "infrastructure"
	// 通信与数据层
	LayerCommunication = "communication"
	// 业务逻辑层
	LayerBusiness = "business"
	// 应用层
	LayerApplication = "application"
)

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// SetupInfrastructureLayer 设置基础设施层模块
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		ProvideAppOptions(b.opts),
		config.Module(),  // 1. 配置(不依赖其他)
		log.Module(),     // 2. 日志(依赖配置)
		metrics.Module(), // 3. 指标注册表与内存监控(依赖配置和日志)
	}
}

// SetupCommunicationLayer 设置通信与数据层模块
func (b *Bootstrap) SetupCommunicationLayer() []fx.Option {
	return []fx.Option{
		event.Module(),   // 事件总线
		storage.Module(), // 缓存持久化层
	}
}

// SetupBusinessLayer 设置业务逻辑层模块
//
// 后端注册表 -> 缓存 -> 证据源 -> 结果投递 -> 编排器，装配顺序在 proofgen 模块内部处理。
func (b *Bootstrap) SetupBusinessLayer() []fx.Option {
	return []fx.Option{
		proofgen.Module(),
	}
}

// SetupApplicationLayer 设置应用层模块
func (b *Bootstrap) SetupApplicationLayer() []fx.Option {
	var modules []fx.Option
	if b.opts.enableAPI {
		modules = append(modules, api.Module())
		fmt.Fprintln(b.opts.out, "🌐 API模块已启用")
	}
	return modules
}

// SetupModules 按依赖顺序返回所有模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var all []fx.Option
	all = append(all, b.SetupInfrastructureLayer()...)
	all = append(all, b.SetupCommunicationLayer()...)
	all = append(all, b.SetupBusinessLayer()...)
	all = append(all, b.SetupApplicationLayer()...)
	all = append(all, b.opts.extra...)
	return all
}

// Options 返回完整的fx选项，供 CreateFxApp 与装配校验共用
func (b *Bootstrap) Options(extra ...fx.Option) fx.Option {
	return fx.Options(
		fx.Options(b.SetupModules()...),
		fx.Options(extra...),
		// 禁用fx内部日志
		fx.NopLogger,
	)
}

// CreateFxApp 创建fx应用
func (b *Bootstrap) CreateFxApp(extra ...fx.Option) error {
	app := fx.New(b.Options(extra...))
	if err := app.Err(); err != nil {
		return err
	}
	b.fxApp = app
	return nil
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	fmt.Fprintln(b.opts.out, "正在启动证明服务...")
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	fmt.Fprintln(b.opts.out, "✅ 证明服务已启动")
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	fmt.Fprintln(b.opts.out, "正在停止证明服务...")
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}
