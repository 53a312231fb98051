// Package event 提供事件管理功能
package event

import (
	"context"

	"go.uber.org/fx"

	eventInterface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
)

// ModuleInput 事件模块输入依赖
type ModuleInput struct {
	fx.In

	Logger    log.Logger `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ModuleOutput 事件模块输出服务
type ModuleOutput struct {
	fx.Out

	EventBus eventInterface.EventBus
}

// Module 返回事件模块
func Module() fx.Option {
	return fx.Module("event",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 创建事件总线，停止时等待异步订阅者处理完成
func ProvideServices(input ModuleInput) ModuleOutput {
	bus := New()
	input.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			bus.WaitAsync()
			if input.Logger != nil {
				input.Logger.Infof("事件总线已停止，累计发布 %d 个事件", bus.PublishedCount())
			}
			return nil
		},
	})
	return ModuleOutput{EventBus: bus}
}
