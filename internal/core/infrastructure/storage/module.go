// Package storage 提供存储管理功能
package storage

import (
	"context"

	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	"go.uber.org/fx"
)

// ModuleParams 定义存储模块的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Provider  config.Provider
	Logger    log.Logger
}

// ModuleOutput 定义存储模块的输出结构
type ModuleOutput struct {
	fx.Out

	// BlobStore 持久化层，persistence=none 时为 nil
	BlobStore storageInterface.BlobStore
}

// Module 返回存储模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 创建存储并注册关闭钩子
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger := params.Logger.With("module", "storage")
	store, err := CreateBlobStore(ServiceInput{Provider: params.Provider, Logger: logger})
	if err != nil {
		return ModuleOutput{}, err
	}

	if store != nil {
		params.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				logger.Info("正在关闭存储服务...")
				if err := store.Close(); err != nil {
					logger.Errorf("关闭存储失败: %v", err)
					return err
				}
				return nil
			},
		})
	}

	return ModuleOutput{BlobStore: store}, nil
}
