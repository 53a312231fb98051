// Package storage 提供存储服务工厂实现
package storage

import (
	"fmt"

	cacheconfig "github.com/weisyn/zkattest/internal/config/cache"
	memoryconfig "github.com/weisyn/zkattest/internal/config/storage/memory"
	"github.com/weisyn/zkattest/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/zkattest/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/zkattest/internal/core/infrastructure/storage/redis"
	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
)

// ServiceInput 定义存储服务工厂的输入参数
type ServiceInput struct {
	Provider config.Provider
	Logger   log.Logger
}

// CreateBlobStore 按缓存持久化配置创建存储
//
// persistence 为 none 时返回 nil，证明缓存与密钥仅驻留内存。
func CreateBlobStore(input ServiceInput) (storageInterface.BlobStore, error) {
	persistence := input.Provider.GetCache().Persistence
	logger := input.Logger

	switch persistence {
	case cacheconfig.PersistenceNone:
		if logger != nil {
			logger.Info("证明缓存未启用持久化层")
		}
		return nil, nil
	case cacheconfig.PersistenceBadger:
		store, err := badger.New(input.Provider.GetBadger(), logger)
		if err != nil {
			return nil, fmt.Errorf("创建BadgerDB存储失败: %w", err)
		}
		return store, nil
	case cacheconfig.PersistenceMemory:
		opts := input.Provider.GetMemory()
		store, err := memory.New(memoryconfig.NewFromOptions(opts), logger)
		if err != nil {
			return nil, fmt.Errorf("创建内存存储失败: %w", err)
		}
		return store, nil
	case cacheconfig.PersistenceRedis:
		store, err := redis.New(input.Provider.GetRedis(), logger)
		if err != nil {
			return nil, fmt.Errorf("创建Redis存储失败: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的持久化类型: %s", persistence)
	}
}
