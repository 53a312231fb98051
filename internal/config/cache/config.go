// Package cache 提供证明缓存的配置
package cache

import (
	configtypes "github.com/weisyn/zkattest/pkg/types"
)

// 持久化层类型
const (
	PersistenceNone   = "none"
	PersistenceBadger = "badger"
	PersistenceMemory = "memory"
	PersistenceRedis  = "redis"
)

// CacheOptions 证明缓存配置选项
type CacheOptions struct {
	Capacity    int    `json:"capacity"`
	Persistence string `json:"persistence"`
}

// Config 证明缓存配置实现
type Config struct {
	options *CacheOptions
}

// New 创建证明缓存配置实现
func New(userConfig interface{}) *Config {
	options := &CacheOptions{
		Capacity:    defaultCapacity,
		Persistence: defaultPersistence,
	}
	if cfg, ok := userConfig.(*configtypes.UserCacheConfig); ok && cfg != nil {
		if cfg.Capacity != nil && *cfg.Capacity > 0 {
			options.Capacity = *cfg.Capacity
		}
		if cfg.Persistence != nil {
			switch *cfg.Persistence {
			case PersistenceNone, PersistenceBadger, PersistenceMemory, PersistenceRedis:
				options.Persistence = *cfg.Persistence
			}
		}
	}
	return &Config{options: options}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *CacheOptions {
	return c.options
}
