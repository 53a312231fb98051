// Package redis 提供 Redis 共享缓存层的配置
package redis

import (
	"time"

	configtypes "github.com/weisyn/zkattest/pkg/types"
)

// RedisOptions Redis 配置选项
type RedisOptions struct {
	Addr       string        `json:"addr"`
	Password   string        `json:"-"`
	DB         int           `json:"db"`
	KeyPrefix  string        `json:"key_prefix"`
	PoolSize   int           `json:"pool_size"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// Config Redis 配置实现
type Config struct {
	options *RedisOptions
}

// New 创建 Redis 配置实现
func New(userConfig interface{}) *Config {
	options := &RedisOptions{
		Addr:       defaultAddr,
		DB:         defaultDB,
		KeyPrefix:  defaultKeyPrefix,
		PoolSize:   defaultPoolSize,
		DefaultTTL: time.Duration(defaultTTLSeconds) * time.Second,
	}

	if cfg, ok := userConfig.(*configtypes.UserRedisConfig); ok && cfg != nil {
		if cfg.Addr != nil {
			options.Addr = *cfg.Addr
		}
		if cfg.Password != nil {
			options.Password = *cfg.Password
		}
		if cfg.DB != nil {
			options.DB = *cfg.DB
		}
		if cfg.KeyPrefix != nil {
			options.KeyPrefix = *cfg.KeyPrefix
		}
		if cfg.PoolSize != nil && *cfg.PoolSize > 0 {
			options.PoolSize = *cfg.PoolSize
		}
		if cfg.TTLSeconds != nil && *cfg.TTLSeconds >= 0 {
			options.DefaultTTL = time.Duration(*cfg.TTLSeconds) * time.Second
		}
	}

	return &Config{options: options}
}

// GetOptions 获取完整的 Redis 配置选项
func (c *Config) GetOptions() *RedisOptions {
	return c.options
}
