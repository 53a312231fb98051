// Package config provides configuration provider interfaces.
package config

import (
	apiconfig "github.com/weisyn/zkattest/internal/config/api"
	cacheconfig "github.com/weisyn/zkattest/internal/config/cache"
	logconfig "github.com/weisyn/zkattest/internal/config/log"
	proverconfig "github.com/weisyn/zkattest/internal/config/prover"
	badgerconfig "github.com/weisyn/zkattest/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/zkattest/internal/config/storage/memory"
	redisconfig "github.com/weisyn/zkattest/internal/config/storage/redis"
)

// Provider 配置提供者接口
type Provider interface {
	// GetAppName 获取应用名称
	GetAppName() string

	// GetEnvironment 获取运行环境：dev | test | prod，未配置时为 "prod"
	GetEnvironment() string

	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetProver 获取证明编排配置
	GetProver() *proverconfig.ProverOptions

	// GetCache 获取证明缓存配置
	GetCache() *cacheconfig.CacheOptions

	// GetAPI 获取API服务配置
	GetAPI() *apiconfig.APIOptions

	// === 存储配置 ===

	// GetBadger 获取BadgerDB配置
	GetBadger() *badgerconfig.BadgerOptions

	// GetMemory 获取内存存储配置
	GetMemory() *memoryconfig.MemoryOptions

	// GetRedis 获取Redis配置
	GetRedis() *redisconfig.RedisOptions
}
