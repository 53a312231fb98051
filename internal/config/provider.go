package config

import (
	apiconfig "github.com/weisyn/zkattest/internal/config/api"
	cacheconfig "github.com/weisyn/zkattest/internal/config/cache"
	"github.com/weisyn/zkattest/internal/config/log"
	proverconfig "github.com/weisyn/zkattest/internal/config/prover"
	"github.com/weisyn/zkattest/internal/config/storage/badger"
	"github.com/weisyn/zkattest/internal/config/storage/memory"
	redisconfig "github.com/weisyn/zkattest/internal/config/storage/redis"
	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/types"
)

const defaultAppName = "zkattest"

// Provider 实现配置提供者接口
type Provider struct {
	appConfig *types.AppConfig
}

// NewProvider 创建配置提供者
func NewProvider(appConfig *types.AppConfig) config.Provider {
	if appConfig == nil {
		appConfig = &types.AppConfig{}
	}
	return &Provider{
		appConfig: appConfig,
	}
}

// GetAppName 获取应用名称
func (p *Provider) GetAppName() string {
	if p.appConfig.AppName != nil && *p.appConfig.AppName != "" {
		return *p.appConfig.AppName
	}
	return defaultAppName
}

// GetEnvironment 获取运行环境，未配置或无效值时返回 prod
func (p *Provider) GetEnvironment() string {
	if p.appConfig.Environment != nil {
		switch env := *p.appConfig.Environment; env {
		case "dev", "test", "prod":
			return env
		}
	}
	return "prod"
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	// log.New 处理默认值应用和用户配置覆盖
	return log.New(p.appConfig.Log).GetOptions()
}

// GetProver 获取证明编排配置
func (p *Provider) GetProver() *proverconfig.ProverOptions {
	return proverconfig.New(p.appConfig.Prover).GetOptions()
}

// GetCache 获取证明缓存配置
func (p *Provider) GetCache() *cacheconfig.CacheOptions {
	return cacheconfig.New(p.appConfig.Cache).GetOptions()
}

// GetAPI 获取API服务配置
func (p *Provider) GetAPI() *apiconfig.APIOptions {
	return apiconfig.New(p.appConfig.API).GetOptions()
}

// GetBadger 获取BadgerDB配置
func (p *Provider) GetBadger() *badger.BadgerOptions {
	return badger.FromUserConfig(p.appConfig.Storage)
}

// GetMemory 获取内存存储配置
func (p *Provider) GetMemory() *memory.MemoryOptions {
	return memory.New(p.appConfig.Storage).GetOptions()
}

// GetRedis 获取Redis配置
func (p *Provider) GetRedis() *redisconfig.RedisOptions {
	return redisconfig.New(p.appConfig.Redis).GetOptions()
}
