// Package configs 内置的各环境配置
package configs

import _ "embed"

//go:embed development.json
var developmentConfig []byte

//go:embed testing.json
var testingConfig []byte

//go:embed production.json
var productionConfig []byte

// GetDevelopmentConfig 开发环境配置：内存持久化层，开启 WebSocket
func GetDevelopmentConfig() []byte { return developmentConfig }

// GetTestingConfig 测试环境配置：单工作协程，不持久化
func GetTestingConfig() []byte { return testingConfig }

// GetProductionConfig 生产环境配置：badger 持久化层
func GetProductionConfig() []byte { return productionConfig }

// ForEnvironment 按环境名返回配置，未知环境返回 nil
func ForEnvironment(env string) []byte {
	switch env {
	case "dev", "development":
		return developmentConfig
	case "test", "testing":
		return testingConfig
	case "prod", "production":
		return productionConfig
	default:
		return nil
	}
}
