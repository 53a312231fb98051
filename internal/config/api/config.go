// Package api 提供 HTTP/WebSocket 接口配置
package api

import (
	"time"

	"github.com/weisyn/zkattest/pkg/types"
)

// APIOptions API服务配置选项
type APIOptions struct {
	HTTPEnabled     bool          `json:"http_enabled"`
	HTTPAddr        string        `json:"http_addr"`
	EnableWebSocket bool          `json:"enable_websocket"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	MaxRequestSize  int64         `json:"max_request_size"`
	WaitTimeout     time.Duration `json:"wait_timeout"`
	ReadRateLimit   int           `json:"read_rate_limit"`
	WriteRateLimit  int           `json:"write_rate_limit"`
}

// Config API配置实现
type Config struct {
	options *APIOptions
}

// New 创建API配置实现
func New(userConfig *types.UserAPIConfig) *Config {
	options := &APIOptions{
		HTTPEnabled:     defaultHTTPEnabled,
		HTTPAddr:        defaultHTTPAddr,
		EnableWebSocket: defaultEnableWebSocket,
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
		MaxRequestSize:  defaultMaxRequestSize,
		WaitTimeout:     defaultWaitTimeout,
		ReadRateLimit:   defaultReadRateLimit,
		WriteRateLimit:  defaultWriteRateLimit,
	}

	if userConfig != nil {
		if userConfig.HTTPEnabled != nil {
			options.HTTPEnabled = *userConfig.HTTPEnabled
		}
		if userConfig.HTTPAddr != nil && *userConfig.HTTPAddr != "" {
			options.HTTPAddr = *userConfig.HTTPAddr
		}
		if userConfig.EnableWS != nil {
			options.EnableWebSocket = *userConfig.EnableWS
		}
		if userConfig.WaitTimeout != nil {
			if d, err := time.ParseDuration(*userConfig.WaitTimeout); err == nil && d > 0 {
				options.WaitTimeout = d
			}
		}
		if userConfig.ReadRateLimit != nil && *userConfig.ReadRateLimit > 0 {
			options.ReadRateLimit = *userConfig.ReadRateLimit
		}
		if userConfig.WriteRateLimit != nil && *userConfig.WriteRateLimit > 0 {
			options.WriteRateLimit = *userConfig.WriteRateLimit
		}
	}

	return &Config{options: options}
}

// GetOptions 获取完整的API配置选项
func (c *Config) GetOptions() *APIOptions {
	return c.options
}
