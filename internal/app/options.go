package app

import (
	"io"
	"os"

	"go.uber.org/fx"

	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
// 实现config.AppOptions接口
type options struct {
	// 配置文件路径
	configFilePath string

	// 嵌入的配置内容（优先级高于configFilePath）
	embeddedConfig []byte

	// 已解析的用户配置（优先级最高）
	appConfig *types.AppConfig

	// API支持开关 (默认启用)
	enableAPI bool

	// 启动与停止过程的状态输出
	out io.Writer

	// 附加的fx选项，用于取出组件或替换实现
	extra []fx.Option
}

// 编译时校验options是否实现了config.AppOptions接口
var _ config.AppOptions = (*options)(nil)

// WithConfigFile 设置配置文件路径
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithEmbeddedConfig 设置嵌入的配置内容（优先级高于WithConfigFile）
func WithEmbeddedConfig(configBytes []byte) Option {
	return func(o *options) {
		o.embeddedConfig = configBytes
	}
}

// WithAppConfig 直接使用已构造的配置，跳过文件加载
func WithAppConfig(cfg *types.AppConfig) Option {
	return func(o *options) {
		o.appConfig = cfg
	}
}

// WithAPI 启用API模块
func WithAPI() Option {
	return func(o *options) {
		o.enableAPI = true
	}
}

// WithoutAPI 禁用API模块
func WithoutAPI() Option {
	return func(o *options) {
		o.enableAPI = false
	}
}

// WithOutput 设置状态输出，传入 io.Discard 可静默
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithFxOptions 追加fx选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) {
		o.extra = append(o.extra, opts...)
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	options := &options{
		enableAPI: true,
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.out == nil {
		options.out = io.Discard
	}
	return options
}

// GetAppConfig 返回应用程序配置
func (o *options) GetAppConfig() *types.AppConfig {
	if o.appConfig == nil {
		return &types.AppConfig{}
	}
	return o.appConfig
}
