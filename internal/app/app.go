package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/fx"

	internalconfig "github.com/weisyn/zkattest/internal/config"
	cacheconfig "github.com/weisyn/zkattest/internal/config/cache"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/internal/core/proofgen/cache"
	"github.com/weisyn/zkattest/internal/core/proofgen/collector"
	"github.com/weisyn/zkattest/pkg/interfaces/config"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

const (
	// ConfigPathEnv 配置文件路径环境变量
	ConfigPathEnv = "ZKATTEST_CONFIG_PATH"

	// DefaultConfigPath 未指定配置时尝试的默认路径
	DefaultConfigPath = "configs/config.json"

	startTimeout = 60 * time.Second
	stopTimeout  = 30 * time.Second
)

// ProvideAppOptions 返回提供 config.AppOptions 的fx选项
func ProvideAppOptions(opts *options) fx.Option {
	return fx.Provide(func() config.AppOptions { return opts })
}

// resolveConfig 按优先级确定配置
//
// 优先级：WithAppConfig > WithEmbeddedConfig > WithConfigFile > 环境变量 > 默认路径 > 内置默认值。
// 显式指定的配置文件不存在或无法解析时返回错误。
func resolveConfig(opts *options) (string, error) {
	if opts.appConfig != nil {
		return "options", nil
	}

	if len(opts.embeddedConfig) > 0 {
		cfg, err := parseConfig(opts.embeddedConfig)
		if err != nil {
			return "", fmt.Errorf("parse embedded config: %w", err)
		}
		opts.appConfig = cfg
		return "embedded", nil
	}

	path, explicit := opts.configFilePath, true
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path == "" {
		path, explicit = DefaultConfigPath, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			opts.appConfig = &types.AppConfig{}
			return "defaults", nil
		}
		return "", fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return "", fmt.Errorf("parse config %s: %w", path, err)
	}
	opts.appConfig = cfg
	return path, nil
}

// parseConfig 解析 JSON 配置，拒绝未知字段以便尽早发现拼写错误
func parseConfig(data []byte) (*types.AppConfig, error) {
	var cfg types.AppConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// createDataDirectories 根据配置创建数据、日志与证据目录
func createDataDirectories(provider config.Provider, out io.Writer) error {
	var directories []string

	if provider.GetCache().Persistence == cacheconfig.PersistenceBadger {
		directories = append(directories, provider.GetBadger().Path)
	}
	if p := provider.GetLog().FilePath; p != "" && p != "stdout" && p != "stderr" {
		directories = append(directories, filepath.Dir(p))
	}
	if dir := provider.GetProver().EvidenceDir; dir != "" {
		directories = append(directories, dir)
	}

	for _, dir := range directories {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		fmt.Fprintf(out, "📁 目录已就绪: %s\n", dir)
	}
	return nil
}

// App 证明服务应用的对外接口
type App interface {
	// Stop 停止应用
	Stop() error

	// Wait 阻塞直到收到退出信号，随后停止应用
	Wait()

	// Service 证明请求入口
	Service() proofgen.ProofService

	// Backends 后端注册表
	Backends() proofgen.BackendRegistry

	// Cache 证明缓存
	Cache() proofgen.ProofCache

	// Evidence 内存证据源，可在提交前登记证据
	Evidence() *collector.Static
}

// components 启动后从容器取出的组件
type components struct {
	Service  proofgen.ProofService
	Registry *backend.Registry
	Cache    *cache.Cache
	Evidence *collector.Static
}

// internalApp 应用的内部实现
type internalApp struct {
	bootstrap *Bootstrap
	parts     components
}

func (a *internalApp) Service() proofgen.ProofService     { return a.parts.Service }
func (a *internalApp) Backends() proofgen.BackendRegistry { return a.parts.Registry }
func (a *internalApp) Cache() proofgen.ProofCache         { return a.parts.Cache }
func (a *internalApp) Evidence() *collector.Static        { return a.parts.Evidence }

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 等待退出信号
func (a *internalApp) Wait() {
	fmt.Fprintln(a.bootstrap.opts.out, "🔄 证明服务正在运行，按 Ctrl+C 停止...")

	sig := WaitForSignal()
	fmt.Fprintf(a.bootstrap.opts.out, "\n🛑 收到信号 %v，正在优雅退出...\n", sig)

	if err := a.Stop(); err != nil {
		fmt.Fprintf(a.bootstrap.opts.out, "⚠️ 停止应用时出错: %v\n", err)
	}
}

// Start 加载配置、装配并启动应用
func Start(appOptions ...Option) (App, error) {
	opts := newOptions(appOptions...)

	source, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(opts.out, "🔧 配置来源: %s\n", source)
	if err := internalconfig.ValidateAppConfig(opts.appConfig); err != nil {
		return nil, err
	}

	if err := createDataDirectories(internalconfig.NewProvider(opts.appConfig), opts.out); err != nil {
		return nil, err
	}

	bootstrap := NewBootstrap(opts)
	var parts components
	if err := bootstrap.CreateFxApp(fx.Populate(&parts.Service, &parts.Registry, &parts.Cache, &parts.Evidence)); err != nil {
		return nil, fmt.Errorf("创建应用失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := bootstrap.StartApp(ctx); err != nil {
		return nil, err
	}

	return &internalApp{bootstrap: bootstrap, parts: parts}, nil
}

// WaitForSignal 阻塞直到收到 SIGINT 或 SIGTERM
func WaitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	return <-signals
}
