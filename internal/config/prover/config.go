// Package prover 提供证明编排器的配置
package prover

import (
	"runtime"
	"time"

	"github.com/pbnjay/memory"
	configtypes "github.com/weisyn/zkattest/pkg/types"
)

// ProverOptions 证明编排配置选项
type ProverOptions struct {
	// === 工作池配置 ===
	Workers            int `json:"workers"`
	MemoryPerWorkerMB  int `json:"memory_per_worker_mb"`
	MaxQueueDepth      int `json:"max_queue_depth"`
	MaxPending         int `json:"max_pending"`
	BackendConcurrency int `json:"backend_concurrency"`

	// SupportedChains 允许的源链，为空表示不限制
	SupportedChains []uint64 `json:"supported_chains"`

	// === 阶段超时 ===
	EvidenceTimeout time.Duration `json:"evidence_timeout"`
	WitnessTimeout  time.Duration `json:"witness_timeout"`
	ProveTimeout    time.Duration `json:"prove_timeout"`
	VerifyTimeout   time.Duration `json:"verify_timeout"`

	// === 重试配置 ===
	MaxRetries        int           `json:"max_retries"`
	SelfVerifyRetries int           `json:"self_verify_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff"`
	BackoffFactor     float64       `json:"backoff_factor"`

	// === 输入限制 ===
	MaxEvidenceBytes int `json:"max_evidence_bytes"`

	// Backends 启动时注册的后端 ID
	Backends []string `json:"backends"`

	// EvidenceDir 文件证据源目录
	EvidenceDir string `json:"evidence_dir"`
}

// Config 证明编排配置实现
type Config struct {
	options *ProverOptions
}

// New 创建证明编排配置实现
func New(userConfig interface{}) *Config {
	options := DefaultOptions()
	if cfg, ok := userConfig.(*configtypes.UserProverConfig); ok && cfg != nil {
		applyUserProverConfig(options, cfg)
	}
	return &Config{options: options}
}

// DefaultOptions 返回默认配置的副本
func DefaultOptions() *ProverOptions {
	return &ProverOptions{
		Workers:            defaultWorkers,
		MemoryPerWorkerMB:  defaultMemoryPerWorkerMB,
		MaxQueueDepth:      defaultMaxQueueDepth,
		MaxPending:         defaultMaxPending,
		BackendConcurrency: defaultBackendConcurrency,

		EvidenceTimeout: defaultEvidenceTimeout,
		WitnessTimeout:  defaultWitnessTimeout,
		ProveTimeout:    defaultProveTimeout,
		VerifyTimeout:   defaultVerifyTimeout,

		MaxRetries:        defaultMaxRetries,
		SelfVerifyRetries: defaultSelfVerifyRetries,
		InitialBackoff:    defaultInitialBackoff,
		MaxBackoff:        defaultMaxBackoff,
		BackoffFactor:     defaultBackoffFactor,

		MaxEvidenceBytes: defaultMaxEvidenceBytes,
		Backends:         append([]string(nil), defaultBackends...),
	}
}

func applyUserProverConfig(options *ProverOptions, cfg *configtypes.UserProverConfig) {
	setInt := func(dst *int, src *int, min int) {
		if src != nil && *src >= min {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *string) {
		if src == nil {
			return
		}
		if d, err := time.ParseDuration(*src); err == nil && d > 0 {
			*dst = d
		}
	}

	setInt(&options.Workers, cfg.Workers, 0)
	setInt(&options.MemoryPerWorkerMB, cfg.MemoryPerWorkerMB, 1)
	setInt(&options.MaxQueueDepth, cfg.MaxQueueDepth, 0)
	setInt(&options.MaxPending, cfg.MaxPending, 1)
	setInt(&options.BackendConcurrency, cfg.BackendConcurrency, 0)
	setInt(&options.MaxRetries, cfg.MaxRetries, 0)
	setInt(&options.SelfVerifyRetries, cfg.SelfVerifyRetries, 0)
	setInt(&options.MaxEvidenceBytes, cfg.MaxEvidenceBytes, 1)

	setDuration(&options.EvidenceTimeout, cfg.EvidenceTimeout)
	setDuration(&options.WitnessTimeout, cfg.WitnessTimeout)
	setDuration(&options.ProveTimeout, cfg.ProveTimeout)
	setDuration(&options.VerifyTimeout, cfg.VerifyTimeout)
	setDuration(&options.InitialBackoff, cfg.InitialBackoff)
	setDuration(&options.MaxBackoff, cfg.MaxBackoff)

	if cfg.BackoffFactor != nil && *cfg.BackoffFactor >= 1 {
		options.BackoffFactor = *cfg.BackoffFactor
	}
	if len(cfg.SupportedChains) > 0 {
		options.SupportedChains = append([]uint64(nil), cfg.SupportedChains...)
	}
	if len(cfg.Backends) > 0 {
		options.Backends = append([]string(nil), cfg.Backends...)
	}
	if cfg.EvidenceDir != nil {
		options.EvidenceDir = *cfg.EvidenceDir
	}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *ProverOptions {
	return c.options
}

// ResolveWorkers 计算实际工作协程数
//
// 显式配置优先；否则取 CPU 核数与 (主机内存 / 单协程内存) 的较小值，至少为 1。
func (o *ProverOptions) ResolveWorkers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	workers := runtime.NumCPU()
	if o.MemoryPerWorkerMB > 0 {
		byMemory := int(memory.TotalMemory() / (uint64(o.MemoryPerWorkerMB) << 20))
		if byMemory < workers {
			workers = byMemory
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// ChainSupported 源链是否被允许
func (o *ProverOptions) ChainSupported(chainID uint64) bool {
	if len(o.SupportedChains) == 0 {
		return true
	}
	for _, id := range o.SupportedChains {
		if id == chainID {
			return true
		}
	}
	return false
}
