package prover

import "time"

// 证明编排默认配置值
const (
	// === 工作池 ===

	// defaultWorkers 0 表示按主机 CPU 与内存自动计算
	defaultWorkers = 0

	// defaultMemoryPerWorkerMB 单个证明工作协程预留内存
	defaultMemoryPerWorkerMB = 2048

	// defaultMaxQueueDepth 工作池饱和时队列允许的最大深度
	defaultMaxQueueDepth = 64

	// defaultMaxPending 正在构建见证的请求上限
	defaultMaxPending = 1024

	// defaultBackendConcurrency 单个后端同时证明的任务数，0 表示只受工作池限制
	defaultBackendConcurrency = 0

	// === 阶段超时 ===

	defaultEvidenceTimeout = 30 * time.Second
	defaultWitnessTimeout  = 5 * time.Second
	defaultProveTimeout    = 5 * time.Minute
	defaultVerifyTimeout   = 30 * time.Second

	// === 重试 ===

	defaultMaxRetries        = 3
	defaultSelfVerifyRetries = 2
	defaultInitialBackoff    = 100 * time.Millisecond
	defaultMaxBackoff        = 5 * time.Second
	defaultBackoffFactor     = 2.0

	// === 输入限制 ===

	// defaultMaxEvidenceBytes 单个证据的大小上限（100 MiB）
	defaultMaxEvidenceBytes = 100 << 20
)

// defaultBackends 默认注册的后端
var defaultBackends = []string{"groth16-v1", "plonk-v1"}
