// Package proofgen 定义证明生成流水线的公共接口
//
// 📋 **组件边界**：
// - BackendPlugin：可插拔证明系统的统一契约，编排器只通过它分派
// - BackendRegistry：进程级 backend_id → 实现 的映射
// - WitnessBuilder：证据 → 规范见证
// - ProofCache：(见证摘要, backend_id) → 证明结果
// - EvidenceCollector / ResultSink：外部协作方
// - ProofService：编排器对外的请求入口
package proofgen

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/weisyn/zkattest/pkg/types"
)

// ProvingKey 证明密钥句柄，setup 后只读共享
type ProvingKey interface{}

// VerifyingKey 验证密钥句柄，setup 后只读共享
type VerifyingKey interface{}

// Proof 后端内部的证明对象
type Proof interface{}

// SetupParams 可信设置参数
type SetupParams struct {
	// MaxConstraints 电路约束数上限，超出时 setup 以资源分配失败拒绝；0 表示不限制
	MaxConstraints int
}

// BackendPlugin 可插拔证明系统契约
//
// ⚠️ **并发约束**：同一证明密钥可被多个 worker 并发用于 Prove，实现不得修改密钥。
// 自洽约束：Prove 的输出必须能通过同一后端的 Verify。
type BackendPlugin interface {
	// Descriptor 后端标识、版本与接受的见证结构版本
	Descriptor() types.BackendDescriptor

	// Setup 生成证明/验证密钥，开销大，每个 (id, version) 只执行一次
	Setup(ctx context.Context, params SetupParams) (ProvingKey, VerifyingKey, error)

	// Prove 对见证生成证明，开始后不可中断
	Prove(ctx context.Context, pk ProvingKey, witness *types.Witness) (Proof, error)

	// PublicInputs 见证对应的公开输入（规范字节形式）
	PublicInputs(witness *types.Witness) ([]byte, error)

	// Verify 验证证明；证明不成立返回 (false, nil)，输入无法解码返回错误
	Verify(proof Proof, publicInputs []byte, vk VerifyingKey) (bool, error)

	SerializeProof(proof Proof) ([]byte, error)
	DeserializeProof(data []byte) (Proof, error)
	SerializeProvingKey(pk ProvingKey) ([]byte, error)
	DeserializeProvingKey(data []byte) (ProvingKey, error)
	SerializeVerifyingKey(vk VerifyingKey) ([]byte, error)
	DeserializeVerifyingKey(data []byte) (VerifyingKey, error)
}

// HealthChecker 后端可选实现的健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// VersionSource 当前注册版本查询，缓存用于版本失效判断
type VersionSource interface {
	CurrentVersion(backendID string) (uint32, bool)
}

// UpgradeHook 后端升级回调
type UpgradeHook func(backendID string, oldVersion, newVersion uint32)

// BackendRegistry 后端注册表
type BackendRegistry interface {
	VersionSource

	// Register 注册后端，id 重复时报错
	Register(plugin BackendPlugin) error

	// Upgrade 以更高版本替换已注册后端，旧版本的缓存与密钥随之失效
	Upgrade(plugin BackendPlugin) error

	// Get 按 id 解析后端
	Get(backendID string) (BackendPlugin, bool)

	// Descriptor 当前注册的描述符
	Descriptor(backendID string) (types.BackendDescriptor, bool)

	// List 所有已注册后端，按 id 排序
	List() []types.BackendDescriptor

	// Info 后端运行信息（健康、活跃任务数等）
	Info(ctx context.Context, backendID string) (*types.BackendInfo, error)

	// OnUpgrade 注册升级回调
	OnUpgrade(hook UpgradeHook)
}

// WitnessBuilder 见证构建器
type WitnessBuilder interface {
	// Build 校验证据并构建规范见证
	// 失败返回 InvalidEvidence 或 UnsupportedSchema 类别错误
	Build(evidence *types.Evidence, anchor types.Anchor, event types.EventDescriptor, schemaVersion uint32) (*types.Witness, error)
}

// CacheTier 缓存命中层级
type CacheTier int

const (
	// CacheMiss 未命中
	CacheMiss CacheTier = iota
	// CacheMemory 内存层命中
	CacheMemory
	// CachePersisted 持久化层命中（跨进程加载，使用前需重新验证）
	CachePersisted
)

// String 层级名称
func (t CacheTier) String() string {
	switch t {
	case CacheMemory:
		return "memory"
	case CachePersisted:
		return "persisted"
	default:
		return "miss"
	}
}

// CacheStats 缓存统计
type CacheStats struct {
	Entries       int    `json:"entries"`
	Capacity      int    `json:"capacity"`
	Hits          uint64 `json:"hits"`
	PersistedHits uint64 `json:"persisted_hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
	Corruptions   uint64 `json:"corruptions"`
}

// ProofCache 证明结果缓存
//
// 版本与当前注册版本不一致的条目视为未命中并被丢弃。
type ProofCache interface {
	// Get 查询结果，返回命中层级
	Get(ctx context.Context, digest common.Hash, backendID string) (*types.ProofArtifact, CacheTier)

	// Peek 只查询内存层，不做 I/O，可在调用方持锁时使用
	Peek(digest common.Hash, backendID string) (*types.ProofArtifact, bool)

	// Put 提交结果，版本已过期时不写入并返回 false
	Put(ctx context.Context, artifact *types.ProofArtifact) (bool, error)

	// Discard 丢弃指定条目（两层都删除）
	Discard(ctx context.Context, digest common.Hash, backendID string)

	// Invalidate 丢弃某后端的所有条目，返回内存层删除数量
	Invalidate(ctx context.Context, backendID string) int

	// Purge 清空缓存
	Purge(ctx context.Context) error

	Stats() CacheStats
}

// EvidenceCollector 证据采集方
//
// 失败类别：SourceUnavailable（含 NotFound 原因）或 Timeout。
type EvidenceCollector interface {
	Fetch(ctx context.Context, anchor types.Anchor, event types.EventDescriptor) (*types.Evidence, error)
}

// ResultSink 结果消费方，投递失败由其自行处理，编排器不重试
type ResultSink interface {
	Deliver(ctx context.Context, requestID string, artifact *types.ProofArtifact) error
}

// ProofService 证明请求入口
type ProofService interface {
	// Submit 接纳请求并返回请求 ID，准入失败同步返回类别错误
	Submit(ctx context.Context, req *types.ProofRequest) (string, error)

	// Wait 等待请求进入终态
	Wait(ctx context.Context, requestID string) (*types.ProofArtifact, error)

	// Prove 提交并等待
	Prove(ctx context.Context, req *types.ProofRequest) (*types.ProofArtifact, error)

	// Cancel 协作式取消，只在阶段边界生效
	Cancel(requestID string) error

	// Status 请求当前状态
	Status(requestID string) (*types.JobSnapshot, error)
}
