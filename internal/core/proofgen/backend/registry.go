package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// degradedAfterFailures 连续失败达到该次数时标记为降级
const degradedAfterFailures = 3

// registration 注册项及其运行统计
type registration struct {
	plugin   proofgen.BackendPlugin
	active   atomic.Int64
	proofs   atomic.Uint64
	failures atomic.Int64
}

// Registry 进程级后端注册表
//
// 🎯 **职责**：
// - backend_id → 实现 的解析，编排器只通过 id 获取后端
// - 版本升级：替换实现并通知订阅方（缓存失效、密钥丢弃）
// - 运行信息：健康状态、活跃任务、累计证明数
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration
	hooks   []proofgen.UpgradeHook

	keys   *KeyStore
	logger log.Logger
}

var _ proofgen.BackendRegistry = (*Registry)(nil)

// NewRegistry 创建注册表，keys 可为 nil
func NewRegistry(keys *KeyStore, logger log.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*registration),
		keys:    keys,
		logger:  logger.With("module", "backend"),
	}
}

// Register 注册后端
func (r *Registry) Register(plugin proofgen.BackendPlugin) error {
	if plugin == nil {
		return fmt.Errorf("nil backend plugin")
	}
	desc := plugin.Descriptor()
	if desc.ID == "" {
		return fmt.Errorf("backend id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrBackendExists, desc.ID)
	}
	r.entries[desc.ID] = &registration{plugin: plugin}
	r.logger.Infof("注册证明后端: %s schema=%d", desc, desc.WitnessSchemaVersion)
	return nil
}

// Upgrade 以更高版本替换已注册后端
func (r *Registry) Upgrade(plugin proofgen.BackendPlugin) error {
	if plugin == nil {
		return fmt.Errorf("nil backend plugin")
	}
	desc := plugin.Descriptor()

	r.mu.Lock()
	old, exists := r.entries[desc.ID]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBackendNotFound, desc.ID)
	}
	oldDesc := old.plugin.Descriptor()
	if desc.Version <= oldDesc.Version {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s current=%d new=%d", ErrVersionNotIncreasing, desc.ID, oldDesc.Version, desc.Version)
	}
	r.entries[desc.ID] = &registration{plugin: plugin}
	hooks := append([]proofgen.UpgradeHook(nil), r.hooks...)
	r.mu.Unlock()

	r.logger.Infof("升级证明后端: %s -> v%d", oldDesc, desc.Version)
	if r.keys != nil {
		r.keys.Drop(context.Background(), oldDesc)
	}
	for _, hook := range hooks {
		hook(desc.ID, oldDesc.Version, desc.Version)
	}
	return nil
}

// OnUpgrade 注册升级回调
func (r *Registry) OnUpgrade(hook proofgen.UpgradeHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

// Get 按 id 解析后端
func (r *Registry) Get(backendID string) (proofgen.BackendPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[backendID]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// Descriptor 当前注册的描述符
func (r *Registry) Descriptor(backendID string) (types.BackendDescriptor, bool) {
	p, ok := r.Get(backendID)
	if !ok {
		return types.BackendDescriptor{}, false
	}
	return p.Descriptor(), true
}

// CurrentVersion 当前注册版本
func (r *Registry) CurrentVersion(backendID string) (uint32, bool) {
	d, ok := r.Descriptor(backendID)
	return d.Version, ok
}

// List 所有已注册后端，按 id 排序
func (r *Registry) List() []types.BackendDescriptor {
	r.mu.RLock()
	out := make([]types.BackendDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.plugin.Descriptor())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Info 后端运行信息
func (r *Registry) Info(ctx context.Context, backendID string) (*types.BackendInfo, error) {
	r.mu.RLock()
	e, ok := r.entries[backendID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, backendID)
	}

	desc := e.plugin.Descriptor()
	info := &types.BackendInfo{
		Descriptor:  desc,
		Health:      types.BackendHealthy,
		ActiveTasks: e.active.Load(),
		ProofsTotal: e.proofs.Load(),
	}
	if r.keys != nil {
		info.KeysLoaded = r.keys.Loaded(desc)
	}
	if e.failures.Load() >= degradedAfterFailures {
		info.Health = types.BackendDegraded
	}
	if hc, ok := e.plugin.(proofgen.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			r.logger.Warnf("后端健康检查失败: %s err=%v", desc, err)
			info.Health = types.BackendUnhealthy
		}
	}
	return info, nil
}

// ============================================================================
//                              运行统计
// ============================================================================

// BeginTask 记录一个活跃证明任务，返回结束函数
func (r *Registry) BeginTask(backendID string) func() {
	r.mu.RLock()
	e, ok := r.entries[backendID]
	r.mu.RUnlock()
	if !ok {
		return func() {}
	}
	e.active.Add(1)
	return func() { e.active.Add(-1) }
}

// RecordResult 记录一次证明结果，成功清零连续失败计数
func (r *Registry) RecordResult(backendID string, success bool) {
	r.mu.RLock()
	e, ok := r.entries[backendID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if success {
		e.proofs.Add(1)
		e.failures.Store(0)
		return
	}
	e.failures.Add(1)
}

// Close 释放所有已加载密钥
func (r *Registry) Close() {
	if r.keys == nil {
		return
	}
	if n := r.keys.Purge(); n > 0 {
		r.logger.Infof("已释放后端密钥: %d", n)
	}
}
