// Package cache 提供证明结果缓存：内存 LRU 层 + 可选的持久化层
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// DefaultCapacity 默认内存层容量
const DefaultCapacity = 4096

// key 内存层键
type key struct {
	digest    common.Hash
	backendID string
}

// entry 不可变缓存条目，替换时整体交换
type entry struct {
	version  uint32
	artifact *types.ProofArtifact
}

// Cache 证明结果缓存
//
// 🎯 **一致性约束**：
// - 条目版本与注册表当前版本不一致时视为未命中并删除
// - 条目是不可变值，在 LRU 锁内整体交换，读者看不到部分写入
// - 持久化层命中不会提升到内存层，调用方重新验证后通过 Put 提交
type Cache struct {
	lru      *lru.Cache[key, *entry]
	capacity int
	versions proofgen.VersionSource
	store    storage.BlobStore
	logger   log.Logger

	hits          atomic.Uint64
	persistedHits atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	invalidations atomic.Uint64
	corruptions   atomic.Uint64
}

var _ proofgen.ProofCache = (*Cache)(nil)

// New 创建缓存，store 为 nil 时只有内存层
func New(capacity int, versions proofgen.VersionSource, store storage.BlobStore, logger log.Logger) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if versions == nil {
		return nil, fmt.Errorf("version source is required")
	}
	l, err := lru.New[key, *entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{
		lru:      l,
		capacity: capacity,
		versions: versions,
		store:    store,
		logger:   logger.With("module", "cache"),
	}, nil
}

// Get 查询结果
func (c *Cache) Get(ctx context.Context, digest common.Hash, backendID string) (*types.ProofArtifact, proofgen.CacheTier) {
	current, ok := c.versions.CurrentVersion(backendID)
	if !ok {
		c.misses.Add(1)
		return nil, proofgen.CacheMiss
	}

	k := key{digest: digest, backendID: backendID}
	if e, ok := c.lru.Get(k); ok {
		if e.version == current {
			c.hits.Add(1)
			return e.artifact.Clone(), proofgen.CacheMemory
		}
		c.lru.Remove(k)
		c.invalidations.Add(1)
		c.logger.Debugf("丢弃过期缓存: backend=%s v%d!=v%d digest=%s", backendID, e.version, current, digest.TerminalString())
	}

	if artifact := c.loadPersisted(ctx, digest, backendID, current); artifact != nil {
		c.persistedHits.Add(1)
		return artifact, proofgen.CachePersisted
	}

	c.misses.Add(1)
	return nil, proofgen.CacheMiss
}

// Peek 只查询内存层，版本过期的条目视为未命中
func (c *Cache) Peek(digest common.Hash, backendID string) (*types.ProofArtifact, bool) {
	current, ok := c.versions.CurrentVersion(backendID)
	if !ok {
		return nil, false
	}
	e, ok := c.lru.Get(key{digest: digest, backendID: backendID})
	if !ok || e.version != current {
		return nil, false
	}
	c.hits.Add(1)
	return e.artifact.Clone(), true
}

// loadPersisted 读取持久化条目，损坏时删除并返回 nil
func (c *Cache) loadPersisted(ctx context.Context, digest common.Hash, backendID string, version uint32) *types.ProofArtifact {
	if c.store == nil {
		return nil
	}
	pkey := persistedKey(backendID, version, digest)
	blob, err := c.store.Get(ctx, pkey)
	if err != nil {
		c.logger.Warnf("读取持久化缓存失败: key=%s err=%v", pkey, err)
		return nil
	}
	if blob == nil {
		return nil
	}

	artifact, err := decodeArtifact(blob)
	if err == nil && (artifact.WitnessDigest != digest || artifact.Backend.ID != backendID || artifact.Backend.Version != version) {
		err = fmt.Errorf("entry describes %s/%s, stored under %s", artifact.Backend, artifact.WitnessDigest.TerminalString(), pkey)
	}
	if err != nil {
		c.corruptions.Add(1)
		perr := types.NewProofError(types.KindCacheCorruption, "cache.load", err)
		c.logger.Errorf("持久化缓存条目损坏，已丢弃: key=%s err=%v", pkey, perr)
		if derr := c.store.Delete(ctx, pkey); derr != nil {
			c.logger.Warnf("删除损坏条目失败: key=%s err=%v", pkey, derr)
		}
		return nil
	}
	return artifact
}

// Put 提交结果，版本已过期时不写入
func (c *Cache) Put(ctx context.Context, artifact *types.ProofArtifact) (bool, error) {
	if artifact == nil {
		return false, fmt.Errorf("nil artifact")
	}
	desc := artifact.Backend
	current, ok := c.versions.CurrentVersion(desc.ID)
	if !ok || current != desc.Version {
		c.logger.Debugf("拒绝提交过期结果: backend=%s current=v%d", desc, current)
		return false, nil
	}

	stored := artifact.Clone()
	if c.lru.Add(key{digest: stored.WitnessDigest, backendID: desc.ID}, &entry{version: desc.Version, artifact: stored}) {
		c.evictions.Add(1)
	}

	if c.store != nil {
		blob, err := encodeArtifact(stored)
		if err != nil {
			return true, err
		}
		if err := c.store.Set(ctx, persistedKey(desc.ID, desc.Version, stored.WitnessDigest), blob); err != nil {
			return true, fmt.Errorf("persist artifact: %w", err)
		}
	}
	return true, nil
}

// Discard 丢弃指定条目（两层都删除）
func (c *Cache) Discard(ctx context.Context, digest common.Hash, backendID string) {
	c.lru.Remove(key{digest: digest, backendID: backendID})
	if c.store == nil {
		return
	}
	if version, ok := c.versions.CurrentVersion(backendID); ok {
		if err := c.store.Delete(ctx, persistedKey(backendID, version, digest)); err != nil {
			c.logger.Warnf("删除持久化缓存失败: backend=%s err=%v", backendID, err)
		}
	}
}

// Invalidate 丢弃某后端所有非当前版本的条目，返回内存层删除数量
func (c *Cache) Invalidate(ctx context.Context, backendID string) int {
	current, registered := c.versions.CurrentVersion(backendID)

	removed := 0
	for _, k := range c.lru.Keys() {
		if k.backendID != backendID {
			continue
		}
		if e, ok := c.lru.Peek(k); ok && registered && e.version == current {
			continue
		}
		if c.lru.Remove(k) {
			removed++
		}
	}
	c.invalidations.Add(uint64(removed))

	if c.store != nil {
		entries, err := c.store.PrefixScan(ctx, backendPrefix(backendID))
		if err != nil {
			c.logger.Warnf("扫描持久化缓存失败: backend=%s err=%v", backendID, err)
		}
		keep := versionPrefix(backendID, current)
		stale := 0
		for k := range entries {
			if registered && strings.HasPrefix(k, keep) {
				continue
			}
			if err := c.store.Delete(ctx, []byte(k)); err != nil {
				c.logger.Warnf("删除过期持久化缓存失败: key=%s err=%v", k, err)
				continue
			}
			stale++
		}
		if stale > 0 {
			c.logger.Infof("已删除过期持久化缓存: backend=%s count=%d", backendID, stale)
		}
	}
	return removed
}

// Purge 清空缓存
func (c *Cache) Purge(ctx context.Context) error {
	c.lru.Purge()
	if c.store == nil {
		return nil
	}
	if _, err := c.store.DeletePrefix(ctx, []byte("proof/")); err != nil {
		return fmt.Errorf("purge persisted cache: %w", err)
	}
	return nil
}

// Stats 缓存统计
func (c *Cache) Stats() proofgen.CacheStats {
	return proofgen.CacheStats{
		Entries:       c.lru.Len(),
		Capacity:      c.capacity,
		Hits:          c.hits.Load(),
		PersistedHits: c.persistedHits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		Corruptions:   c.corruptions.Load(),
	}
}

// OnUpgrade 返回注册到后端注册表的升级回调
func (c *Cache) OnUpgrade() proofgen.UpgradeHook {
	return func(backendID string, oldVersion, newVersion uint32) {
		n := c.Invalidate(context.Background(), backendID)
		c.logger.Infof("后端升级，缓存失效: backend=%s v%d->v%d removed=%d", backendID, oldVersion, newVersion, n)
	}
}
