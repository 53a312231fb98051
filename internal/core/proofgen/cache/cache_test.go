package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/require"

	memoryconfig "github.com/weisyn/zkattest/internal/config/storage/memory"
	"github.com/weisyn/zkattest/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/zkattest/internal/testutil"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// ============================================================================
// cache.go / codec.go 测试
// ============================================================================

// staticVersions 可修改的版本表
type staticVersions struct {
	mu       sync.RWMutex
	versions map[string]uint32
}

func newVersions(kv map[string]uint32) *staticVersions {
	return &staticVersions{versions: kv}
}

func (s *staticVersions) CurrentVersion(id string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	return v, ok
}

func (s *staticVersions) set(id string, v uint32) {
	s.mu.Lock()
	s.versions[id] = v
	s.mu.Unlock()
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.New(memoryconfig.New(nil), testutil.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testArtifact(seed string, backendID string, version uint32) *types.ProofArtifact {
	return &types.ProofArtifact{
		ProofBytes:    crypto.Keccak256([]byte("proof-" + seed)),
		PublicInputs:  []byte("public-" + seed),
		Backend:       types.BackendDescriptor{ID: backendID, Version: version, WitnessSchemaVersion: 1},
		WitnessDigest: crypto.Keccak256Hash([]byte(seed)),
		Metadata: types.ArtifactMetadata{
			GeneratedAt:    time.Unix(1700000000, 42).UTC(),
			GenerationTime: 1500 * time.Millisecond,
			ProofSize:      32,
			Attempts:       1,
			CircuitHash:    crypto.Keccak256Hash([]byte("vk")),
			AllocatedBytes: 4096,
		},
	}
}

// TestCache_PutGet 测试内存层读写
func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, err := New(8, newVersions(map[string]uint32{"plonk-v1": 1}), nil, testutil.NewTestLogger())
	require.NoError(t, err)

	a := testArtifact("a", "plonk-v1", 1)
	_, tier := c.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMiss, tier)

	ok, err := c.Put(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	got, tier := c.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMemory, tier)
	require.Equal(t, a.ProofBytes, got.ProofBytes)

	// 返回副本，修改不影响缓存
	got.ProofBytes[0] ^= 0xff
	again, _ := c.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, a.ProofBytes, again.ProofBytes)

	// 同摘要不同后端互不影响
	_, tier = c.Get(ctx, a.WitnessDigest, "groth16-v1")
	require.Equal(t, proofgen.CacheMiss, tier)

	stats := c.Stats()
	require.Equal(t, uint64(2), stats.Hits)
	require.Equal(t, uint64(2), stats.Misses)
	require.Equal(t, 1, stats.Entries)
}

// TestCache_LRUEviction 测试容量淘汰
func TestCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c, err := New(2, newVersions(map[string]uint32{"plonk-v1": 1}), nil, testutil.NewTestLogger())
	require.NoError(t, err)

	a, b, d := testArtifact("a", "plonk-v1", 1), testArtifact("b", "plonk-v1", 1), testArtifact("d", "plonk-v1", 1)
	_, _ = c.Put(ctx, a)
	_, _ = c.Put(ctx, b)
	_, tier := c.Get(ctx, a.WitnessDigest, "plonk-v1") // a 变为最近使用
	require.Equal(t, proofgen.CacheMemory, tier)
	_, _ = c.Put(ctx, d)

	_, tier = c.Get(ctx, b.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMiss, tier)
	_, tier = c.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMemory, tier)
	require.Equal(t, uint64(1), c.Stats().Evictions)
}

// TestCache_VersionInvalidation 测试版本变更后条目不可用
func TestCache_VersionInvalidation(t *testing.T) {
	ctx := context.Background()
	versions := newVersions(map[string]uint32{"plonk-v1": 1})
	store := newStore(t)
	c, err := New(8, versions, store, testutil.NewTestLogger())
	require.NoError(t, err)

	a := testArtifact("a", "plonk-v1", 1)
	_, err = c.Put(ctx, a)
	require.NoError(t, err)

	versions.set("plonk-v1", 2)
	_, tier := c.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMiss, tier)
	require.Equal(t, uint64(1), c.Stats().Invalidations)

	// 过期版本的提交被拒绝
	ok, err := c.Put(ctx, testArtifact("b", "plonk-v1", 1))
	require.NoError(t, err)
	require.False(t, ok)

	// 未注册后端的提交被拒绝
	ok, err = c.Put(ctx, testArtifact("c", "stark-v1", 1))
	require.NoError(t, err)
	require.False(t, ok)

	// 升级回调清理持久化层旧版本
	_, err = c.Put(ctx, testArtifact("e", "plonk-v1", 2))
	require.NoError(t, err)
	c.OnUpgrade()("plonk-v1", 1, 2)
	entries, err := store.PrefixScan(ctx, []byte("proof/plonk-v1/"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	for k := range entries {
		require.Contains(t, k, "proof/plonk-v1/v2/")
	}
}

// TestCache_Invalidate 测试按后端失效
func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	versions := newVersions(map[string]uint32{"plonk-v1": 1, "groth16-v1": 1})
	c, err := New(8, versions, nil, testutil.NewTestLogger())
	require.NoError(t, err)

	_, _ = c.Put(ctx, testArtifact("a", "plonk-v1", 1))
	_, _ = c.Put(ctx, testArtifact("b", "plonk-v1", 1))
	_, _ = c.Put(ctx, testArtifact("c", "groth16-v1", 1))

	// 当前版本条目保留
	require.Equal(t, 0, c.Invalidate(ctx, "plonk-v1"))

	versions.set("plonk-v1", 2)
	require.Equal(t, 2, c.Invalidate(ctx, "plonk-v1"))
	require.Equal(t, 1, c.Stats().Entries)

	require.NoError(t, c.Purge(ctx))
	require.Equal(t, 0, c.Stats().Entries)
}

// TestCache_PersistedTier 测试持久化层跨实例加载
func TestCache_PersistedTier(t *testing.T) {
	ctx := context.Background()
	versions := newVersions(map[string]uint32{"plonk-v1": 1})
	store := newStore(t)

	first, err := New(8, versions, store, testutil.NewTestLogger())
	require.NoError(t, err)
	a := testArtifact("a", "plonk-v1", 1)
	_, err = first.Put(ctx, a)
	require.NoError(t, err)

	// 模拟进程重启：新缓存实例共享同一存储
	second, err := New(8, versions, store, testutil.NewTestLogger())
	require.NoError(t, err)
	got, tier := second.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CachePersisted, tier)
	require.Equal(t, a.ProofBytes, got.ProofBytes)
	require.Equal(t, a.PublicInputs, got.PublicInputs)
	require.Equal(t, a.Backend, got.Backend)
	require.True(t, a.Metadata.GeneratedAt.Equal(got.Metadata.GeneratedAt))
	require.Equal(t, a.Metadata.GenerationTime, got.Metadata.GenerationTime)
	require.Equal(t, a.Metadata.CircuitHash, got.Metadata.CircuitHash)

	// 持久化命中不提升，验证后由调用方 Put
	require.Equal(t, 0, second.Stats().Entries)
	_, err = second.Put(ctx, got)
	require.NoError(t, err)
	_, tier = second.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMemory, tier)

	// Discard 删除两层
	second.Discard(ctx, a.WitnessDigest, "plonk-v1")
	_, tier = second.Get(ctx, a.WitnessDigest, "plonk-v1")
	require.Equal(t, proofgen.CacheMiss, tier)
}

// TestCache_Peek 测试 Peek 只看内存层并遵守版本
func TestCache_Peek(t *testing.T) {
	ctx := context.Background()
	versions := newVersions(map[string]uint32{"plonk-v1": 1})
	store := newStore(t)

	first, err := New(8, versions, store, testutil.NewTestLogger())
	require.NoError(t, err)
	a := testArtifact("a", "plonk-v1", 1)
	_, err = first.Put(ctx, a)
	require.NoError(t, err)

	got, ok := first.Peek(a.WitnessDigest, "plonk-v1")
	require.True(t, ok)
	require.Equal(t, a.ProofBytes, got.ProofBytes)

	// 持久化层中的条目不可见
	second, err := New(8, versions, store, testutil.NewTestLogger())
	require.NoError(t, err)
	_, ok = second.Peek(a.WitnessDigest, "plonk-v1")
	require.False(t, ok)

	versions.set("plonk-v1", 2)
	_, ok = first.Peek(a.WitnessDigest, "plonk-v1")
	require.False(t, ok)
	_, ok = first.Peek(a.WitnessDigest, "unknown")
	require.False(t, ok)
}

// TestCache_Corruption 测试损坏条目被删除并视为未命中
func TestCache_Corruption(t *testing.T) {
	ctx := context.Background()
	versions := newVersions(map[string]uint32{"plonk-v1": 1})
	a := testArtifact("a", "plonk-v1", 1)
	pkey := persistedKey("plonk-v1", 1, a.WitnessDigest)

	validBlob, err := encodeArtifact(a)
	require.NoError(t, err)

	// 校验和不一致：篡改记录内容后重新打包
	raw, err := snappy.Decode(nil, validBlob)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, rlp.DecodeBytes(raw, &env))
	env.Record[len(env.Record)-1] ^= 0x01
	tamperedEnv, err := rlp.EncodeToBytes(&env)
	require.NoError(t, err)

	// 条目描述的摘要与键不一致
	misplaced, err := encodeArtifact(testArtifact("other", "plonk-v1", 1))
	require.NoError(t, err)

	blobs := map[string][]byte{
		"非 snappy 数据": []byte("garbage"),
		"校验和不一致":     snappy.Encode(nil, tamperedEnv),
		"摘要不一致":      misplaced,
	}

	for name, blob := range blobs {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Set(ctx, pkey, blob))

			c, err := New(8, versions, store, testutil.NewTestLogger())
			require.NoError(t, err)

			_, tier := c.Get(ctx, a.WitnessDigest, "plonk-v1")
			require.Equal(t, proofgen.CacheMiss, tier)
			require.Equal(t, uint64(1), c.Stats().Corruptions)

			left, err := store.Get(ctx, pkey)
			require.NoError(t, err)
			require.Nil(t, left, "损坏条目应被删除")
		})
	}
}

// TestCache_ConcurrentAccess 测试并发读写不会读到部分条目
func TestCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, err := New(16, newVersions(map[string]uint32{"plonk-v1": 1}), nil, testutil.NewTestLogger())
	require.NoError(t, err)

	a := testArtifact("a", "plonk-v1", 1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = c.Put(ctx, a)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got, tier := c.Get(ctx, a.WitnessDigest, "plonk-v1"); tier == proofgen.CacheMemory {
					if string(got.ProofBytes) != string(a.ProofBytes) {
						t.Errorf("partial entry observed")
					}
				}
			}
		}()
	}
	wg.Wait()
}

// TestPersistedKey 测试持久化键布局
func TestPersistedKey(t *testing.T) {
	digest := common.HexToHash("0x01")
	require.Equal(t,
		"proof/plonk-v1/v3/0000000000000000000000000000000000000000000000000000000000000001",
		string(persistedKey("plonk-v1", 3, digest)))
}
