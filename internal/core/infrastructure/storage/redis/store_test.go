package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	redisconfig "github.com/weisyn/zkattest/internal/config/storage/redis"
	"github.com/weisyn/zkattest/internal/testutil"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := New(&redisconfig.RedisOptions{
		Addr:       mr.Addr(),
		KeyPrefix:  "zk:",
		PoolSize:   2,
		DefaultTTL: ttl,
	}, testutil.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// TestStore_GetSetDelete 基本读写与键前缀
func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, 0)

	val, err := store.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	require.Nil(t, val)

	require.NoError(t, store.Set(ctx, []byte("proof/a"), []byte{0x01, 0x02}))
	raw, err := mr.Get("zk:proof/a")
	require.NoError(t, err)
	require.Equal(t, string([]byte{0x01, 0x02}), raw)

	val, err = store.Get(ctx, []byte("proof/a"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, val)

	require.NoError(t, store.Delete(ctx, []byte("proof/a")))
	require.False(t, mr.Exists("zk:proof/a"))
}

// TestStore_DefaultTTL 默认 TTL 生效
func TestStore_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, []byte("k"), []byte("v")))
	require.Equal(t, time.Minute, mr.TTL("zk:k"))

	mr.FastForward(2 * time.Minute)
	val, err := store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, val)
}

// TestStore_PrefixOperations 前缀扫描与删除不触及其他命名空间
func TestStore_PrefixOperations(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, 0)

	require.NoError(t, store.Set(ctx, []byte("proof/p/1"), []byte("a")))
	require.NoError(t, store.Set(ctx, []byte("proof/p/2"), []byte("b")))
	require.NoError(t, store.Set(ctx, []byte("proof/q/1"), []byte("c")))
	require.NoError(t, mr.Set("other:proof/p/3", "foreign"))

	entries, err := store.PrefixScan(ctx, []byte("proof/p/"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("a"), entries["proof/p/1"])

	n, err := store.DeletePrefix(ctx, []byte("proof/p/"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, mr.Exists("zk:proof/q/1"))
	require.True(t, mr.Exists("other:proof/p/3"))
}

// TestNew_ConnectFailure 无法连接时返回错误
func TestNew_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(&redisconfig.RedisOptions{Addr: addr}, nil)
	require.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
