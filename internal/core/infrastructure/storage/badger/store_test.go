package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	badgerconfig "github.com/weisyn/zkattest/internal/config/storage/badger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &badgerconfig.BadgerOptions{
		Path:         t.TempDir(),
		MemTableSize: 8 << 20,
	}
	store, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStore_GetSetDelete 基本读写
func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	val, err := store.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	require.Nil(t, val)

	require.NoError(t, store.Set(ctx, []byte("k1"), []byte("v1")))
	val, err = store.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), val)

	require.NoError(t, store.Delete(ctx, []byte("k1")))
	val, err = store.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	require.Nil(t, val)

	// 删除不存在的键不报错
	require.NoError(t, store.Delete(ctx, []byte("k1")))
}

// TestStore_PrefixOperations 前缀扫描与删除
func TestStore_PrefixOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, []byte("proof/a/1"), []byte("x")))
	require.NoError(t, store.Set(ctx, []byte("proof/a/2"), []byte("y")))
	require.NoError(t, store.Set(ctx, []byte("proof/b/1"), []byte("z")))

	entries, err := store.PrefixScan(ctx, []byte("proof/a/"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("y"), entries["proof/a/2"])

	n, err := store.DeletePrefix(ctx, []byte("proof/a/"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, err = store.PrefixScan(ctx, []byte("proof/"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestStore_WriteAfterClose 关闭后拒绝写入
func TestStore_WriteAfterClose(t *testing.T) {
	cfg := &badgerconfig.BadgerOptions{Path: t.TempDir(), MemTableSize: 8 << 20}
	store, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.Set(context.Background(), []byte("k"), []byte("v"))
	require.ErrorIs(t, err, ErrClosing)
}
