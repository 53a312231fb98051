package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	memoryconfig "github.com/weisyn/zkattest/internal/config/storage/memory"
	"github.com/weisyn/zkattest/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(memoryconfig.New(nil), testutil.NewTestLogger())
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

	require.NoError(t, store.Set(ctx, []byte("k"), []byte("v")))
	val, err = store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, []byte("k")))
	val, err = store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, val)
	require.NoError(t, store.Delete(ctx, []byte("k")))
}

// TestStore_PrefixOperations 前缀扫描与删除
func TestStore_PrefixOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, []byte("proof/x/1"), []byte("a")))
	require.NoError(t, store.Set(ctx, []byte("proof/x/2"), []byte("b")))
	require.NoError(t, store.Set(ctx, []byte("keys/x"), []byte("c")))

	entries, err := store.PrefixScan(ctx, []byte("proof/"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	n, err := store.DeletePrefix(ctx, []byte("proof/x/"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, err = store.PrefixScan(ctx, []byte(""))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("c"), entries["keys/x"])
}
