package collector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkattest/internal/testutil"
	"github.com/weisyn/zkattest/pkg/types"
)

func TestStatic_Fetch(t *testing.T) {
	ctx := context.Background()
	event := testutil.TransferEvent(common.HexToHash("0xabc1"), 100)
	anchor := testutil.TestAnchor(7, 1000)
	evidence := testutil.MerkleEvidence(event, 1, 4)

	s := NewStatic()
	require.NoError(t, s.Add(anchor, event, evidence))
	require.Equal(t, 1, s.Len())

	got, err := s.Fetch(ctx, anchor, event)
	require.NoError(t, err)
	require.Same(t, evidence, got)

	// 不同高度或事件都查不到
	_, err = s.Fetch(ctx, testutil.TestAnchor(7, 1001), event)
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.Fetch(ctx, anchor, testutil.TransferEvent(common.HexToHash("0xabc1"), 101))
	require.ErrorIs(t, err, types.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Fetch(cancelled, anchor, event)
	require.ErrorIs(t, err, context.Canceled)

	require.Error(t, s.Add(anchor, event, nil))
}

func TestFile_LoadAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	event := testutil.TransferEvent(common.HexToHash("0xabc1"), 100)
	anchor := testutil.TestAnchor(7, 1000)

	require.NoError(t, WriteBundle(filepath.Join(dir, "a.json"), &Bundle{
		Anchor: anchor, Event: event, Evidence: testutil.MerkleEvidence(event, 1, 4),
	}))

	f, err := NewFile(dir, testutil.NewTestLogger())
	require.NoError(t, err)

	got, err := f.Fetch(ctx, anchor, event)
	require.NoError(t, err)
	require.Equal(t, types.EvidenceMerkleBranch, got.Kind)

	// 运行期间新增的文件在未命中时被加载
	hcEvidence, hcAnchor := testutil.HeaderChainEvidence(7, 2000, 3, event)
	require.NoError(t, WriteBundle(filepath.Join(dir, "nested", "b.json"), &Bundle{
		Anchor: hcAnchor, Event: event, Evidence: hcEvidence,
	}))
	got, err = f.Fetch(ctx, hcAnchor, event)
	require.NoError(t, err)
	require.Equal(t, types.EvidenceHeaderChain, got.Kind)
	require.Len(t, got.HeaderChain.Headers, 3)

	_, err = f.Fetch(ctx, testutil.TestAnchor(8, 1), event)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestFile_InvalidInputs(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "missing"), testutil.NewTestLogger())
	require.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteBundle(filepath.Join(dir, "empty.json"), &Bundle{}))
	f, err := NewFile(dir, testutil.NewTestLogger())
	require.NoError(t, err)
	n, err := f.Reload()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = LoadBundle(filepath.Join(dir, "empty.json"))
	require.Error(t, err)
}

func TestChain_Fetch(t *testing.T) {
	ctx := context.Background()
	event := testutil.TransferEvent(common.HexToHash("0xabc1"), 100)
	first, second := testutil.TestAnchor(7, 1000), testutil.TestAnchor(7, 1001)

	a, b := NewStatic(), NewStatic()
	require.NoError(t, a.Add(first, event, testutil.MerkleEvidence(event, 0, 2)))
	require.NoError(t, b.Add(second, event, testutil.MerkleEvidence(event, 1, 2)))
	chain := Chain{a, b}

	got, err := chain.Fetch(ctx, second, event)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.MerkleBranch.Index)

	_, err = chain.Fetch(ctx, testutil.TestAnchor(7, 1002), event)
	require.ErrorIs(t, err, types.ErrNotFound)

	// 非 NotFound 错误不再继续
	down := Func(func(context.Context, types.Anchor, types.EventDescriptor) (*types.Evidence, error) {
		return nil, types.ErrSourceUnavailable
	})
	_, err = Chain{down, b}.Fetch(ctx, second, event)
	require.ErrorIs(t, err, types.ErrSourceUnavailable)
}
