package witness_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkattest/internal/core/proofgen/witness"
	"github.com/weisyn/zkattest/internal/testutil"
	"github.com/weisyn/zkattest/pkg/types"
)

// ============================================================================
// builder.go 测试
// ============================================================================

var txHash = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")

func newBuilder() *witness.Builder {
	return witness.New(0, testutil.NewTestLogger())
}

// TestBuild_MerkleBranch 测试 Merkle 证据构建见证
func TestBuild_MerkleBranch(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	evidence := testutil.MerkleEvidence(event, 5, 8)
	anchor := testutil.TestAnchor(7, 1000)

	w, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
	require.NoError(t, err)
	require.Equal(t, types.EvidenceMerkleBranch, w.Kind())
	require.Equal(t, anchor, w.Anchor())
	require.Equal(t, witness.SchemaV1, w.SchemaVersion())
	require.NotEqual(t, common.Hash{}, w.Digest())

	content := w.Content()
	require.Equal(t, evidence.MerkleBranch.ExpectedRoot, content.Root)
	require.Equal(t, uint64(5), content.LeafIndex)
}

// TestBuild_Deterministic 测试相同输入得到相同摘要
func TestBuild_Deterministic(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	anchor := testutil.TestAnchor(7, 1000)

	first, err := newBuilder().Build(testutil.MerkleEvidence(event, 2, 4), anchor, event, witness.SchemaV1)
	require.NoError(t, err)
	second, err := newBuilder().Build(testutil.MerkleEvidence(event, 2, 4), anchor, event, witness.SchemaV1)
	require.NoError(t, err)

	require.Equal(t, first.Digest(), second.Digest())
	require.Equal(t, first.Encoding(), second.Encoding())

	// 规范编码可往返恢复出同一摘要
	decoded, err := types.DecodeWitness(first.Encoding())
	require.NoError(t, err)
	require.Equal(t, first.Digest(), decoded.Digest())
}

// TestBuild_DigestDependsOnContent 测试不同锚点/事件得到不同摘要
func TestBuild_DigestDependsOnContent(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	b := newBuilder()

	w1, err := b.Build(testutil.MerkleEvidence(event, 0, 4), testutil.TestAnchor(7, 1000), event, witness.SchemaV1)
	require.NoError(t, err)
	w2, err := b.Build(testutil.MerkleEvidence(event, 0, 4), testutil.TestAnchor(7, 1001), event, witness.SchemaV1)
	require.NoError(t, err)

	other := testutil.TransferEvent(txHash, 101)
	w3, err := b.Build(testutil.MerkleEvidence(other, 0, 4), testutil.TestAnchor(7, 1000), other, witness.SchemaV1)
	require.NoError(t, err)

	require.NotEqual(t, w1.Digest(), w2.Digest())
	require.NotEqual(t, w1.Digest(), w3.Digest())
}

// TestBuild_FlippedLeafByte 测试篡改叶子一个字节被拒绝
func TestBuild_FlippedLeafByte(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	evidence := testutil.MerkleEvidence(event, 3, 8)
	evidence.MerkleBranch.Leaf = common.CopyBytes(evidence.MerkleBranch.Leaf)
	evidence.MerkleBranch.Leaf[len(evidence.MerkleBranch.Leaf)-1] ^= 0x01

	_, err := newBuilder().Build(evidence, testutil.TestAnchor(7, 1000), event, witness.SchemaV1)
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrInvalidEvidence))
	require.Equal(t, types.KindInvalidEvidence, types.KindOf(err))
	require.False(t, errors.Is(err, types.ErrProverFault))
}

// TestBuild_MerkleFailures 测试各类 Merkle 结构错误
func TestBuild_MerkleFailures(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	anchor := testutil.TestAnchor(7, 1000)

	tests := []struct {
		name   string
		mutate func(mb *types.MerkleBranch)
		cause  error
	}{
		{
			name:   "路径长度不一致",
			mutate: func(mb *types.MerkleBranch) { mb.Siblings = mb.Siblings[:len(mb.Siblings)-1] },
			cause:  witness.ErrPathLength,
		},
		{
			name:   "根不一致",
			mutate: func(mb *types.MerkleBranch) { mb.ExpectedRoot[0] ^= 0xff },
			cause:  witness.ErrRootMismatch,
		},
		{
			name:   "兄弟节点被篡改",
			mutate: func(mb *types.MerkleBranch) { mb.Siblings[0][31] ^= 0x01 },
			cause:  witness.ErrRootMismatch,
		},
		{
			name:   "索引越界",
			mutate: func(mb *types.MerkleBranch) { mb.Index = 1 << mb.Depth },
			cause:  witness.ErrMalformedPath,
		},
		{
			name: "深度超限",
			mutate: func(mb *types.MerkleBranch) {
				mb.Depth = witness.MaxMerkleDepth + 1
				mb.Siblings = make([]common.Hash, mb.Depth)
			},
			cause: witness.ErrMalformedPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evidence := testutil.MerkleEvidence(event, 1, 8)
			tt.mutate(evidence.MerkleBranch)

			_, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
			require.Error(t, err)
			require.ErrorIs(t, err, types.ErrInvalidEvidence)
			require.ErrorIs(t, err, tt.cause)
		})
	}
}

// TestBuild_HeaderChain 测试区块头链证据
func TestBuild_HeaderChain(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	evidence, anchor := testutil.HeaderChainEvidence(7, 1000, 4, event)

	w, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
	require.NoError(t, err)
	require.Equal(t, types.EvidenceHeaderChain, w.Kind())
	require.Len(t, w.Content().HeaderHashes, 4)
	require.Equal(t, anchor.BlockHash, w.Content().HeaderHashes[3])
}

// TestBuild_HeaderChainMultiEventBlock 测试锚点区块含多个事件时按路径校验
func TestBuild_HeaderChainMultiEventBlock(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	evidence, anchor := testutil.HeaderChainEvidenceAt(7, 1000, 3, event, 5, 8)
	require.Len(t, evidence.HeaderChain.EventSiblings, 3)

	w, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
	require.NoError(t, err)
	require.Equal(t, evidence.HeaderChain.Headers[2].EventsRoot, w.Content().Root)
	require.Equal(t, uint64(5), w.Content().LeafIndex)

	t.Run("路径位置错误", func(t *testing.T) {
		evidence, anchor := testutil.HeaderChainEvidenceAt(7, 1000, 3, event, 5, 8)
		evidence.HeaderChain.EventIndex = 4
		_, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
		require.ErrorIs(t, err, witness.ErrLeafMismatch)
		require.Equal(t, types.KindInvalidEvidence, types.KindOf(err))
	})

	t.Run("缺少路径", func(t *testing.T) {
		evidence, anchor := testutil.HeaderChainEvidenceAt(7, 1000, 3, event, 5, 8)
		evidence.HeaderChain.EventSiblings = nil
		_, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
		require.ErrorIs(t, err, types.ErrInvalidEvidence)
	})
}

// TestBuild_HeaderChainFailures 测试区块头链各类错误
func TestBuild_HeaderChainFailures(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)

	t.Run("链接断裂", func(t *testing.T) {
		evidence, anchor := testutil.HeaderChainEvidence(7, 1000, 3, event)
		evidence.HeaderChain.Headers[1].ParentHash[0] ^= 0x01
		_, err := newBuilder().Build(evidence, anchor, event, witness.SchemaV1)
		require.ErrorIs(t, err, witness.ErrBrokenLinkage)
	})

	t.Run("锚点高度不一致", func(t *testing.T) {
		evidence, anchor := testutil.HeaderChainEvidence(7, 1000, 1, event)
		_, err := newBuilder().Build(evidence, types.Anchor{ChainID: 7, Height: 999, BlockHash: anchor.BlockHash}, event, witness.SchemaV1)
		require.ErrorIs(t, err, witness.ErrAnchorMismatch)
	})

	t.Run("锚点不一致", func(t *testing.T) {
		evidence, _ := testutil.HeaderChainEvidence(7, 1000, 3, event)
		_, err := newBuilder().Build(evidence, testutil.TestAnchor(7, 1000), event, witness.SchemaV1)
		require.ErrorIs(t, err, witness.ErrAnchorMismatch)
	})

	t.Run("事件未被承诺", func(t *testing.T) {
		evidence, anchor := testutil.HeaderChainEvidence(7, 1000, 2, event)
		other := testutil.TransferEvent(txHash, 999)
		_, err := newBuilder().Build(evidence, anchor, other, witness.SchemaV1)
		require.ErrorIs(t, err, witness.ErrLeafMismatch)
		require.Equal(t, types.KindInvalidEvidence, types.KindOf(err))
	})

	t.Run("空区块头", func(t *testing.T) {
		evidence := &types.Evidence{Kind: types.EvidenceHeaderChain, HeaderChain: &types.HeaderChain{Trusted: txHash}}
		_, err := newBuilder().Build(evidence, testutil.TestAnchor(7, 1000), event, witness.SchemaV1)
		require.ErrorIs(t, err, witness.ErrBrokenLinkage)
	})
}

// TestBuild_UnsupportedSchema 测试未知见证结构版本
func TestBuild_UnsupportedSchema(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	_, err := newBuilder().Build(testutil.MerkleEvidence(event, 0, 2), testutil.TestAnchor(7, 1000), event, 2)
	require.ErrorIs(t, err, types.ErrUnsupportedSchema)
	require.False(t, witness.SupportsSchema(0))
}

// TestBuild_EvidenceShape 测试证据变体与大小校验
func TestBuild_EvidenceShape(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	anchor := testutil.TestAnchor(7, 1000)

	_, err := newBuilder().Build(nil, anchor, event, witness.SchemaV1)
	require.ErrorIs(t, err, witness.ErrEmptyEvidence)

	mixed := testutil.MerkleEvidence(event, 0, 2)
	mixed.HeaderChain = &types.HeaderChain{}
	_, err = newBuilder().Build(mixed, anchor, event, witness.SchemaV1)
	require.ErrorIs(t, err, witness.ErrVariantMismatch)

	unknown := &types.Evidence{Kind: 9}
	_, err = newBuilder().Build(unknown, anchor, event, witness.SchemaV1)
	require.ErrorIs(t, err, witness.ErrVariantMismatch)

	small := witness.New(16, testutil.NewTestLogger())
	_, err = small.Build(testutil.MerkleEvidence(event, 0, 2), anchor, event, witness.SchemaV1)
	require.ErrorIs(t, err, witness.ErrEvidenceTooLarge)
}

// TestCanonicalEvent 测试事件规范编码校验
func TestCanonicalEvent(t *testing.T) {
	event := testutil.TransferEvent(txHash, 100)
	enc, err := witness.CanonicalEvent(event)
	require.NoError(t, err)

	expected, err := rlp.EncodeToBytes(&event)
	require.NoError(t, err)
	require.Equal(t, expected, enc)

	// 非列表负载
	str, _ := rlp.EncodeToBytes("transfer")
	_, err = witness.CanonicalEvent(types.EventDescriptor{Schema: "transfer", Payload: str})
	require.ErrorIs(t, err, witness.ErrNonCanonicalEvent)

	// 尾随字节
	_, err = witness.CanonicalEvent(types.EventDescriptor{Schema: "transfer", Payload: append(common.CopyBytes(event.Payload), 0x00)})
	require.ErrorIs(t, err, witness.ErrNonCanonicalEvent)

	// 非最小长度前缀：单字节 0x01 被编码为 0x81 0x01
	_, err = witness.CanonicalEvent(types.EventDescriptor{Schema: "transfer", Payload: []byte{0xc2, 0x81, 0x01}})
	require.ErrorIs(t, err, witness.ErrNonCanonicalEvent)

	// 空 schema
	_, err = witness.CanonicalEvent(types.EventDescriptor{Payload: event.Payload})
	require.ErrorIs(t, err, witness.ErrNonCanonicalEvent)
}

// TestBuildTree 测试树构建与路径校验一致
func TestBuildTree(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	root, paths := witness.BuildTree(leaves)
	require.Len(t, paths, 3)
	for i, leaf := range leaves {
		require.Len(t, paths[i], 2)
		require.Equal(t, root, witness.ComputeRoot(leaf, uint64(i), paths[i]))
	}

	single, singlePaths := witness.BuildTree([][]byte{[]byte("only")})
	require.Equal(t, witness.HashLeaf([]byte("only")), single)
	require.Empty(t, singlePaths[0])
}
