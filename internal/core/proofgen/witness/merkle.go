package witness

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/weisyn/zkattest/pkg/types"
)

// MaxMerkleDepth 支持的最大树深
const MaxMerkleDepth = 64

// HashLeaf 叶子哈希
func HashLeaf(leaf []byte) common.Hash {
	return crypto.Keccak256Hash(leaf)
}

// HashNode 内部节点哈希：keccak256(left ‖ right)
func HashNode(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

// ComputeRoot 沿路径计算根
// index 的第 i 位为 1 表示第 i 层当前节点是右孩子
func ComputeRoot(leaf []byte, index uint64, siblings []common.Hash) common.Hash {
	h := HashLeaf(leaf)
	for i, sibling := range siblings {
		if (index>>uint(i))&1 == 1 {
			h = HashNode(sibling, h)
		} else {
			h = HashNode(h, sibling)
		}
	}
	return h
}

// verifyMerkleBranch 校验 Merkle 包含证明的结构与根
func verifyMerkleBranch(mb *types.MerkleBranch) error {
	const op = "witness.merkle"

	if len(mb.Leaf) == 0 {
		return invalidEvidence(op, ErrMalformedPath, "empty leaf")
	}
	if mb.Depth > MaxMerkleDepth {
		return invalidEvidence(op, ErrMalformedPath, "depth %d exceeds %d", mb.Depth, MaxMerkleDepth)
	}
	if uint32(len(mb.Siblings)) != mb.Depth {
		return invalidEvidence(op, ErrPathLength, "depth=%d siblings=%d", mb.Depth, len(mb.Siblings))
	}
	if mb.Depth < 64 && mb.Index>>mb.Depth != 0 {
		return invalidEvidence(op, ErrMalformedPath, "index %d out of range for depth %d", mb.Index, mb.Depth)
	}

	root := ComputeRoot(mb.Leaf, mb.Index, mb.Siblings)
	if root != mb.ExpectedRoot {
		return invalidEvidence(op, ErrRootMismatch, "computed=%s expected=%s", root.Hex(), mb.ExpectedRoot.Hex())
	}
	return nil
}

// BuildTree 为叶子集合构建 Merkle 树，返回根与每个叶子的路径
//
// 叶子数补齐到 2 的幂，补齐位置的叶子哈希为零哈希。供采集方与测试构造证据使用。
func BuildTree(leaves [][]byte) (common.Hash, [][]common.Hash) {
	if len(leaves) == 0 {
		return common.Hash{}, nil
	}

	depth := 0
	for (1 << depth) < len(leaves) {
		depth++
	}

	level := make([]common.Hash, 1<<depth)
	for i, leaf := range leaves {
		level[i] = HashLeaf(leaf)
	}

	paths := make([][]common.Hash, len(leaves))
	positions := make([]int, len(leaves))
	for i := range leaves {
		positions[i] = i
		paths[i] = make([]common.Hash, 0, depth)
	}

	for len(level) > 1 {
		for i := range leaves {
			paths[i] = append(paths[i], level[positions[i]^1])
			positions[i] /= 2
		}
		next := make([]common.Hash, len(level)/2)
		for j := range next {
			next[j] = HashNode(level[2*j], level[2*j+1])
		}
		level = next
	}
	return level[0], paths
}
