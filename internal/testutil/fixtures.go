package testutil

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/weisyn/zkattest/internal/core/proofgen/witness"
	"github.com/weisyn/zkattest/pkg/types"
)

// TransferEvent 构造转账事件，负载为 [tx, from, to, amount] 的规范 RLP 列表
func TransferEvent(tx common.Hash, amount uint64) types.EventDescriptor {
	payload, err := rlp.EncodeToBytes([]interface{}{
		tx,
		common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		amount,
	})
	if err != nil {
		panic(err)
	}
	return types.EventDescriptor{Schema: "transfer", Payload: payload}
}

// TestAnchor 构造锚点，区块哈希由链 ID 与高度派生
func TestAnchor(chainID, height uint64) types.Anchor {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], chainID)
	binary.BigEndian.PutUint64(buf[8:], height)
	return types.Anchor{ChainID: chainID, Height: height, BlockHash: crypto.Keccak256Hash(buf[:])}
}

// MerkleEvidence 把事件编码放在第 index 个叶子，其余为填充叶子
func MerkleEvidence(event types.EventDescriptor, index, total int) *types.Evidence {
	if index >= total {
		panic(fmt.Sprintf("index %d out of %d leaves", index, total))
	}
	enc, err := event.CanonicalEncoding()
	if err != nil {
		panic(err)
	}

	leaves := make([][]byte, total)
	for i := range leaves {
		if i == index {
			leaves[i] = enc
			continue
		}
		leaves[i] = []byte(fmt.Sprintf("filler-leaf-%d", i))
	}
	root, paths := witness.BuildTree(leaves)

	return &types.Evidence{
		Kind: types.EvidenceMerkleBranch,
		MerkleBranch: &types.MerkleBranch{
			Leaf:         enc,
			Index:        uint64(index),
			Depth:        uint32(len(paths[index])),
			Siblings:     paths[index],
			ExpectedRoot: root,
		},
	}
}

// HeaderChainEvidence 构造从检查点延伸 n 个区块到 height 的区块头链，
// 末端区块只含该事件；返回证据与对应锚点
func HeaderChainEvidence(chainID, height uint64, n int, event types.EventDescriptor) (*types.Evidence, types.Anchor) {
	return HeaderChainEvidenceAt(chainID, height, n, event, 0, 1)
}

// HeaderChainEvidenceAt 同 HeaderChainEvidence，但末端区块含 total 个事件，
// 所声明的事件位于第 index 个
func HeaderChainEvidenceAt(chainID, height uint64, n int, event types.EventDescriptor, index, total int) (*types.Evidence, types.Anchor) {
	if index >= total {
		panic(fmt.Sprintf("index %d out of %d events", index, total))
	}
	enc, err := event.CanonicalEncoding()
	if err != nil {
		panic(err)
	}
	leaves := make([][]byte, total)
	for i := range leaves {
		if i == index {
			leaves[i] = enc
			continue
		}
		leaves[i] = []byte(fmt.Sprintf("block-event-%d", i))
	}
	eventsRoot, paths := witness.BuildTree(leaves)

	trusted := crypto.Keccak256Hash([]byte(fmt.Sprintf("checkpoint-%d-%d", chainID, height)))
	headers := make([]types.ChainHeader, n)
	parent := trusted
	for i := 0; i < n; i++ {
		number := height - uint64(n-1-i)
		headers[i] = types.ChainHeader{
			ParentHash: parent,
			Number:     number,
			StateRoot:  crypto.Keccak256Hash([]byte(fmt.Sprintf("state-%d", number))),
			EventsRoot: crypto.Keccak256Hash([]byte(fmt.Sprintf("events-%d", number))),
		}
		if i == n-1 {
			headers[i].EventsRoot = eventsRoot
		}
		parent = headers[i].Hash()
	}

	evidence := &types.Evidence{
		Kind: types.EvidenceHeaderChain,
		HeaderChain: &types.HeaderChain{
			Trusted:       trusted,
			Headers:       headers,
			EventIndex:    uint64(index),
			EventSiblings: paths[index],
		},
	}
	return evidence, types.Anchor{ChainID: chainID, Height: height, BlockHash: parent}
}
