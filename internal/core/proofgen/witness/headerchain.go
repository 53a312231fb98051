package witness

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/zkattest/pkg/types"
)

// verifyHeaderChain 校验区块头链段从可信检查点连续延伸到锚点，
// 且事件沿 EventSiblings 路径归入锚点区块的事件根，返回各区块头哈希
func verifyHeaderChain(hc *types.HeaderChain, anchor types.Anchor, eventEncoding []byte) ([]common.Hash, error) {
	const op = "witness.headerchain"

	if len(hc.Headers) == 0 {
		return nil, invalidEvidence(op, ErrBrokenLinkage, "no headers")
	}
	if hc.Trusted == (common.Hash{}) {
		return nil, invalidEvidence(op, ErrBrokenLinkage, "missing trusted checkpoint")
	}

	hashes := make([]common.Hash, len(hc.Headers))
	parent := hc.Trusted
	for i := range hc.Headers {
		h := &hc.Headers[i]
		if h.ParentHash != parent {
			return nil, invalidEvidence(op, ErrBrokenLinkage, "header %d parent=%s want=%s",
				i, h.ParentHash.TerminalString(), parent.TerminalString())
		}
		if i > 0 && h.Number != hc.Headers[i-1].Number+1 {
			return nil, invalidEvidence(op, ErrBrokenLinkage, "header %d number=%d want=%d",
				i, h.Number, hc.Headers[i-1].Number+1)
		}
		hashes[i] = h.Hash()
		parent = hashes[i]
	}

	last := &hc.Headers[len(hc.Headers)-1]
	if hashes[len(hashes)-1] != anchor.BlockHash || last.Number != anchor.Height {
		return nil, invalidEvidence(op, ErrAnchorMismatch, "tip=(%d,%s) anchor=(%d,%s)",
			last.Number, hashes[len(hashes)-1].TerminalString(), anchor.Height, anchor.BlockHash.TerminalString())
	}

	inclusion := &types.MerkleBranch{
		Leaf:         eventEncoding,
		Index:        hc.EventIndex,
		Depth:        uint32(len(hc.EventSiblings)),
		Siblings:     hc.EventSiblings,
		ExpectedRoot: last.EventsRoot,
	}
	if err := verifyMerkleBranch(inclusion); err != nil {
		if errors.Is(err, ErrRootMismatch) {
			return nil, invalidEvidence(op, ErrLeafMismatch, "event not committed by events root %s",
				last.EventsRoot.TerminalString())
		}
		return nil, err
	}
	return hashes, nil
}
