package witness

import (
	"bytes"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// SchemaV1 当前唯一支持的见证结构版本
const SchemaV1 uint32 = 1

// DefaultMaxEvidenceBytes 默认证据大小上限
const DefaultMaxEvidenceBytes = 100 << 20

var supportedSchemas = map[uint32]struct{}{
	SchemaV1: {},
}

// SupportsSchema 是否支持指定见证结构版本
func SupportsSchema(version uint32) bool {
	_, ok := supportedSchemas[version]
	return ok
}

// Builder 见证构建器
//
// 🎯 **职责**：
// - 在投入任何证明资源之前完成廉价校验（大小、事件编码、路径/链接、根）
// - 输出与后端无关、与采集时间无关的规范见证
//
// Builder 无内部可变状态，可被多个 goroutine 并发使用。
type Builder struct {
	maxEvidenceBytes int
	logger           log.Logger
}

var _ proofgen.WitnessBuilder = (*Builder)(nil)

// New 创建见证构建器，maxEvidenceBytes<=0 时使用默认上限
func New(maxEvidenceBytes int, logger log.Logger) *Builder {
	if maxEvidenceBytes <= 0 {
		maxEvidenceBytes = DefaultMaxEvidenceBytes
	}
	if logger != nil {
		logger = logger.With("module", "witness")
	}
	return &Builder{maxEvidenceBytes: maxEvidenceBytes, logger: logger}
}

// Build 校验证据并构建规范见证
func (b *Builder) Build(evidence *types.Evidence, anchor types.Anchor, event types.EventDescriptor, schemaVersion uint32) (*types.Witness, error) {
	if !SupportsSchema(schemaVersion) {
		return nil, types.Errorf(types.KindUnsupportedSchema, "witness.build", "schema version %d", schemaVersion)
	}
	if evidence == nil {
		return nil, invalidEvidence("witness.build", ErrEmptyEvidence, "")
	}
	if size := evidence.Size(); size > b.maxEvidenceBytes {
		return nil, invalidEvidence("witness.build", ErrEvidenceTooLarge, "%d > %d bytes", size, b.maxEvidenceBytes)
	}

	eventEnc, err := CanonicalEvent(event)
	if err != nil {
		return nil, err
	}

	content := types.WitnessContent{
		SchemaVersion: schemaVersion,
		Kind:          uint8(evidence.Kind),
		ChainID:       anchor.ChainID,
		Height:        anchor.Height,
		BlockHash:     anchor.BlockHash,
		EventSchema:   event.Schema,
		EventPayload:  event.Payload,
	}

	switch evidence.Kind {
	case types.EvidenceMerkleBranch:
		mb := evidence.MerkleBranch
		if mb == nil || evidence.HeaderChain != nil {
			return nil, invalidEvidence("witness.build", ErrVariantMismatch, "kind=%s", evidence.Kind)
		}
		if !bytes.Equal(mb.Leaf, eventEnc) {
			return nil, invalidEvidence("witness.merkle", ErrLeafMismatch, "")
		}
		if err := verifyMerkleBranch(mb); err != nil {
			return nil, err
		}
		content.Leaf = mb.Leaf
		content.LeafIndex = mb.Index
		content.Siblings = mb.Siblings
		content.Root = mb.ExpectedRoot

	case types.EvidenceHeaderChain:
		hc := evidence.HeaderChain
		if hc == nil || evidence.MerkleBranch != nil {
			return nil, invalidEvidence("witness.build", ErrVariantMismatch, "kind=%s", evidence.Kind)
		}
		hashes, err := verifyHeaderChain(hc, anchor, eventEnc)
		if err != nil {
			return nil, err
		}
		content.Trusted = hc.Trusted
		content.HeaderHashes = hashes
		content.LeafIndex = hc.EventIndex
		content.Siblings = hc.EventSiblings
		content.Root = hc.Headers[len(hc.Headers)-1].EventsRoot

	default:
		return nil, invalidEvidence("witness.build", ErrVariantMismatch, "unknown kind %s", evidence.Kind)
	}

	w, err := types.NewWitness(content)
	if err != nil {
		return nil, invalidEvidence("witness.build", ErrNonCanonicalEvent, "%v", err)
	}
	if b.logger != nil {
		b.logger.Debugf("见证构建完成: kind=%s anchor=[%s] digest=%s", evidence.Kind, anchor, w.Digest().Hex())
	}
	return w, nil
}
