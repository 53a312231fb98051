// Package types provides zero-knowledge proof type definitions.
package types

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Anchor 源链历史中的一个确定位置
//
// 📋 **字段说明**：
// - ChainID：源链标识
// - Height：区块高度或 slot
// - BlockHash：该位置的区块哈希
type Anchor struct {
	ChainID   uint64      `json:"chain_id"`
	Height    uint64      `json:"height"`
	BlockHash common.Hash `json:"block_hash"`
}

// String 便于日志输出
func (a Anchor) String() string {
	return fmt.Sprintf("chain=%d height=%d hash=%s", a.ChainID, a.Height, a.BlockHash.TerminalString())
}

// IsZero 锚点是否未设置
func (a Anchor) IsZero() bool {
	return a.ChainID == 0 && a.Height == 0 && a.BlockHash == (common.Hash{})
}

// EventDescriptor 被证明事实的描述
//
// Schema 为事实类型标签（如 "transfer"、"storage_slot"），Payload 必须是规范 RLP 列表编码。
type EventDescriptor struct {
	Schema  string `json:"schema"`
	Payload []byte `json:"payload"`
}

// CanonicalEncoding 返回事件的规范字节编码（RLP）
func (e EventDescriptor) CanonicalEncoding() ([]byte, error) {
	return rlp.EncodeToBytes(&e)
}

// EvidenceKind 证据类型
type EvidenceKind uint8

const (
	// EvidenceMerkleBranch Merkle 包含证明（叶子 + 路径 + 期望根）
	EvidenceMerkleBranch EvidenceKind = 1
	// EvidenceHeaderChain 轻客户端区块头链段
	EvidenceHeaderChain EvidenceKind = 2
)

// String 返回证据类型名称
func (k EvidenceKind) String() string {
	switch k {
	case EvidenceMerkleBranch:
		return "merkle_branch"
	case EvidenceHeaderChain:
		return "header_chain"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MerkleBranch Merkle 包含证明
type MerkleBranch struct {
	Leaf         []byte        `json:"leaf"`
	Index        uint64        `json:"index"`
	Depth        uint32        `json:"depth"`
	Siblings     []common.Hash `json:"siblings"`
	ExpectedRoot common.Hash   `json:"expected_root"`
}

// ChainHeader 轻客户端视角的区块头
type ChainHeader struct {
	ParentHash common.Hash `json:"parent_hash"`
	Number     uint64      `json:"number"`
	StateRoot  common.Hash `json:"state_root"`
	EventsRoot common.Hash `json:"events_root"`
	Extra      []byte      `json:"extra"`
}

// Hash 区块头哈希：keccak256(rlp(header))
func (h *ChainHeader) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		// ChainHeader 只包含 RLP 可编码字段
		panic(fmt.Sprintf("encode chain header: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

// HeaderChain 从可信检查点到锚点的连续区块头
//
// EventIndex/EventSiblings 是事件在锚点区块事件树中的路径；区块只含一个事件时
// 路径为空，事件根即事件编码的哈希。
type HeaderChain struct {
	Trusted       common.Hash   `json:"trusted"`
	Headers       []ChainHeader `json:"headers"`
	EventIndex    uint64        `json:"event_index,omitempty"`
	EventSiblings []common.Hash `json:"event_siblings,omitempty"`
}

// Evidence 原始证据（仅在构建见证期间存在，不持久化）
//
// ⚠️ **变体约束**：Kind 决定哪一个变体字段有效，另一个必须为 nil。
type Evidence struct {
	Kind         EvidenceKind  `json:"kind"`
	MerkleBranch *MerkleBranch `json:"merkle_branch,omitempty"`
	HeaderChain  *HeaderChain  `json:"header_chain,omitempty"`
}

// Size 证据的近似字节大小，用于输入大小限制
func (e *Evidence) Size() int {
	if e == nil {
		return 0
	}
	size := 0
	if mb := e.MerkleBranch; mb != nil {
		size += len(mb.Leaf) + len(mb.Siblings)*common.HashLength + 48
	}
	if hc := e.HeaderChain; hc != nil {
		size += common.HashLength + 8 + len(hc.EventSiblings)*common.HashLength
		for i := range hc.Headers {
			size += 3*common.HashLength + 8 + len(hc.Headers[i].Extra)
		}
	}
	return size
}

// WitnessContent 见证的语义内容，规范编码与摘要只覆盖这些字段
type WitnessContent struct {
	SchemaVersion uint32
	Kind          uint8
	ChainID       uint64
	Height        uint64
	BlockHash     common.Hash
	EventSchema   string
	EventPayload  []byte
	Leaf          []byte
	LeafIndex     uint64
	Siblings      []common.Hash
	Root          common.Hash
	Trusted       common.Hash
	HeaderHashes  []common.Hash
}

// Witness 规范化、与后端无关的见证
//
// 构建后不可变；摘要是规范编码的 keccak256，与采集时间、顺序无关。
type Witness struct {
	content  WitnessContent
	encoding []byte
	digest   common.Hash
}

// NewWitness 从语义内容构建见证并计算规范编码与摘要
func NewWitness(content WitnessContent) (*Witness, error) {
	encoding, err := rlp.EncodeToBytes(&content)
	if err != nil {
		return nil, fmt.Errorf("encode witness: %w", err)
	}
	return &Witness{
		content:  content,
		encoding: encoding,
		digest:   crypto.Keccak256Hash(encoding),
	}, nil
}

// DecodeWitness 从规范编码恢复见证
func DecodeWitness(encoding []byte) (*Witness, error) {
	var content WitnessContent
	if err := rlp.DecodeBytes(encoding, &content); err != nil {
		return nil, fmt.Errorf("decode witness: %w", err)
	}
	return NewWitness(content)
}

// Digest 内容摘要
func (w *Witness) Digest() common.Hash { return w.digest }

// Encoding 规范编码的副本
func (w *Witness) Encoding() []byte { return common.CopyBytes(w.encoding) }

// Size 规范编码字节数
func (w *Witness) Size() int { return len(w.encoding) }

// SchemaVersion 见证结构版本
func (w *Witness) SchemaVersion() uint32 { return w.content.SchemaVersion }

// Kind 证据类型
func (w *Witness) Kind() EvidenceKind { return EvidenceKind(w.content.Kind) }

// Anchor 见证绑定的锚点
func (w *Witness) Anchor() Anchor {
	return Anchor{ChainID: w.content.ChainID, Height: w.content.Height, BlockHash: w.content.BlockHash}
}

// Content 语义内容的深拷贝
func (w *Witness) Content() WitnessContent {
	c := w.content
	c.EventPayload = common.CopyBytes(c.EventPayload)
	c.Leaf = common.CopyBytes(c.Leaf)
	c.Siblings = append([]common.Hash(nil), c.Siblings...)
	c.HeaderHashes = append([]common.Hash(nil), c.HeaderHashes...)
	return c
}

// BackendDescriptor 可插拔证明系统的标识
type BackendDescriptor struct {
	ID                   string `json:"backend_id"`
	Version              uint32 `json:"version"`
	WitnessSchemaVersion uint32 `json:"witness_schema_version"`
}

// String 如 "plonk-v1@3"
func (d BackendDescriptor) String() string {
	return fmt.Sprintf("%s@%d", d.ID, d.Version)
}

// ProofRequest 调用方输入
type ProofRequest struct {
	ChainID   uint64          `json:"chain_id"`
	Anchor    Anchor          `json:"anchor"`
	Event     EventDescriptor `json:"event"`
	BackendID string          `json:"backend_id"`
	Priority  int             `json:"priority"`
	// Deadline 零值表示无截止时间
	Deadline time.Time `json:"deadline,omitempty"`
	// Evidence 调用方已持有的证据，可选；只用于本次请求的见证构建，之后即丢弃
	Evidence *Evidence `json:"evidence,omitempty"`
}

// HasDeadline 是否设置了截止时间
func (r *ProofRequest) HasDeadline() bool { return !r.Deadline.IsZero() }

// ArtifactMetadata 证明生成元数据
type ArtifactMetadata struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	GenerationTime time.Duration `json:"generation_time"`
	ProofSize      int           `json:"proof_size"`
	Attempts       int           `json:"attempts"`
	// CircuitHash 验证密钥序列化后的 keccak256
	CircuitHash common.Hash `json:"circuit_hash"`
	// AllocatedBytes 近似资源开销：证明密钥序列化大小 + 见证编码大小
	AllocatedBytes uint64 `json:"allocated_bytes"`
}

// ProofArtifact 已通过自检的证明结果，创建后不可变
type ProofArtifact struct {
	ProofBytes    []byte            `json:"proof_bytes"`
	PublicInputs  []byte            `json:"public_inputs"`
	Backend       BackendDescriptor `json:"backend"`
	WitnessDigest common.Hash       `json:"witness_digest"`
	Metadata      ArtifactMetadata  `json:"metadata"`
}

// Clone 深拷贝，避免调用方修改共享结果
func (a *ProofArtifact) Clone() *ProofArtifact {
	if a == nil {
		return nil
	}
	c := *a
	c.ProofBytes = common.CopyBytes(a.ProofBytes)
	c.PublicInputs = common.CopyBytes(a.PublicInputs)
	return &c
}
