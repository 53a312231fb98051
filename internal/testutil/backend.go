package testutil

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// fakeKey 假后端的对称密钥
type fakeKey struct {
	secret []byte
}

// FakeBackend 可控行为的假证明后端
//
// 证明 = keccak256(secret ‖ publicInputs)，验证时重新计算比较。
// 可注入：证明延迟、阻塞闸门、前 N 次临时失败、前 N 次输出无效证明、见证结构错误。
type FakeBackend struct {
	desc types.BackendDescriptor

	ProveCalls atomic.Int64
	SetupCalls atomic.Int64

	mu            sync.Mutex
	proveDelay    time.Duration
	gate          chan struct{}
	started       chan struct{}
	transientLeft int
	lieLeft       int
	shapeFailure  bool
}

var _ proofgen.BackendPlugin = (*FakeBackend)(nil)

// NewFakeBackend 创建假后端
func NewFakeBackend(id string, version uint32) *FakeBackend {
	return &FakeBackend{
		desc: types.BackendDescriptor{ID: id, Version: version, WitnessSchemaVersion: 1},
	}
}

// WithVersion 返回同 id 不同版本的新实例（用于升级测试）
func (b *FakeBackend) WithVersion(version uint32) *FakeBackend {
	return NewFakeBackend(b.desc.ID, version)
}

// SetProveDelay 设置证明耗时
func (b *FakeBackend) SetProveDelay(d time.Duration) {
	b.mu.Lock()
	b.proveDelay = d
	b.mu.Unlock()
}

// Block 使后续 Prove 阻塞直到返回的释放函数被调用；started 在每次 Prove 开始时收到信号
func (b *FakeBackend) Block() (started <-chan struct{}, release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gate := make(chan struct{})
	b.gate = gate
	b.started = make(chan struct{}, 64)
	var once sync.Once
	return b.started, func() { once.Do(func() { close(gate) }) }
}

// FailTransient 前 n 次 Prove 返回临时错误
func (b *FakeBackend) FailTransient(n int) {
	b.mu.Lock()
	b.transientLeft = n
	b.mu.Unlock()
}

// Lie 前 n 次 Prove 返回无法通过验证的证明；n<0 表示始终如此
func (b *FakeBackend) Lie(n int) {
	b.mu.Lock()
	b.lieLeft = n
	b.mu.Unlock()
}

// RejectShape 使 Prove 返回见证结构错误
func (b *FakeBackend) RejectShape() {
	b.mu.Lock()
	b.shapeFailure = true
	b.mu.Unlock()
}

func (b *FakeBackend) Descriptor() types.BackendDescriptor { return b.desc }

func (b *FakeBackend) secret() []byte {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], b.desc.Version)
	return crypto.Keccak256([]byte(b.desc.ID), v[:])
}

func (b *FakeBackend) Setup(ctx context.Context, params proofgen.SetupParams) (proofgen.ProvingKey, proofgen.VerifyingKey, error) {
	b.SetupCalls.Add(1)
	k := &fakeKey{secret: b.secret()}
	return k, k, nil
}

func (b *FakeBackend) Prove(ctx context.Context, pk proofgen.ProvingKey, w *types.Witness) (proofgen.Proof, error) {
	b.ProveCalls.Add(1)

	b.mu.Lock()
	delay, gate, started := b.proveDelay, b.gate, b.started
	transient := b.transientLeft > 0
	if transient {
		b.transientLeft--
	}
	lie := b.lieLeft != 0
	if b.lieLeft > 0 {
		b.lieLeft--
	}
	shape := b.shapeFailure
	b.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	if shape {
		return nil, backend.WrapShapeError(b.desc.ID, fmt.Errorf("limb count mismatch"))
	}
	if transient {
		return nil, fmt.Errorf("%w: simulated", backend.ErrTransient)
	}

	key, ok := pk.(*fakeKey)
	if !ok {
		return nil, backend.WrapDecodeError("proving key", fmt.Errorf("unexpected type %T", pk))
	}
	pub, err := b.PublicInputs(w)
	if err != nil {
		return nil, err
	}
	if lie {
		return crypto.Keccak256([]byte("bogus"), pub), nil
	}
	return crypto.Keccak256(key.secret, pub), nil
}

func (b *FakeBackend) PublicInputs(w *types.Witness) ([]byte, error) {
	digest := w.Digest()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], w.Anchor().ChainID)
	binary.BigEndian.PutUint64(buf[8:], w.Anchor().Height)
	return append(common.CopyBytes(digest[:]), buf[:]...), nil
}

func (b *FakeBackend) Verify(proof proofgen.Proof, publicInputs []byte, vk proofgen.VerifyingKey) (bool, error) {
	raw, ok := proof.([]byte)
	if !ok {
		return false, backend.WrapDecodeError("proof", fmt.Errorf("unexpected type %T", proof))
	}
	key, ok := vk.(*fakeKey)
	if !ok {
		return false, backend.WrapDecodeError("verifying key", fmt.Errorf("unexpected type %T", vk))
	}
	return string(raw) == string(crypto.Keccak256(key.secret, publicInputs)), nil
}

func (b *FakeBackend) SerializeProof(proof proofgen.Proof) ([]byte, error) {
	raw, ok := proof.([]byte)
	if !ok {
		return nil, backend.WrapDecodeError("proof", fmt.Errorf("unexpected type %T", proof))
	}
	return common.CopyBytes(raw), nil
}

func (b *FakeBackend) DeserializeProof(data []byte) (proofgen.Proof, error) {
	if len(data) != 32 {
		return nil, backend.WrapDecodeError("proof", fmt.Errorf("length %d", len(data)))
	}
	return common.CopyBytes(data), nil
}

func (b *FakeBackend) SerializeProvingKey(pk proofgen.ProvingKey) ([]byte, error) {
	return b.serializeKey(pk)
}

func (b *FakeBackend) DeserializeProvingKey(data []byte) (proofgen.ProvingKey, error) {
	return &fakeKey{secret: common.CopyBytes(data)}, nil
}

func (b *FakeBackend) SerializeVerifyingKey(vk proofgen.VerifyingKey) ([]byte, error) {
	return b.serializeKey(vk)
}

func (b *FakeBackend) DeserializeVerifyingKey(data []byte) (proofgen.VerifyingKey, error) {
	return &fakeKey{secret: common.CopyBytes(data)}, nil
}

func (b *FakeBackend) serializeKey(k interface{}) ([]byte, error) {
	key, ok := k.(*fakeKey)
	if !ok {
		return nil, backend.WrapDecodeError("key", fmt.Errorf("unexpected type %T", k))
	}
	return common.CopyBytes(key.secret), nil
}
