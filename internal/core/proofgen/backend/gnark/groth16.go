package gnark

import (
	"context"
	"fmt"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// Groth16ID groth16 后端标识
const Groth16ID = "groth16-v1"

// Groth16 基于 R1CS 的 groth16 后端
type Groth16 struct {
	scheme
}

var _ proofgen.BackendPlugin = (*Groth16)(nil)

// NewGroth16 创建 groth16 后端
func NewGroth16(opts ...Option) *Groth16 {
	b := &Groth16{}
	b.init(Groth16ID, r1cs.NewBuilder, opts)
	return b
}

// Setup 编译电路并执行 groth16 可信设置
func (g *Groth16) Setup(ctx context.Context, params proofgen.SetupParams) (proofgen.ProvingKey, proofgen.VerifyingKey, error) {
	ccs, err := g.checkSetup(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("groth16 setup: %w", err)
	}
	if g.logger != nil {
		g.logger.Infof("groth16 setup 完成: constraints=%d 耗时=%v", ccs.GetNbConstraints(), time.Since(start))
	}
	return pk, vk, nil
}

// Prove 生成 groth16 证明
func (g *Groth16) Prove(ctx context.Context, pk proofgen.ProvingKey, w *types.Witness) (proofgen.Proof, error) {
	key, ok := pk.(groth16.ProvingKey)
	if !ok {
		return nil, backend.WrapDecodeError("proving key", fmt.Errorf("unexpected type %T", pk))
	}
	ccs, err := g.compiled()
	if err != nil {
		return nil, err
	}
	full, err := g.fullWitness(w)
	if err != nil {
		return nil, err
	}
	return g.proveSafely(func() (proofgen.Proof, error) {
		return groth16.Prove(ccs, key, full)
	})
}

// Verify 验证 groth16 证明
func (g *Groth16) Verify(proof proofgen.Proof, publicInputs []byte, vk proofgen.VerifyingKey) (bool, error) {
	p, ok := proof.(groth16.Proof)
	if !ok {
		return false, backend.WrapDecodeError("proof", fmt.Errorf("unexpected type %T", proof))
	}
	key, ok := vk.(groth16.VerifyingKey)
	if !ok {
		return false, backend.WrapDecodeError("verifying key", fmt.Errorf("unexpected type %T", vk))
	}
	public, err := decodePublic(publicInputs)
	if err != nil {
		return false, err
	}
	if err := groth16.Verify(p, key, public); err != nil {
		return false, nil
	}
	return true, nil
}

func (g *Groth16) SerializeProof(proof proofgen.Proof) ([]byte, error) {
	return serialize("proof", proof)
}

func (g *Groth16) DeserializeProof(data []byte) (proofgen.Proof, error) {
	p := groth16.NewProof(curveID)
	if err := deserialize("proof", data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (g *Groth16) SerializeProvingKey(pk proofgen.ProvingKey) ([]byte, error) {
	return serialize("proving key", pk)
}

func (g *Groth16) DeserializeProvingKey(data []byte) (proofgen.ProvingKey, error) {
	pk := groth16.NewProvingKey(curveID)
	if err := deserialize("proving key", data, pk); err != nil {
		return nil, err
	}
	return pk, nil
}

func (g *Groth16) SerializeVerifyingKey(vk proofgen.VerifyingKey) ([]byte, error) {
	return serialize("verifying key", vk)
}

func (g *Groth16) DeserializeVerifyingKey(data []byte) (proofgen.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(curveID)
	if err := deserialize("verifying key", data, vk); err != nil {
		return nil, err
	}
	return vk, nil
}
