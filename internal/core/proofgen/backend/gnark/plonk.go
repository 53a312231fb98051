package gnark

import (
	"context"
	"fmt"
	"time"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/test/unsafekzg"

	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// PlonkID plonk 后端标识
const PlonkID = "plonk-v1"

// Plonk 基于 SCS 的 PLONK 后端，KZG SRS 由 unsafekzg 生成（开发用）
type Plonk struct {
	scheme
}

var _ proofgen.BackendPlugin = (*Plonk)(nil)

// NewPlonk 创建 plonk 后端
func NewPlonk(opts ...Option) *Plonk {
	b := &Plonk{}
	b.init(PlonkID, scs.NewBuilder, opts)
	return b
}

// Setup 编译电路、生成 SRS 并执行 plonk setup
func (p *Plonk) Setup(ctx context.Context, params proofgen.SetupParams) (proofgen.ProvingKey, proofgen.VerifyingKey, error) {
	ccs, err := p.checkSetup(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()

	// SRS 大小随约束数变化
	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kzg srs: %v", backend.ErrResourceAllocation, err)
	}
	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, nil, fmt.Errorf("plonk setup: %w", err)
	}
	if p.logger != nil {
		p.logger.Infof("plonk setup 完成: constraints=%d 耗时=%v", ccs.GetNbConstraints(), time.Since(start))
	}
	return pk, vk, nil
}

// Prove 生成 plonk 证明
func (p *Plonk) Prove(ctx context.Context, pk proofgen.ProvingKey, w *types.Witness) (proofgen.Proof, error) {
	key, ok := pk.(plonk.ProvingKey)
	if !ok {
		return nil, backend.WrapDecodeError("proving key", fmt.Errorf("unexpected type %T", pk))
	}
	ccs, err := p.compiled()
	if err != nil {
		return nil, err
	}
	full, err := p.fullWitness(w)
	if err != nil {
		return nil, err
	}
	return p.proveSafely(func() (proofgen.Proof, error) {
		return plonk.Prove(ccs, key, full)
	})
}

// Verify 验证 plonk 证明
func (p *Plonk) Verify(proof proofgen.Proof, publicInputs []byte, vk proofgen.VerifyingKey) (bool, error) {
	pr, ok := proof.(plonk.Proof)
	if !ok {
		return false, backend.WrapDecodeError("proof", fmt.Errorf("unexpected type %T", proof))
	}
	key, ok := vk.(plonk.VerifyingKey)
	if !ok {
		return false, backend.WrapDecodeError("verifying key", fmt.Errorf("unexpected type %T", vk))
	}
	public, err := decodePublic(publicInputs)
	if err != nil {
		return false, err
	}
	if err := plonk.Verify(pr, key, public); err != nil {
		return false, nil
	}
	return true, nil
}

func (p *Plonk) SerializeProof(proof proofgen.Proof) ([]byte, error) {
	return serialize("proof", proof)
}

func (p *Plonk) DeserializeProof(data []byte) (proofgen.Proof, error) {
	pr := plonk.NewProof(curveID)
	if err := deserialize("proof", data, pr); err != nil {
		return nil, err
	}
	return pr, nil
}

func (p *Plonk) SerializeProvingKey(pk proofgen.ProvingKey) ([]byte, error) {
	return serialize("proving key", pk)
}

func (p *Plonk) DeserializeProvingKey(data []byte) (proofgen.ProvingKey, error) {
	pk := plonk.NewProvingKey(curveID)
	if err := deserialize("proving key", data, pk); err != nil {
		return nil, err
	}
	return pk, nil
}

func (p *Plonk) SerializeVerifyingKey(vk proofgen.VerifyingKey) ([]byte, error) {
	return serialize("verifying key", vk)
}

func (p *Plonk) DeserializeVerifyingKey(data []byte) (proofgen.VerifyingKey, error) {
	vk := plonk.NewVerifyingKey(curveID)
	if err := deserialize("verifying key", data, vk); err != nil {
		return nil, err
	}
	return vk, nil
}
