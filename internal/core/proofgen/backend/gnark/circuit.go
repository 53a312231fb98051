// Package gnark 提供基于 gnark (BN254) 的证明后端：groth16-v1 与 plonk-v1
package gnark

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	bn254mimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/weisyn/zkattest/pkg/types"
)

// numLimbs 私有输入的域元素个数：摘要高/低 16 字节、根高/低 16 字节
const numLimbs = 4

// CommitmentCircuit 见证承诺电路
//
// 证明者知道四个私有域元素，使得 MiMC(limbs ‖ chainID ‖ height) 等于公开承诺。
// 私有元素来自见证摘要与证据根，链 ID 与高度作为公开输入绑定锚点。
type CommitmentCircuit struct {
	Limbs [numLimbs]frontend.Variable

	Commitment frontend.Variable `gnark:",public"`
	ChainID    frontend.Variable `gnark:",public"`
	Height     frontend.Variable `gnark:",public"`
}

// Define 电路约束
func (c *CommitmentCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Limbs[:]...)
	h.Write(c.ChainID, c.Height)
	api.AssertIsEqual(h.Sum(), c.Commitment)
	return nil
}

// splitHash 将 32 字节哈希拆成两个 128 位域元素
func splitHash(h [32]byte) (*big.Int, *big.Int) {
	return new(big.Int).SetBytes(h[:16]), new(big.Int).SetBytes(h[16:])
}

// commitment 电路外计算 MiMC 承诺，与 Define 中的约束一致
func commitment(values []*big.Int) (*big.Int, error) {
	h := bn254mimc.NewMiMC()
	for _, v := range values {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("mimc write: %w", err)
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// assignmentFor 由见证构造完整电路赋值
func assignmentFor(w *types.Witness) (*CommitmentCircuit, error) {
	content := w.Content()
	digestHi, digestLo := splitHash(w.Digest())
	rootHi, rootLo := splitHash(content.Root)
	chainID := new(big.Int).SetUint64(content.ChainID)
	height := new(big.Int).SetUint64(content.Height)

	c, err := commitment([]*big.Int{digestHi, digestLo, rootHi, rootLo, chainID, height})
	if err != nil {
		return nil, err
	}
	return &CommitmentCircuit{
		Limbs:      [numLimbs]frontend.Variable{digestHi, digestLo, rootHi, rootLo},
		Commitment: c,
		ChainID:    chainID,
		Height:     height,
	}, nil
}
