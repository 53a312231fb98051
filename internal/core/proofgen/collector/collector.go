// Package collector 提供证据采集实现：内存静态源与 JSON 文件目录源
//
// 链上 RPC/索引服务属于外部系统，由调用方实现 proofgen.EvidenceCollector 接入。
package collector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// Key 证据索引键：keccak256(chain_id ‖ height ‖ block_hash ‖ event 规范编码)
func Key(anchor types.Anchor, event types.EventDescriptor) (common.Hash, error) {
	enc, err := event.CanonicalEncoding()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode event: %w", err)
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], anchor.ChainID)
	binary.BigEndian.PutUint64(buf[8:], anchor.Height)
	return crypto.Keccak256Hash(buf[:], anchor.BlockHash[:], enc), nil
}

// Static 内存证据源
type Static struct {
	mu      sync.RWMutex
	entries map[common.Hash]*types.Evidence
}

var _ proofgen.EvidenceCollector = (*Static)(nil)

// NewStatic 创建空的内存证据源
func NewStatic() *Static {
	return &Static{entries: make(map[common.Hash]*types.Evidence)}
}

// Add 登记一份证据，相同锚点与事件会覆盖旧值
func (s *Static) Add(anchor types.Anchor, event types.EventDescriptor, evidence *types.Evidence) error {
	if evidence == nil {
		return fmt.Errorf("nil evidence")
	}
	key, err := Key(anchor, event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = evidence
	s.mu.Unlock()
	return nil
}

// Len 已登记的证据数量
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Fetch 查询证据，不存在时返回 types.ErrNotFound
func (s *Static) Fetch(ctx context.Context, anchor types.Anchor, event types.EventDescriptor) (*types.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := Key(anchor, event)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	evidence, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s schema=%s", types.ErrNotFound, anchor, event.Schema)
	}
	return evidence, nil
}

// Func 函数适配器
type Func func(ctx context.Context, anchor types.Anchor, event types.EventDescriptor) (*types.Evidence, error)

// Fetch 调用 f
func (f Func) Fetch(ctx context.Context, anchor types.Anchor, event types.EventDescriptor) (*types.Evidence, error) {
	return f(ctx, anchor, event)
}

// Chain 依次查询多个证据源，返回第一个命中的结果
//
// 某个源返回 ErrNotFound 时继续查询下一个；其他错误立即返回。
type Chain []proofgen.EvidenceCollector

var _ proofgen.EvidenceCollector = Chain(nil)

// Fetch 按顺序查询
func (c Chain) Fetch(ctx context.Context, anchor types.Anchor, event types.EventDescriptor) (*types.Evidence, error) {
	for _, src := range c {
		evidence, err := src.Fetch(ctx, anchor, event)
		if err == nil {
			return evidence, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s schema=%s", types.ErrNotFound, anchor, event.Schema)
}
