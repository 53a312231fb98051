// Package sink 提供结果投递实现
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// Delivery 一次投递记录
type Delivery struct {
	RequestID string
	Artifact  *types.ProofArtifact
}

// ============================================================================
//                              日志投递
// ============================================================================

// Log 将结果摘要写入日志
type Log struct {
	logger log.Logger
}

var _ proofgen.ResultSink = (*Log)(nil)

// NewLog 创建日志投递
func NewLog(logger log.Logger) *Log {
	return &Log{logger: logger.With("module", "sink")}
}

func (s *Log) Deliver(ctx context.Context, requestID string, artifact *types.ProofArtifact) error {
	s.logger.Infof("证明结果: request=%s backend=%s digest=%s size=%d attempts=%d",
		requestID, artifact.Backend, artifact.WitnessDigest.Hex(), artifact.Metadata.ProofSize, artifact.Metadata.Attempts)
	return nil
}

// ============================================================================
//                              内存投递
// ============================================================================

// Memory 在内存中保存最近的投递，供查询与测试使用
type Memory struct {
	mu       sync.Mutex
	limit    int
	items    []Delivery
	byID     map[string]*types.ProofArtifact
	notifyCh chan Delivery
}

var _ proofgen.ResultSink = (*Memory)(nil)

// NewMemory 创建内存投递，limit<=0 表示不限制
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit, byID: make(map[string]*types.ProofArtifact)}
}

// Notify 返回投递通知通道（带缓冲，满时丢弃通知）
func (s *Memory) Notify(buffer int) <-chan Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyCh == nil {
		s.notifyCh = make(chan Delivery, buffer)
	}
	return s.notifyCh
}

func (s *Memory) Deliver(ctx context.Context, requestID string, artifact *types.ProofArtifact) error {
	d := Delivery{RequestID: requestID, Artifact: artifact.Clone()}

	s.mu.Lock()
	s.items = append(s.items, d)
	s.byID[requestID] = d.Artifact
	if s.limit > 0 && len(s.items) > s.limit {
		evicted := s.items[0]
		s.items = s.items[1:]
		delete(s.byID, evicted.RequestID)
	}
	ch := s.notifyCh
	s.mu.Unlock()

	if ch != nil {
		select {
		case ch <- d:
		default:
		}
	}
	return nil
}

// Get 查询某请求的投递结果
func (s *Memory) Get(requestID string) (*types.ProofArtifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[requestID]
	return a.Clone(), ok
}

// Lookup 与 Store.Lookup 相同的查询形式，不存在时返回 nil
func (s *Memory) Lookup(_ context.Context, requestID string) (*types.ProofArtifact, error) {
	a, _ := s.Get(requestID)
	return a, nil
}

// Deliveries 返回所有投递记录的副本
func (s *Memory) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.items))
	for i, d := range s.items {
		out[i] = Delivery{RequestID: d.RequestID, Artifact: d.Artifact.Clone()}
	}
	return out
}

// Len 投递次数
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ============================================================================
//                              组合投递
// ============================================================================

// Multi 依次投递到多个 sink，汇总所有错误
type Multi []proofgen.ResultSink

var _ proofgen.ResultSink = Multi(nil)

func (m Multi) Deliver(ctx context.Context, requestID string, artifact *types.ProofArtifact) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, requestID, artifact); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
