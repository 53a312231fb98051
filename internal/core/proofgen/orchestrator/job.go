package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/zkattest/pkg/types"
)

var (
	// ErrRequestNotFound 请求 ID 不存在或已被清理
	ErrRequestNotFound = errors.New("request not found")

	// ErrNotRunning 编排器未启动或已停止
	ErrNotRunning = errors.New("orchestrator not running")

	// ErrTooLateToCancel 证明已开始，取消不再生效
	ErrTooLateToCancel = errors.New("proving already started")
)

// jobKey 去重键
type jobKey struct {
	digest    common.Hash
	backendID string
}

// job 一次证明计算，可承载多个合并的请求
//
// 除 witness/desc/key 外所有字段由 Orchestrator.mu 保护。
type job struct {
	id        string
	key       jobKey
	witness   *types.Witness
	desc      types.BackendDescriptor
	createdAt time.Time

	priority int
	seq      uint64
	index    int // 堆下标，不在队列中为 -1
	state    types.JobState
	waiters  []*request
	attempts int
}

// request 一次调用方请求
type request struct {
	id   string
	req  types.ProofRequest
	desc types.BackendDescriptor

	// ctx 覆盖证据采集与见证构建，Cancel 或截止时间到达时结束
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	// evidence 随请求内嵌的证据，只由请求协程访问，见证构建时取走
	evidence *types.Evidence

	// 以下字段由 Orchestrator.mu 保护
	state     types.JobState
	job       *job
	jobID     string
	digest    common.Hash
	artifact  *types.ProofArtifact
	err       error
	cacheHit  bool
	createdAt time.Time
	updatedAt time.Time
	done      chan struct{}
}

// expired 截止时间是否已过
func (r *request) expired(now time.Time) bool {
	return r.req.HasDeadline() && !now.Before(r.req.Deadline)
}

// snapshot 生成只读视图，调用方持有 Orchestrator.mu
func (r *request) snapshot() *types.JobSnapshot {
	s := &types.JobSnapshot{
		RequestID:     r.id,
		JobID:         r.jobID,
		BackendID:     r.req.BackendID,
		WitnessDigest: r.digest,
		State:         r.state,
		Priority:      r.req.Priority,
		CacheHit:      r.cacheHit,
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}
	if r.err != nil {
		s.ErrorKind = types.KindOf(r.err)
		s.Error = r.err.Error()
	}
	if j := r.job; j != nil {
		s.Waiters = len(j.waiters)
		s.Attempts = j.attempts
	}
	if r.artifact != nil {
		s.Attempts = r.artifact.Metadata.Attempts
	}
	return s
}
