// Package orchestrator 证明编排器：请求准入、见证构建、去重合并、优先级调度、重试与自检
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/weisyn/zkattest/internal/config/prover"
	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// ============================================================================
// 证明编排器
// ============================================================================
//
// 🎯 **状态机**：
//
//	Pending → WitnessBuilding → (缓存命中 → Completed)
//	                          → Queued → Proving ⇄ SelfVerifying → Completed | Failed | Cancelled
//
// 🏗️ **并发模型**：
// - 每个请求一个协程负责证据采集与见证构建
// - 固定数量的 worker 从优先级队列取任务执行证明
// - 相同 (witness_digest, backend_id) 的请求合并到同一个任务
// - 证明调用一旦开始不可中断，取消只在阶段边界检查
//
// ============================================================================

const (
	lifecycleNew int32 = iota
	lifecycleRunning
	lifecycleStopped
)

const (
	// finishedRetention 终态请求保留时长，供 Status 查询
	finishedRetention = 10 * time.Minute
	janitorInterval   = time.Minute
	sinkTimeout       = 30 * time.Second
)

// Registry 编排器依赖的后端注册表能力
type Registry interface {
	proofgen.BackendRegistry
	BeginTask(backendID string) func()
	RecordResult(backendID string, success bool)
}

// KeyLoader 后端密钥加载
type KeyLoader interface {
	Load(ctx context.Context, plugin proofgen.BackendPlugin) (*backend.KeyPair, error)
}

// Deps 编排器依赖
type Deps struct {
	Registry  Registry
	Keys      KeyLoader
	Collector proofgen.EvidenceCollector
	Builder   proofgen.WitnessBuilder
	Cache     proofgen.ProofCache
	Sink      proofgen.ResultSink   // 可选
	Events    event.EventBus        // 可选
	Metrics   prometheus.Registerer // 可选，nil 时使用私有注册表
	Logger    log.Logger
}

// Stats 运行时统计
type Stats struct {
	Workers        int        `json:"workers"`
	BusyWorkers    int        `json:"busy_workers"`
	QueueDepth     int        `json:"queue_depth"`
	InflightJobs   int        `json:"inflight_jobs"`
	ActiveRequests int        `json:"active_requests"`
	Queue          QueueStats `json:"queue"`
}

// Orchestrator 证明编排器
type Orchestrator struct {
	opts    *prover.ProverOptions
	workers int
	retry   retryPolicy

	registry  Registry
	keys      KeyLoader
	collector proofgen.EvidenceCollector
	builder   proofgen.WitnessBuilder
	cache     proofgen.ProofCache
	sink      proofgen.ResultSink
	events    event.EventBus
	metrics   *metrics
	logger    log.Logger

	mu       sync.Mutex
	requests map[string]*request
	jobs     map[jobKey]*job
	queue    *priorityQueue
	busy     int
	active   int

	semMu sync.Mutex
	sems  map[string]*semaphore.Weighted

	wake      chan struct{}
	lifecycle atomic.Int32
	baseCtx   context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup
	reqWG     sync.WaitGroup
}

var _ proofgen.ProofService = (*Orchestrator)(nil)

// New 创建编排器
func New(opts *prover.ProverOptions, deps Deps) (*Orchestrator, error) {
	if opts == nil {
		opts = prover.DefaultOptions()
	}
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("backend registry is required")
	case deps.Keys == nil:
		return nil, fmt.Errorf("key loader is required")
	case deps.Collector == nil:
		return nil, fmt.Errorf("evidence collector is required")
	case deps.Builder == nil:
		return nil, fmt.Errorf("witness builder is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("proof cache is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	baseCtx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:      opts,
		workers:   opts.ResolveWorkers(),
		retry:     newRetryPolicy(opts),
		registry:  deps.Registry,
		keys:      deps.Keys,
		collector: deps.Collector,
		builder:   deps.Builder,
		cache:     deps.Cache,
		sink:      deps.Sink,
		events:    deps.Events,
		metrics:   newMetrics(deps.Metrics),
		logger:    deps.Logger.With("module", "proofgen"),
		requests:  make(map[string]*request),
		jobs:      make(map[jobKey]*job),
		queue:     newPriorityQueue(),
		sems:      make(map[string]*semaphore.Weighted),
		wake:      make(chan struct{}, 1),
		baseCtx:   baseCtx,
		stop:      stop,
	}
	return o, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动 worker
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.lifecycle.CompareAndSwap(lifecycleNew, lifecycleRunning) {
		return fmt.Errorf("orchestrator already started")
	}
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.wg.Add(1)
	go o.janitor()

	o.logger.Infof("证明编排器已启动: workers=%d queue_depth=%d backend_concurrency=%d",
		o.workers, o.opts.MaxQueueDepth, o.opts.BackendConcurrency)
	return nil
}

// Stop 停止接收请求，取消排队任务并等待进行中的证明结束
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.lifecycle.CompareAndSwap(lifecycleRunning, lifecycleStopped) {
		o.lifecycle.Store(lifecycleStopped)
		o.stop()
		return nil
	}
	o.stop()

	var settled []*request
	var evs []types.JobEvent
	o.mu.Lock()
	for j := o.queue.Dequeue(); j != nil; j = o.queue.Dequeue() {
		delete(o.jobs, j.key)
		for _, r := range j.waiters {
			if ev, ok := o.settleLocked(r, nil, types.NewProofError(types.KindCancelled, "stop", ErrNotRunning)); ok {
				evs = append(evs, ev)
				settled = append(settled, r)
			}
		}
		j.waiters = nil
		j.witness = nil
	}
	o.metrics.queueDepth.Set(0)
	o.mu.Unlock()
	o.flush(evs, settled)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		o.reqWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Info("证明编排器已停止")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight proofs: %w", ctx.Err())
	}
}

// janitor 定期清理过期的终态请求
func (o *Orchestrator) janitor() {
	defer o.wg.Done()
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.baseCtx.Done():
			return
		case now := <-ticker.C:
			o.retire(now.Add(-finishedRetention))
		}
	}
}

// retire 删除早于 cutoff 进入终态的请求
func (o *Orchestrator) retire(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, r := range o.requests {
		if r.state.IsTerminal() && r.updatedAt.Before(cutoff) {
			delete(o.requests, id)
			n++
		}
	}
	return n
}

// ============================================================================
//                              ProofService
// ============================================================================

// Submit 校验并受理请求，返回请求 ID
//
// 未知链/后端、空锚点哈希返回 InvalidRequest；截止时间已过返回 DeadlineExceeded，
// 两种情况都不占用任何资源。
func (o *Orchestrator) Submit(ctx context.Context, req *types.ProofRequest) (string, error) {
	if o.lifecycle.Load() != lifecycleRunning {
		return "", types.NewProofError(types.KindResourceExhausted, "submit", ErrNotRunning)
	}
	desc, err := o.validate(req)
	if err != nil {
		o.metrics.requests.WithLabelValues(string(types.JobFailed), string(types.KindOf(err))).Inc()
		return "", err
	}
	now := time.Now()
	if req.HasDeadline() && !now.Before(req.Deadline) {
		o.metrics.requests.WithLabelValues(string(types.JobFailed), string(types.KindDeadlineExceeded)).Inc()
		return "", types.Errorf(types.KindDeadlineExceeded, "submit", "deadline %s already passed", req.Deadline.Format(time.RFC3339Nano))
	}

	r := &request{
		id:        uuid.NewString(),
		req:       *req,
		desc:      desc,
		state:     types.JobPending,
		createdAt: now,
		updatedAt: now,
		done:      make(chan struct{}),
		evidence:  req.Evidence,
	}
	r.req.Evidence = nil
	if req.HasDeadline() {
		r.ctx, r.cancel = context.WithDeadline(o.baseCtx, req.Deadline)
	} else {
		r.ctx, r.cancel = context.WithCancel(o.baseCtx)
	}

	o.mu.Lock()
	if o.opts.MaxPending > 0 && o.active >= o.opts.MaxPending {
		o.mu.Unlock()
		r.cancel()
		o.metrics.requests.WithLabelValues(string(types.JobFailed), string(types.KindResourceExhausted)).Inc()
		return "", types.Errorf(types.KindResourceExhausted, "submit", "%d requests pending", o.opts.MaxPending)
	}
	o.requests[r.id] = r
	o.active++
	o.metrics.activeRequests.Set(float64(o.active))
	o.mu.Unlock()

	o.publish(types.JobEvent{RequestID: r.id, BackendID: req.BackendID, To: types.JobPending, At: now})
	o.logger.Debugf("请求已受理: id=%s backend=%s anchor=%s priority=%d", r.id, req.BackendID, req.Anchor, req.Priority)

	o.reqWG.Add(1)
	go o.runRequest(r)
	return r.id, nil
}

// validate 校验请求并解析后端描述
func (o *Orchestrator) validate(req *types.ProofRequest) (types.BackendDescriptor, error) {
	const op = "validate"
	if req == nil {
		return types.BackendDescriptor{}, types.Errorf(types.KindInvalidRequest, op, "nil request")
	}
	if !o.opts.ChainSupported(req.ChainID) {
		return types.BackendDescriptor{}, types.Errorf(types.KindInvalidRequest, op, "unknown chain id %d", req.ChainID)
	}
	if req.Anchor.ChainID != req.ChainID {
		return types.BackendDescriptor{}, types.Errorf(types.KindInvalidRequest, op,
			"anchor chain id %d does not match request chain id %d", req.Anchor.ChainID, req.ChainID)
	}
	if req.Anchor.BlockHash == (common.Hash{}) {
		return types.BackendDescriptor{}, types.Errorf(types.KindInvalidRequest, op, "anchor block hash is empty")
	}
	if req.BackendID == "" {
		return types.BackendDescriptor{}, types.Errorf(types.KindInvalidRequest, op, "backend id is required")
	}
	desc, ok := o.registry.Descriptor(req.BackendID)
	if !ok {
		return types.BackendDescriptor{}, types.Errorf(types.KindInvalidRequest, op, "unknown backend id %q", req.BackendID)
	}
	return desc, nil
}

// Wait 等待请求结束
//
// 请求自身的截止时间在等待期间同样生效：请求被判为 DeadlineExceeded 并脱离任务，
// Status 与结果投递以此为准；已经开始的证明继续运行以服务其他合并请求并写入缓存。
func (o *Orchestrator) Wait(ctx context.Context, requestID string) (*types.ProofArtifact, error) {
	r := o.lookup(requestID)
	if r == nil {
		return nil, types.NewProofError(types.KindInvalidRequest, "wait", fmt.Errorf("%w: %s", ErrRequestNotFound, requestID))
	}

	var deadline <-chan time.Time
	if r.req.HasDeadline() {
		t := time.NewTimer(time.Until(r.req.Deadline))
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-r.done:
		return o.result(r)
	case <-deadline:
		select {
		case <-r.done:
			return o.result(r)
		default:
		}
		err := types.Errorf(types.KindDeadlineExceeded, "wait", "deadline %s passed", r.req.Deadline.Format(time.RFC3339Nano))
		if !o.expire(r, err) {
			return o.result(r)
		}
		return nil, err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewProofError(types.KindTimeout, "wait", ctx.Err())
		}
		return nil, types.NewProofError(types.KindCancelled, "wait", ctx.Err())
	}
}

// Prove 提交并等待结果
func (o *Orchestrator) Prove(ctx context.Context, req *types.ProofRequest) (*types.ProofArtifact, error) {
	id, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.Wait(ctx, id)
}

// Cancel 取消请求
//
// 证明开始之前生效；已在证明或自检中的请求返回 ErrTooLateToCancel。
func (o *Orchestrator) Cancel(requestID string) error {
	r := o.lookup(requestID)
	if r == nil {
		return types.NewProofError(types.KindInvalidRequest, "cancel", fmt.Errorf("%w: %s", ErrRequestNotFound, requestID))
	}

	o.mu.Lock()
	state := r.state
	o.mu.Unlock()
	switch {
	case state == types.JobCancelled:
		return nil
	case state.IsTerminal():
		return types.Errorf(types.KindInvalidRequest, "cancel", "request %s already %s", requestID, state)
	case state == types.JobProving || state == types.JobSelfVerifying:
		return types.NewProofError(types.KindInvalidRequest, "cancel", ErrTooLateToCancel)
	}

	r.cancelled.Store(true)
	if !o.abandon(r, types.Errorf(types.KindCancelled, "cancel", "cancelled by caller")) {
		o.mu.Lock()
		state = r.state
		o.mu.Unlock()
		if state == types.JobProving || state == types.JobSelfVerifying {
			return types.NewProofError(types.KindInvalidRequest, "cancel", ErrTooLateToCancel)
		}
	}
	o.logger.Infof("请求已取消: id=%s", requestID)
	return nil
}

// Status 查询请求状态
func (o *Orchestrator) Status(requestID string) (*types.JobSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.requests[requestID]
	if !ok {
		return nil, types.NewProofError(types.KindInvalidRequest, "status", fmt.Errorf("%w: %s", ErrRequestNotFound, requestID))
	}
	return r.snapshot(), nil
}

// Running 是否已启动且未停止
func (o *Orchestrator) Running() bool {
	return o.lifecycle.Load() == lifecycleRunning
}

// Stats 运行时统计
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Workers:        o.workers,
		BusyWorkers:    o.busy,
		QueueDepth:     o.queue.Len(),
		InflightJobs:   len(o.jobs),
		ActiveRequests: o.active,
		Queue:          o.queue.Stats(),
	}
}

// ============================================================================
//                              内部辅助
// ============================================================================

func (o *Orchestrator) lookup(requestID string) *request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[requestID]
}

// result 读取终态结果，每次返回独立副本
func (o *Orchestrator) result(r *request) (*types.ProofArtifact, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.artifact.Clone(), nil
}

// abandon 在证明开始前终止请求，返回是否生效
func (o *Orchestrator) abandon(r *request, err error) bool {
	o.mu.Lock()
	if r.state.IsTerminal() || r.state == types.JobProving || r.state == types.JobSelfVerifying {
		o.mu.Unlock()
		return false
	}
	if j := r.job; j != nil {
		o.detachLocked(j, r)
	}
	ev, ok := o.settleLocked(r, nil, err)
	o.mu.Unlock()

	r.cancel()
	if ok {
		o.flush([]types.JobEvent{ev}, []*request{r})
	}
	return ok
}

// expire 截止时间到达，不论任务是否已开始证明都结束该请求，返回是否生效
func (o *Orchestrator) expire(r *request, err error) bool {
	o.mu.Lock()
	if r.state.IsTerminal() {
		o.mu.Unlock()
		return false
	}
	if j := r.job; j != nil {
		o.detachLocked(j, r)
	}
	ev, ok := o.settleLocked(r, nil, err)
	o.mu.Unlock()

	r.cancel()
	if ok {
		o.flush([]types.JobEvent{ev}, []*request{r})
	}
	return ok
}

// detachLocked 将请求从任务中移除；排队中的任务无等待者时出队，
// 已开始证明的任务继续运行
func (o *Orchestrator) detachLocked(j *job, r *request) {
	kept := j.waiters[:0]
	top := 0
	for _, w := range j.waiters {
		if w == r {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 1 || w.req.Priority > top {
			top = w.req.Priority
		}
	}
	j.waiters = kept
	if len(kept) > 0 {
		o.queue.UpdatePriority(j, top)
		return
	}
	if o.queue.Remove(j) {
		delete(o.jobs, j.key)
		j.witness = nil
		o.metrics.queueDepth.Set(float64(o.queue.Len()))
	}
}

// setStateLocked 记录状态迁移，调用方持有 o.mu
func (o *Orchestrator) setStateLocked(r *request, to types.JobState) types.JobEvent {
	now := time.Now()
	ev := types.JobEvent{
		RequestID: r.id,
		JobID:     r.jobID,
		BackendID: r.req.BackendID,
		From:      r.state,
		To:        to,
		At:        now,
	}
	r.state = to
	r.updatedAt = now
	return ev
}

// transition 请求进入新的非终态
func (o *Orchestrator) transition(r *request, to types.JobState) bool {
	o.mu.Lock()
	if r.state.IsTerminal() {
		o.mu.Unlock()
		return false
	}
	ev := o.setStateLocked(r, to)
	o.mu.Unlock()
	o.publish(ev)
	return true
}

// settleLocked 请求进入终态，调用方持有 o.mu；已是终态时返回 false
func (o *Orchestrator) settleLocked(r *request, artifact *types.ProofArtifact, err error) (types.JobEvent, bool) {
	if r.state.IsTerminal() {
		return types.JobEvent{}, false
	}

	to := types.JobCompleted
	var kind types.ErrorKind
	if err != nil {
		kind = types.KindOf(err)
		if kind == "" {
			err = types.NewProofError(types.KindProverFault, "orchestrate", err)
			kind = types.KindProverFault
		}
		to = types.JobFailed
		if kind == types.KindCancelled {
			to = types.JobCancelled
		}
		r.err = err
	} else {
		r.artifact = artifact.Clone()
	}

	ev := o.setStateLocked(r, to)
	ev.ErrorKind = kind
	o.active--
	o.metrics.activeRequests.Set(float64(o.active))
	o.metrics.requests.WithLabelValues(string(to), string(kind)).Inc()
	return ev, true
}

// flush 在锁外发布事件、投递结果并唤醒等待者
func (o *Orchestrator) flush(evs []types.JobEvent, settled []*request) {
	o.publish(evs...)
	for _, r := range settled {
		if r.artifact != nil && o.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := o.sink.Deliver(ctx, r.id, r.artifact.Clone()); err != nil {
				o.metrics.sinkFailures.Inc()
				o.logger.Warnf("结果投递失败: request=%s err=%v", r.id, err)
			}
			cancel()
		}
		r.cancel()
		close(r.done)
	}
}

// publish 广播状态迁移
func (o *Orchestrator) publish(evs ...types.JobEvent) {
	if o.events == nil {
		return
	}
	for _, ev := range evs {
		o.events.Publish(event.EventTypeJobTransition, ev)
	}
}

// signal 唤醒一个空闲 worker
func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// semaphoreFor 返回后端并发信号量，未配置上限时返回 nil
func (o *Orchestrator) semaphoreFor(backendID string) *semaphore.Weighted {
	if o.opts.BackendConcurrency <= 0 {
		return nil
	}
	o.semMu.Lock()
	defer o.semMu.Unlock()
	s, ok := o.sems[backendID]
	if !ok {
		s = semaphore.NewWeighted(int64(o.opts.BackendConcurrency))
		o.sems[backendID] = s
	}
	return s
}
