package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// runRequest 请求协程：采集证据、构建见证、查缓存、入队
func (o *Orchestrator) runRequest(r *request) {
	defer o.reqWG.Done()

	w, err := o.buildWitness(r)
	if err != nil {
		o.fail(r, err)
		return
	}

	o.mu.Lock()
	r.digest = w.Digest()
	o.mu.Unlock()

	// WitnessBuilding → Queued 边界
	if err := o.checkBoundary(r, "queue"); err != nil {
		o.fail(r, err)
		return
	}
	if o.serveFromCache(r, w) {
		return
	}
	o.enqueue(r, w)
}

// buildWitness 采集证据并构建见证，失败不重试
func (o *Orchestrator) buildWitness(r *request) (*types.Witness, error) {
	if !o.transition(r, types.JobWitnessBuilding) {
		return nil, types.Errorf(types.KindCancelled, "witness", "request already finished")
	}

	evidence, err := o.evidenceFor(r)
	if err != nil {
		return nil, err
	}

	schema := r.desc.WitnessSchemaVersion
	w, timedOut, err := runWithTimeout(o.opts.WitnessTimeout, func() (*types.Witness, error) {
		return o.builder.Build(evidence, r.req.Anchor, r.req.Event, schema)
	})
	switch {
	case timedOut:
		return nil, types.Errorf(types.KindTimeout, "witness", "witness build exceeded %v", o.opts.WitnessTimeout)
	case err != nil:
		if types.KindOf(err) == "" {
			return nil, types.NewProofError(types.KindInvalidEvidence, "witness", err)
		}
		return nil, err
	}
	o.logger.Debugf("见证已构建: request=%s digest=%s kind=%s", r.id, w.Digest().TerminalString(), w.Kind())
	return w, nil
}

// evidenceFor 取出请求内嵌的证据，没有时从证据源采集
//
// 内嵌证据取出后即从请求上清除，见证构建结束后不再被引用。
func (o *Orchestrator) evidenceFor(r *request) (*types.Evidence, error) {
	if evidence := r.evidence; evidence != nil {
		r.evidence = nil
		return evidence, nil
	}

	fetchCtx, cancel := r.ctx, context.CancelFunc(func() {})
	if o.opts.EvidenceTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(r.ctx, o.opts.EvidenceTimeout)
	}
	evidence, err := o.collector.Fetch(fetchCtx, r.req.Anchor, r.req.Event)
	stageErr := fetchCtx.Err()
	cancel()
	if err != nil {
		return nil, o.classifyFetchError(r, stageErr, err)
	}
	if evidence == nil {
		return nil, types.Errorf(types.KindSourceUnavailable, "fetch", "collector returned no evidence for %s", r.req.Anchor)
	}
	return evidence, nil
}

// classifyFetchError 证据采集错误分类
func (o *Orchestrator) classifyFetchError(r *request, stageErr, err error) error {
	const op = "fetch"
	switch {
	case r.cancelled.Load():
		return types.Errorf(types.KindCancelled, op, "cancelled during evidence collection")
	case errors.Is(r.ctx.Err(), context.DeadlineExceeded):
		return types.NewProofError(types.KindDeadlineExceeded, op, err)
	case r.ctx.Err() != nil:
		return types.NewProofError(types.KindCancelled, op, ErrNotRunning)
	case errors.Is(stageErr, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return types.NewProofError(types.KindTimeout, op, fmt.Errorf("evidence fetch exceeded %v: %w", o.opts.EvidenceTimeout, err))
	case errors.Is(err, types.ErrNotFound):
		return types.NewProofError(types.KindSourceUnavailable, op, err)
	case types.KindOf(err) != "":
		return err
	default:
		return types.NewProofError(types.KindSourceUnavailable, op, err)
	}
}

// checkBoundary 阶段边界上的取消与截止时间检查
func (o *Orchestrator) checkBoundary(r *request, stage string) error {
	switch {
	case r.cancelled.Load():
		return types.Errorf(types.KindCancelled, stage, "cancelled by caller")
	case r.expired(time.Now()):
		return types.Errorf(types.KindDeadlineExceeded, stage, "deadline %s passed", r.req.Deadline.Format(time.RFC3339Nano))
	case o.baseCtx.Err() != nil:
		return types.NewProofError(types.KindCancelled, stage, ErrNotRunning)
	}
	return nil
}

// serveFromCache 缓存命中时直接完成请求
//
// 持久化层的结果必须重新通过后端验证才会提交到内存层并返回；验证失败的条目被丢弃。
func (o *Orchestrator) serveFromCache(r *request, w *types.Witness) bool {
	artifact, tier := o.cache.Get(r.ctx, w.Digest(), r.req.BackendID)
	o.metrics.cacheLookups.WithLabelValues(tier.String()).Inc()

	switch tier {
	case proofgen.CacheMemory:
	case proofgen.CachePersisted:
		if err := o.verifyPersisted(r.ctx, w, artifact); err != nil {
			o.logger.Warnf("持久化缓存结果验证失败，重新证明: backend=%s digest=%s err=%v",
				r.req.BackendID, w.Digest().TerminalString(), err)
			o.cache.Discard(r.ctx, w.Digest(), r.req.BackendID)
			return false
		}
		if _, err := o.cache.Put(r.ctx, artifact); err != nil {
			o.logger.Warnf("提交缓存失败: backend=%s err=%v", r.req.BackendID, err)
		}
	default:
		return false
	}

	o.mu.Lock()
	r.cacheHit = true
	ev, ok := o.settleLocked(r, artifact, nil)
	o.mu.Unlock()
	if ok {
		o.logger.Debugf("缓存命中: request=%s tier=%s digest=%s", r.id, tier, w.Digest().TerminalString())
		o.flush([]types.JobEvent{ev}, []*request{r})
	}
	return true
}

// verifyPersisted 用当前后端与密钥重新验证持久化结果
func (o *Orchestrator) verifyPersisted(ctx context.Context, w *types.Witness, a *types.ProofArtifact) error {
	plugin, ok := o.registry.Get(a.Backend.ID)
	if !ok {
		return fmt.Errorf("backend %s not registered", a.Backend.ID)
	}
	pair, err := o.keys.Load(ctx, plugin)
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	public, err := plugin.PublicInputs(w)
	if err != nil {
		return fmt.Errorf("public inputs: %w", err)
	}
	if !bytes.Equal(public, a.PublicInputs) {
		return fmt.Errorf("public inputs differ from witness")
	}
	return o.selfVerify(plugin, pair.VK, a.ProofBytes, public)
}

// enqueue 合并到进行中的任务或创建新任务入队
//
// 在 o.mu 内依次检查：编排器是否已停止、是否有进行中的相同任务、内存缓存。
// 任务先提交缓存再出表，两者都在锁内观察，相同请求不会重复证明。
func (o *Orchestrator) enqueue(r *request, w *types.Witness) {
	key := jobKey{digest: w.Digest(), backendID: r.req.BackendID}

	o.mu.Lock()
	if r.state.IsTerminal() {
		o.mu.Unlock()
		return
	}

	if o.baseCtx.Err() != nil {
		ev, ok := o.settleLocked(r, nil, types.NewProofError(types.KindCancelled, "queue", ErrNotRunning))
		o.mu.Unlock()
		if ok {
			o.flush([]types.JobEvent{ev}, []*request{r})
		}
		return
	}

	if j, ok := o.jobs[key]; ok {
		j.waiters = append(j.waiters, r)
		r.job, r.jobID = j, j.id
		if r.req.Priority > j.priority {
			o.queue.UpdatePriority(j, r.req.Priority)
		}
		ev := o.setStateLocked(r, j.state)
		waiters := len(j.waiters)
		o.mu.Unlock()

		o.metrics.coalesced.Inc()
		o.publish(ev)
		o.logger.Debugf("请求已合并: request=%s job=%s waiters=%d", r.id, j.id, waiters)
		return
	}

	// 查询缓存之后、取锁之前相同任务可能已完成出表
	if artifact, ok := o.cache.Peek(key.digest, key.backendID); ok {
		o.metrics.cacheLookups.WithLabelValues(proofgen.CacheMemory.String()).Inc()
		r.cacheHit = true
		ev, settled := o.settleLocked(r, artifact, nil)
		o.mu.Unlock()
		if settled {
			o.logger.Debugf("缓存命中: request=%s tier=%s digest=%s", r.id, proofgen.CacheMemory, key.digest.TerminalString())
			o.flush([]types.JobEvent{ev}, []*request{r})
		}
		return
	}

	if o.busy >= o.workers && o.queue.Len() >= o.opts.MaxQueueDepth {
		busy, depth := o.busy, o.queue.Len()
		ev, ok := o.settleLocked(r, nil, types.Errorf(types.KindResourceExhausted, "queue",
			"all %d workers busy and %d jobs queued", busy, depth))
		o.mu.Unlock()
		if ok {
			o.logger.Warnf("队列已满，拒绝请求: request=%s busy=%d depth=%d", r.id, busy, depth)
			o.flush([]types.JobEvent{ev}, []*request{r})
		}
		return
	}

	j := &job{
		id:        uuid.NewString(),
		key:       key,
		witness:   w,
		desc:      r.desc,
		createdAt: time.Now(),
		priority:  r.req.Priority,
		index:     -1,
		state:     types.JobQueued,
		waiters:   []*request{r},
	}
	o.jobs[key] = j
	o.queue.Enqueue(j)
	r.job, r.jobID = j, j.id
	ev := o.setStateLocked(r, types.JobQueued)
	o.metrics.queueDepth.Set(float64(o.queue.Len()))
	o.mu.Unlock()

	o.publish(ev)
	o.signal()
}

// fail 请求以错误结束
func (o *Orchestrator) fail(r *request, err error) {
	o.mu.Lock()
	ev, ok := o.settleLocked(r, nil, err)
	o.mu.Unlock()
	if ok {
		o.logger.Debugf("请求失败: request=%s kind=%s err=%v", r.id, types.KindOf(err), err)
		o.flush([]types.JobEvent{ev}, []*request{r})
	}
}
