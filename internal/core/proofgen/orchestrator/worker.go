package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

// errSelfVerify 后端生成的证明未通过自身验证
var errSelfVerify = errors.New("self-verification failed")

// worker 从队列取任务执行
func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	for {
		j := o.next()
		if j == nil {
			select {
			case <-o.baseCtx.Done():
				return
			case <-o.wake:
				continue
			}
		}
		o.process(j)
	}
}

// next 取出下一个可执行任务并占用 worker
//
// 等待者在此处做 Queued → Proving 边界检查：已取消或已过截止时间的等待者
// 直接结束；没有剩余等待者的任务被丢弃，不占用 worker。
func (o *Orchestrator) next() *job {
	var evs []types.JobEvent
	var settled []*request
	defer func() { o.flush(evs, settled) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	for {
		j := o.queue.Dequeue()
		if j == nil {
			o.metrics.queueDepth.Set(0)
			return nil
		}

		now := time.Now()
		live := make([]*request, 0, len(j.waiters))
		for _, r := range j.waiters {
			var err error
			switch {
			case r.cancelled.Load():
				err = types.Errorf(types.KindCancelled, "schedule", "cancelled by caller")
			case r.expired(now):
				err = types.Errorf(types.KindDeadlineExceeded, "schedule", "deadline %s passed before a worker was assigned",
					r.req.Deadline.Format(time.RFC3339Nano))
			default:
				live = append(live, r)
				continue
			}
			if ev, ok := o.settleLocked(r, nil, err); ok {
				evs = append(evs, ev)
				settled = append(settled, r)
			}
		}
		j.waiters = live
		if len(live) == 0 {
			delete(o.jobs, j.key)
			j.witness = nil
			continue
		}

		o.busy++
		j.state = types.JobProving
		for _, r := range live {
			evs = append(evs, o.setStateLocked(r, types.JobProving))
		}
		o.metrics.busyWorkers.Set(float64(o.busy))
		o.metrics.queueDepth.Set(float64(o.queue.Len()))
		if o.queue.Len() > 0 {
			o.signal()
		}
		return j
	}
}

// process 执行任务并结束所有等待者
func (o *Orchestrator) process(j *job) {
	artifact, attempts, err := o.prove(j)
	if err == nil {
		// 提交先于任务出表，之后到达的相同请求必定命中缓存
		if ok, perr := o.cache.Put(context.Background(), artifact); perr != nil {
			o.logger.Warnf("提交缓存失败: job=%s err=%v", j.id, perr)
		} else if !ok {
			o.logger.Infof("后端版本已变更，结果不写入缓存: job=%s backend=%s", j.id, artifact.Backend)
		}
	}
	o.registry.RecordResult(j.desc.ID, err == nil)

	var evs []types.JobEvent
	var settled []*request
	o.mu.Lock()
	delete(o.jobs, j.key)
	o.busy--
	j.attempts = attempts
	j.witness = nil
	if err == nil {
		j.state = types.JobCompleted
	} else {
		j.state = types.JobFailed
	}
	for _, r := range j.waiters {
		if ev, ok := o.settleLocked(r, artifact, err); ok {
			evs = append(evs, ev)
			settled = append(settled, r)
		}
	}
	j.waiters = nil
	o.metrics.busyWorkers.Set(float64(o.busy))
	o.mu.Unlock()

	if err == nil && o.events != nil {
		o.events.Publish(event.EventTypeArtifactReady, artifact.Clone())
	}
	o.flush(evs, settled)
}

// setJobState 任务及其等待者进入新状态
func (o *Orchestrator) setJobState(j *job, to types.JobState, attempt int) {
	var evs []types.JobEvent
	o.mu.Lock()
	j.attempts = attempt
	if j.state != to {
		j.state = to
		for _, r := range j.waiters {
			if !r.state.IsTerminal() {
				evs = append(evs, o.setStateLocked(r, to))
			}
		}
	}
	o.mu.Unlock()
	o.publish(evs...)
}

// prove 带重试与自检的证明流程
//
// 瞬时错误（超时、资源分配失败）按指数退避重试，最多 MaxRetries 次；
// 自检失败单独计数，超过 SelfVerifyRetries 后判定为 ProverFault。
func (o *Orchestrator) prove(j *job) (*types.ProofArtifact, int, error) {
	plugin, ok := o.registry.Get(j.desc.ID)
	if !ok {
		return nil, 0, types.Errorf(types.KindInvalidRequest, "prove", "backend %s no longer registered", j.desc.ID).WithJob(j.id, j.desc.ID)
	}
	desc := plugin.Descriptor()
	if desc.WitnessSchemaVersion != j.witness.SchemaVersion() {
		return nil, 0, types.Errorf(types.KindUnsupportedSchema, "prove",
			"backend %s expects witness schema v%d, job built with v%d", desc, desc.WitnessSchemaVersion, j.witness.SchemaVersion()).
			WithJob(j.id, desc.ID)
	}

	ctx := o.baseCtx
	if sem := o.semaphoreFor(desc.ID); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, 0, types.NewProofError(types.KindCancelled, "prove", ErrNotRunning).WithJob(j.id, desc.ID)
		}
		defer sem.Release(1)
	}
	done := o.registry.BeginTask(desc.ID)
	defer done()

	delay := o.retry.initialDelay
	retries, verifyFailures := 0, 0
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if !sleep(ctx, delay) {
				return nil, attempt - 1, types.NewProofError(types.KindCancelled, "prove", ErrNotRunning).WithJob(j.id, desc.ID)
			}
			delay = o.retry.next(delay)
		}
		o.setJobState(j, types.JobProving, attempt)

		artifact, err := o.attempt(ctx, j, plugin, attempt)
		if err == nil {
			o.metrics.proveAttempts.WithLabelValues(desc.ID, "ok").Inc()
			o.logger.Infof("证明完成: job=%s backend=%s attempt=%d size=%d 耗时=%v",
				j.id, desc, attempt, artifact.Metadata.ProofSize, artifact.Metadata.GenerationTime)
			return artifact, attempt, nil
		}

		if errors.Is(err, errSelfVerify) {
			verifyFailures++
			o.metrics.proveAttempts.WithLabelValues(desc.ID, "verify_failed").Inc()
			if verifyFailures > o.retry.selfVerifyRetries {
				o.metrics.proverFaults.WithLabelValues(desc.ID).Inc()
				o.logger.Errorf("证明未通过后端自身验证，判定为后端故障: job=%s backend=%s digest=%s anchor=%s attempts=%d verify_failures=%d err=%v",
					j.id, desc, j.key.digest.Hex(), j.witness.Anchor(), attempt, verifyFailures, err)
				return nil, attempt, types.NewProofError(types.KindProverFault, "self-verify", err).WithJob(j.id, desc.ID)
			}
			o.logger.Warnf("证明自检失败，重试: job=%s backend=%s attempt=%d err=%v", j.id, desc, attempt, err)
			continue
		}

		if backend.IsRetriable(err) && retries < o.retry.maxRetries {
			retries++
			o.metrics.proveAttempts.WithLabelValues(desc.ID, "retry").Inc()
			o.logger.Warnf("证明失败，重试: job=%s backend=%s attempt=%d/%d delay=%v err=%v",
				j.id, desc, retries, o.retry.maxRetries, delay, err)
			continue
		}

		o.metrics.proveAttempts.WithLabelValues(desc.ID, "failed").Inc()
		o.logger.Errorf("证明失败: job=%s backend=%s attempt=%d err=%v", j.id, desc, attempt, err)
		return nil, attempt, classifyProveError(err).WithJob(j.id, desc.ID)
	}
}

// attempt 一次完整的证明 + 自检
func (o *Orchestrator) attempt(ctx context.Context, j *job, plugin proofgen.BackendPlugin, attempt int) (*types.ProofArtifact, error) {
	desc := plugin.Descriptor()
	pair, err := o.keys.Load(ctx, plugin)
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}

	start := time.Now()

	// 证明调用不可中断，超出阶段时限的结果按 Timeout 处理
	proof, err := plugin.Prove(ctx, pair.PK, j.witness)
	elapsed := time.Since(start)
	o.metrics.proveDuration.WithLabelValues(desc.ID).Observe(elapsed.Seconds())
	if err != nil {
		return nil, err
	}
	if limit := o.opts.ProveTimeout; limit > 0 && elapsed > limit {
		return nil, fmt.Errorf("%w: prove took %v, limit %v", types.ErrTimeout, elapsed, limit)
	}

	o.setJobState(j, types.JobSelfVerifying, attempt)
	proofBytes, err := plugin.SerializeProof(proof)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize proof: %v", errSelfVerify, err)
	}
	public, err := plugin.PublicInputs(j.witness)
	if err != nil {
		return nil, err
	}
	if err := o.selfVerify(plugin, pair.VK, proofBytes, public); err != nil {
		return nil, err
	}

	return &types.ProofArtifact{
		ProofBytes:    proofBytes,
		PublicInputs:  public,
		Backend:       desc,
		WitnessDigest: j.key.digest,
		Metadata: types.ArtifactMetadata{
			GeneratedAt:    time.Now().UTC(),
			GenerationTime: elapsed,
			ProofSize:      len(proofBytes),
			Attempts:       attempt,
			CircuitHash:    pair.CircuitHash,
			AllocatedBytes: uint64(pair.ProvingKeySize + j.witness.Size()),
		},
	}, nil
}

// selfVerify 反序列化并用后端自身的验证器检查证明
func (o *Orchestrator) selfVerify(plugin proofgen.BackendPlugin, vk proofgen.VerifyingKey, proofBytes, public []byte) error {
	ok, timedOut, err := runWithTimeout(o.opts.VerifyTimeout, func() (bool, error) {
		decoded, err := plugin.DeserializeProof(proofBytes)
		if err != nil {
			return false, err
		}
		return plugin.Verify(decoded, public, vk)
	})
	switch {
	case timedOut:
		return fmt.Errorf("%w: verify exceeded %v", errSelfVerify, o.opts.VerifyTimeout)
	case err != nil:
		return fmt.Errorf("%w: %v", errSelfVerify, err)
	case !ok:
		return fmt.Errorf("%w: proof rejected by backend verifier", errSelfVerify)
	}
	return nil
}

// classifyProveError 重试耗尽或不可重试的证明错误分类
func classifyProveError(err error) *types.ProofError {
	var pe *types.ProofError
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, types.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.NewProofError(types.KindTimeout, "prove", err)
	case errors.Is(err, backend.ErrResourceAllocation), errors.Is(err, backend.ErrTransient):
		return types.NewProofError(types.KindResourceExhausted, "prove", err)
	default:
		// 见证已通过校验，解码或形状错误归因于后端
		return types.NewProofError(types.KindProverFault, "prove", err)
	}
}
