package orchestrator

import (
	"context"
	"time"

	"github.com/weisyn/zkattest/internal/config/prover"
)

// retryPolicy 证明阶段的重试配置
type retryPolicy struct {
	maxRetries        int           // 瞬时错误最大重试次数
	selfVerifyRetries int           // 自检失败后的重试预算
	initialDelay      time.Duration // 初始退避
	maxDelay          time.Duration // 最大退避
	factor            float64       // 指数退避因子
}

func newRetryPolicy(opts *prover.ProverOptions) retryPolicy {
	p := retryPolicy{
		maxRetries:        opts.MaxRetries,
		selfVerifyRetries: opts.SelfVerifyRetries,
		initialDelay:      opts.InitialBackoff,
		maxDelay:          opts.MaxBackoff,
		factor:            opts.BackoffFactor,
	}
	if p.factor < 1 {
		p.factor = 1
	}
	if p.maxDelay > 0 && p.initialDelay > p.maxDelay {
		p.initialDelay = p.maxDelay
	}
	return p
}

// next 计算下一次退避时长
func (p retryPolicy) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * p.factor)
	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}

// sleep 等待退避时间，上下文结束时提前返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runWithTimeout 在独立协程中执行不可中断的同步调用
//
// 超时后立即返回 timedOut=true，调用本身在后台继续直到返回。
func runWithTimeout[T any](timeout time.Duration, fn func() (T, error)) (result T, timedOut bool, err error) {
	if timeout <= 0 {
		result, err = fn()
		return result, false, err
	}

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn()
		ch <- outcome{v: v, err: err}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case o := <-ch:
		return o.v, false, o.err
	case <-t.C:
		var zero T
		return zero, true, nil
	}
}
