package config

import (
	"fmt"
	"strings"
	"time"

	cacheconfig "github.com/weisyn/zkattest/internal/config/cache"
	"github.com/weisyn/zkattest/pkg/types"
)

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置验证失败 [%s]: %s", e.Field, e.Message)
}

// ValidationErrors 多个验证错误
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	msg := "配置验证失败，发现以下问题：\n"
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// ValidateAppConfig 启动前校验用户配置
//
// 各配置层对无效值静默回退默认值，这里对显式写出但无效的值 fail-fast，
// 避免拼写错误的时长或持久化层名称在运行时才暴露。
func ValidateAppConfig(appConfig *types.AppConfig) error {
	if appConfig == nil {
		return nil
	}
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	checkDuration := func(field string, v *string) {
		if v == nil {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(*v))
		if err != nil || d <= 0 {
			add(field, "时长格式无效: %q（期望类似 \"30s\"）", *v)
		}
	}
	checkNonNegative := func(field string, v *int) {
		if v != nil && *v < 0 {
			add(field, "不能为负数: %d", *v)
		}
	}

	if env := appConfig.Environment; env != nil {
		switch *env {
		case "dev", "test", "prod":
		default:
			add("environment", "未知环境 %q，可选 dev|test|prod", *env)
		}
	}

	if p := appConfig.Prover; p != nil {
		checkNonNegative("prover.workers", p.Workers)
		checkNonNegative("prover.memory_per_worker_mb", p.MemoryPerWorkerMB)
		checkNonNegative("prover.max_queue_depth", p.MaxQueueDepth)
		checkNonNegative("prover.max_pending", p.MaxPending)
		checkNonNegative("prover.max_retries", p.MaxRetries)
		checkNonNegative("prover.self_verify_retries", p.SelfVerifyRetries)
		checkNonNegative("prover.backend_concurrency", p.BackendConcurrency)
		checkNonNegative("prover.max_evidence_bytes", p.MaxEvidenceBytes)

		checkDuration("prover.evidence_timeout", p.EvidenceTimeout)
		checkDuration("prover.witness_timeout", p.WitnessTimeout)
		checkDuration("prover.prove_timeout", p.ProveTimeout)
		checkDuration("prover.verify_timeout", p.VerifyTimeout)
		checkDuration("prover.initial_backoff", p.InitialBackoff)
		checkDuration("prover.max_backoff", p.MaxBackoff)

		if p.BackoffFactor != nil && *p.BackoffFactor < 1 {
			add("prover.backoff_factor", "必须 >= 1: %v", *p.BackoffFactor)
		}

		seen := make(map[string]bool, len(p.Backends))
		for _, id := range p.Backends {
			if strings.TrimSpace(id) == "" {
				add("prover.backends", "后端 ID 不能为空")
				continue
			}
			if seen[id] {
				add("prover.backends", "后端 %q 重复", id)
			}
			seen[id] = true
		}
	}

	if c := appConfig.Cache; c != nil {
		checkNonNegative("cache.capacity", c.Capacity)
		if c.Persistence != nil {
			switch *c.Persistence {
			case cacheconfig.PersistenceNone, cacheconfig.PersistenceBadger,
				cacheconfig.PersistenceMemory, cacheconfig.PersistenceRedis:
			default:
				add("cache.persistence", "未知持久化层 %q，可选 none|badger|memory|redis", *c.Persistence)
			}
		}
	}

	if s := appConfig.Storage; s != nil {
		checkDuration("storage.memory_life_window", s.MemoryLifeWindow)
	}

	if a := appConfig.API; a != nil {
		checkDuration("api.wait_timeout", a.WaitTimeout)
		checkNonNegative("api.read_rate_limit", a.ReadRateLimit)
		checkNonNegative("api.write_rate_limit", a.WriteRateLimit)
		if a.HTTPAddr != nil && strings.TrimSpace(*a.HTTPAddr) == "" {
			add("api.http_addr", "监听地址不能为空")
		}
	}

	if r := appConfig.Redis; r != nil {
		checkNonNegative("redis.db", r.DB)
		checkNonNegative("redis.pool_size", r.PoolSize)
		checkNonNegative("redis.ttl_seconds", r.TTLSeconds)
	}

	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}
