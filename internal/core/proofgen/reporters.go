package proofgen

import (
	"github.com/weisyn/zkattest/internal/core/proofgen/cache"
	"github.com/weisyn/zkattest/internal/core/proofgen/orchestrator"
	"github.com/weisyn/zkattest/internal/core/proofgen/sink"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/metrics"
)

// cacheReporter 上报证明缓存占用
type cacheReporter struct{ c *cache.Cache }

func (r cacheReporter) ModuleName() string { return "proofgen.cache" }

func (r cacheReporter) CollectMemoryStats() metrics.ModuleMemoryStats {
	st := r.c.Stats()
	return metrics.ModuleMemoryStats{
		Module:     r.ModuleName(),
		Objects:    int64(st.Entries),
		CacheItems: int64(st.Entries),
	}
}

// orchestratorReporter 上报排队与在途作业
type orchestratorReporter struct{ o *orchestrator.Orchestrator }

func (r orchestratorReporter) ModuleName() string { return "proofgen.orchestrator" }

func (r orchestratorReporter) CollectMemoryStats() metrics.ModuleMemoryStats {
	st := r.o.Stats()
	return metrics.ModuleMemoryStats{
		Module:      r.ModuleName(),
		Objects:     int64(st.InflightJobs),
		QueueLength: int64(st.QueueDepth),
	}
}

// resultReporter 上报内存中保留的最近结果
type resultReporter struct{ m *sink.Memory }

func (r resultReporter) ModuleName() string { return "proofgen.results" }

func (r resultReporter) CollectMemoryStats() metrics.ModuleMemoryStats {
	n := int64(r.m.Len())
	return metrics.ModuleMemoryStats{
		Module:     r.ModuleName(),
		Objects:    n,
		CacheItems: n,
	}
}
