// Package metrics 定义模块内存上报接口
//
// 各组件实现 MemoryReporter，由 MemoryDoctor 周期性采集并导出为 Prometheus 指标。
package metrics

// ModuleMemoryStats 模块自行上报的逻辑内存状态
//
// 不追求精确，用于观察趋势和相对大小。
type ModuleMemoryStats struct {
	Module      string `json:"module"`       // 模块名称：proofgen.cache / proofgen.orchestrator ...
	Objects     int64  `json:"objects"`      // 主要对象数
	ApproxBytes int64  `json:"approx_bytes"` // 估算字节数，无法估算时为 0
	CacheItems  int64  `json:"cache_items"`  // 缓存条目
	QueueLength int64  `json:"queue_length"` // 队列长度
}

// MemoryReporter 内存上报接口
type MemoryReporter interface {
	// ModuleName 返回模块名称
	ModuleName() string

	// CollectMemoryStats 收集当前模块的内存统计
	CollectMemoryStats() ModuleMemoryStats
}
