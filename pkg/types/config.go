// Package types provides configuration type definitions.
package types

// AppConfig 应用程序根配置
// 只包含JSON配置文件解析所需的结构，不包含任何内部字段
// 默认值和完整配置结构在 internal/config/*/defaults.go 和 internal/config/*/config.go 中定义
//
// 🔧 指针字段：nil 表示配置文件未设置，使用默认值；非 nil 即使为零值也会被采用。
type AppConfig struct {
	AppName *string `json:"app_name,omitempty"` // 应用名称

	// Environment 运行环境：dev | test | prod
	Environment *string `json:"environment,omitempty"`

	Log     *UserLogConfig     `json:"log,omitempty"`
	Storage *UserStorageConfig `json:"storage,omitempty"`
	Redis   *UserRedisConfig   `json:"redis,omitempty"`
	Prover  *UserProverConfig  `json:"prover,omitempty"`
	Cache   *UserCacheConfig   `json:"cache,omitempty"`
	API     *UserAPIConfig     `json:"api,omitempty"`
}

// UserLogConfig 用户日志配置
// 只包含JSON配置文件中实际出现的字段
type UserLogConfig struct {
	Level     *string `json:"level,omitempty"`      // 日志级别：debug, info, warn, error, fatal
	FilePath  *string `json:"file_path,omitempty"`  // 日志文件路径
	ToConsole *bool   `json:"to_console,omitempty"` // 是否输出到控制台
}

// UserStorageConfig 用户存储配置
type UserStorageConfig struct {
	// DataRoot 数据根目录，badger 使用 {data_root}/badger
	DataRoot *string `json:"data_root,omitempty"`
	// SyncWrites 是否同步写入
	SyncWrites *bool `json:"sync_writes,omitempty"`
	// MemoryLifeWindow 内存存储条目存活窗口，如 "30m"
	MemoryLifeWindow *string `json:"memory_life_window,omitempty"`
}

// UserRedisConfig 用户 Redis 配置
type UserRedisConfig struct {
	Addr      *string `json:"addr,omitempty"`
	Password  *string `json:"password,omitempty"`
	DB        *int    `json:"db,omitempty"`
	KeyPrefix *string `json:"key_prefix,omitempty"`
	PoolSize  *int    `json:"pool_size,omitempty"`
	// TTLSeconds 条目过期时间（秒），0 表示不过期
	TTLSeconds *int `json:"ttl_seconds,omitempty"`
}

// UserProverConfig 用户证明编排配置
type UserProverConfig struct {
	// Workers 证明工作协程数，0 表示按主机资源自动计算
	Workers           *int     `json:"workers,omitempty"`
	MemoryPerWorkerMB *int     `json:"memory_per_worker_mb,omitempty"`
	MaxQueueDepth     *int     `json:"max_queue_depth,omitempty"`
	MaxPending        *int     `json:"max_pending,omitempty"`
	SupportedChains   []uint64 `json:"supported_chains,omitempty"`

	EvidenceTimeout *string `json:"evidence_timeout,omitempty"`
	WitnessTimeout  *string `json:"witness_timeout,omitempty"`
	ProveTimeout    *string `json:"prove_timeout,omitempty"`
	VerifyTimeout   *string `json:"verify_timeout,omitempty"`

	MaxRetries        *int     `json:"max_retries,omitempty"`
	SelfVerifyRetries *int     `json:"self_verify_retries,omitempty"`
	InitialBackoff    *string  `json:"initial_backoff,omitempty"`
	MaxBackoff        *string  `json:"max_backoff,omitempty"`
	BackoffFactor     *float64 `json:"backoff_factor,omitempty"`

	BackendConcurrency *int     `json:"backend_concurrency,omitempty"`
	MaxEvidenceBytes   *int     `json:"max_evidence_bytes,omitempty"`
	Backends           []string `json:"backends,omitempty"`

	// EvidenceDir 文件证据源目录，为空时不启用
	EvidenceDir *string `json:"evidence_dir,omitempty"`
}

// UserCacheConfig 用户证明缓存配置
type UserCacheConfig struct {
	Capacity *int `json:"capacity,omitempty"`
	// Persistence 持久化层：none | badger | memory | redis
	Persistence *string `json:"persistence,omitempty"`
}

// UserAPIConfig 用户API配置
type UserAPIConfig struct {
	HTTPEnabled *bool   `json:"http_enabled,omitempty"`
	HTTPAddr    *string `json:"http_addr,omitempty"`
	EnableWS    *bool   `json:"enable_ws,omitempty"`
	// WaitTimeout 同步等待证明结果的最长时间，如 "5m"
	WaitTimeout *string `json:"wait_timeout,omitempty"`
	// ReadRateLimit / WriteRateLimit 每个客户端每秒请求数
	ReadRateLimit  *int `json:"read_rate_limit,omitempty"`
	WriteRateLimit *int `json:"write_rate_limit,omitempty"`
}

// StringPtr 返回字符串指针，便于构造配置
func StringPtr(v string) *string { return &v }

// IntPtr 返回整数指针
func IntPtr(v int) *int { return &v }

// BoolPtr 返回布尔指针
func BoolPtr(v bool) *bool { return &v }
