package redis

// Redis 默认配置值
const (
	defaultAddr      = "127.0.0.1:6379"
	defaultDB        = 0
	defaultKeyPrefix = "zkattest:"
	defaultPoolSize  = 10

	// defaultTTLSeconds 0 表示条目不过期，由版本失效与 LRU 控制
	defaultTTLSeconds = 0
)
