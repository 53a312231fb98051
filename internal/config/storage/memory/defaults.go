package memory

import "time"

// 内存存储默认配置值
const (
	// defaultMaxMemory 默认最大内存使用量为256MB
	defaultMaxMemory = 256 << 20

	// defaultMaxEntries 默认最大条目数
	defaultMaxEntries = 10000

	// defaultLifeWindow 默认条目存活窗口为1小时
	defaultLifeWindow = time.Hour

	// defaultCleanupInterval 默认清理间隔为10分钟
	defaultCleanupInterval = 10 * time.Minute

	// defaultMaxEntrySize 单条目预估大小，证明结果通常在 1KB 以内
	defaultMaxEntrySize = 4 * 1024
)
