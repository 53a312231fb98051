package cache

const (
	// defaultCapacity 内存 LRU 默认容量（条目数）
	defaultCapacity = 4096

	// defaultPersistence 默认持久化层
	defaultPersistence = PersistenceBadger
)
