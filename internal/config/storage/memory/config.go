package memory

import (
	"time"

	configtypes "github.com/weisyn/zkattest/pkg/types"
)

// MemoryOptions 内存存储配置选项
type MemoryOptions struct {
	MaxMemory       int64         `json:"max_memory"`       // 最大内存使用量
	MaxEntries      int           `json:"max_entries"`      // 窗口内最大条目数
	LifeWindow      time.Duration `json:"life_window"`      // 条目存活窗口
	CleanupInterval time.Duration `json:"cleanup_interval"` // 清理间隔
	MaxEntrySize    int           `json:"max_entry_size"`   // 单条目预估大小
}

// Config 内存存储配置实现
type Config struct {
	options *MemoryOptions
}

// New 创建内存存储配置实现
func New(userConfig interface{}) *Config {
	options := &MemoryOptions{
		MaxMemory:       defaultMaxMemory,
		MaxEntries:      defaultMaxEntries,
		LifeWindow:      defaultLifeWindow,
		CleanupInterval: defaultCleanupInterval,
		MaxEntrySize:    defaultMaxEntrySize,
	}

	if cfg, ok := userConfig.(*configtypes.UserStorageConfig); ok && cfg != nil && cfg.MemoryLifeWindow != nil {
		if d, err := time.ParseDuration(*cfg.MemoryLifeWindow); err == nil && d > 0 {
			options.LifeWindow = d
		}
	}

	return &Config{options: options}
}

// GetOptions 获取完整的内存存储配置选项
func (c *Config) GetOptions() *MemoryOptions {
	return c.options
}

// GetMaxMemoryMB 获取最大内存使用量（MB），供 bigcache HardMaxCacheSize 使用
func (c *Config) GetMaxMemoryMB() int {
	return int(c.options.MaxMemory >> 20)
}

// GetMaxEntriesInWindow 获取窗口内最大条目数
func (c *Config) GetMaxEntriesInWindow() int {
	return c.options.MaxEntries
}

// GetLifeWindow 获取条目存活窗口
func (c *Config) GetLifeWindow() time.Duration {
	return c.options.LifeWindow
}

// GetCleanWindow 获取清理间隔
func (c *Config) GetCleanWindow() time.Duration {
	return c.options.CleanupInterval
}

// GetMaxEntrySize 获取单条目预估大小
func (c *Config) GetMaxEntrySize() int {
	return c.options.MaxEntrySize
}

// NewFromOptions 从MemoryOptions创建配置实现
func NewFromOptions(options *MemoryOptions) *Config {
	return &Config{options: options}
}
