// Package badger 持久化证明缓存所用 BadgerDB 的打开参数
package badger

import (
	"path/filepath"

	configtypes "github.com/weisyn/zkattest/pkg/types"
)

// BadgerOptions BadgerDB 打开参数
type BadgerOptions struct {
	Path           string `json:"path"`
	SyncWrites     bool   `json:"sync_writes"`
	MemTableSize   int64  `json:"mem_table_size"`
	AutoCompaction bool   `json:"auto_compaction"`
}

// Defaults 默认参数：./data/badger，异步写入，64MB 内存表
//
// 缓存项丢失只会导致一次重新证明，因此不开启同步写入
func Defaults() *BadgerOptions {
	return &BadgerOptions{
		Path:           absPath("./data/badger"),
		MemTableSize:   64 << 20,
		AutoCompaction: true,
	}
}

// FromUserConfig 用户存储配置覆盖默认值；设置 data_root 时路径为 {data_root}/badger
func FromUserConfig(user *configtypes.UserStorageConfig) *BadgerOptions {
	opts := Defaults()
	if user == nil {
		return opts
	}
	if user.DataRoot != nil {
		opts.Path = absPath(filepath.Join(*user.DataRoot, "badger"))
	}
	if user.SyncWrites != nil {
		opts.SyncWrites = *user.SyncWrites
	}
	return opts
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
