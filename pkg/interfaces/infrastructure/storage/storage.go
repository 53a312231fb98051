// Package storage 定义键值存储接口
//
// 证明缓存的持久化层和后端密钥存储都基于 BlobStore，
// 具体实现有 BadgerDB（磁盘）、BigCache（进程内）和 Redis（多实例共享）。
package storage

import "context"

// BlobStore 二进制键值存储
type BlobStore interface {
	// Get 获取指定键的值，键不存在时返回 nil 值和 nil 错误
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set 设置键值对，已存在时覆盖
	Set(ctx context.Context, key, value []byte) error

	// Delete 删除指定键，键不存在时不返回错误
	Delete(ctx context.Context, key []byte) error

	// PrefixScan 返回所有以 prefix 开头的键值对，map 的键为键的字符串表示
	PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error)

	// DeletePrefix 删除所有以 prefix 开头的键，返回删除数量
	DeletePrefix(ctx context.Context, prefix []byte) (int, error)

	// Close 释放底层资源
	Close() error
}
