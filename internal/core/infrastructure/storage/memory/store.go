// Package memory 提供基于BigCache的进程内存储实现
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/allegro/bigcache/v3"
	memoryconfig "github.com/weisyn/zkattest/internal/config/storage/memory"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	storage "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
)

// Store 实现 BlobStore 接口
//
// BigCache 不支持按前缀遍历，keySet 维护已写入的键；
// 被 BigCache 淘汰或过期的键在下一次扫描时从 keySet 中清理。
type Store struct {
	cache  *bigcache.BigCache
	logger log.Logger
	mutex  sync.RWMutex
	closed bool
	keySet map[string]struct{}
}

var _ storage.BlobStore = (*Store)(nil)

// New 创建BigCache内存存储实例
func New(config *memoryconfig.Config, logger log.Logger) (*Store, error) {
	bigCacheConfig := bigcache.DefaultConfig(config.GetLifeWindow())
	bigCacheConfig.MaxEntriesInWindow = config.GetMaxEntriesInWindow()
	bigCacheConfig.MaxEntrySize = config.GetMaxEntrySize()
	bigCacheConfig.CleanWindow = config.GetCleanWindow()
	bigCacheConfig.HardMaxCacheSize = config.GetMaxMemoryMB()
	bigCacheConfig.Shards = 64
	bigCacheConfig.Verbose = false

	cache, err := bigcache.New(context.Background(), bigCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("创建BigCache实例失败: %w", err)
	}

	return &Store{
		cache:  cache,
		logger: logger,
		keySet: make(map[string]struct{}),
	}, nil
}

// Close 关闭缓存并释放资源
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	if err := s.cache.Close(); err != nil {
		return err
	}
	s.closed = true
	if s.logger != nil {
		s.logger.Info("内存存储已关闭")
	}
	return nil
}

// Get 获取值，键不存在时返回 nil
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := s.cache.Get(string(key))
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("bigcache获取键失败: %w", err)
	}
	return value, nil
}

// Set 设置值
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.cache.Set(string(key), value); err != nil {
		return fmt.Errorf("bigcache设置键失败: %w", err)
	}
	s.keySet[string(key)] = struct{}{}
	return nil
}

// Delete 删除指定键
func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.cache.Delete(string(key)); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("bigcache删除键失败: %w", err)
	}
	delete(s.keySet, string(key))
	return nil
}

// PrefixScan 按前缀扫描键值对
func (s *Store) PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := make(map[string][]byte)
	p := string(prefix)
	for key := range s.keySet {
		if !strings.HasPrefix(key, p) {
			continue
		}
		value, err := s.cache.Get(key)
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			delete(s.keySet, key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("bigcache获取键失败: %w", err)
		}
		result[key] = value
	}
	return result, nil
}

// DeletePrefix 删除指定前缀的全部键
func (s *Store) DeletePrefix(ctx context.Context, prefix []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	deleted := 0
	p := string(prefix)
	for key := range s.keySet {
		if !strings.HasPrefix(key, p) {
			continue
		}
		err := s.cache.Delete(key)
		if err == nil {
			deleted++
		} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
			return deleted, fmt.Errorf("bigcache删除键失败: %w", err)
		}
		delete(s.keySet, key)
	}
	return deleted, nil
}

// Len 当前缓存条目数
func (s *Store) Len() int {
	return s.cache.Len()
}
