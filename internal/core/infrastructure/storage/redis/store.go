// Package redis 提供基于 Redis 的共享存储实现
//
// 多个证明服务实例共享同一 Redis 时，一个实例完成的证明可被其他实例直接复用。
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redisconfig "github.com/weisyn/zkattest/internal/config/storage/redis"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	storage "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/storage"
)

// scanBatch 每次 SCAN 的建议数量
const scanBatch = 256

// Store 实现 BlobStore 接口
//
// 键格式：{key_prefix}{key}
type Store struct {
	client     redisClient
	keyPrefix  string
	defaultTTL time.Duration
	logger     log.Logger
}

var _ storage.BlobStore = (*Store)(nil)

// New 连接 Redis 并创建存储
func New(opts *redisconfig.RedisOptions, logger log.Logger) (*Store, error) {
	client, err := newGoRedisClient(opts)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Infof("Redis存储已连接: addr=%s db=%d prefix=%s", opts.Addr, opts.DB, opts.KeyPrefix)
	}
	return newStoreWithClient(client, opts, logger), nil
}

// newStoreWithClient 使用指定客户端创建存储（测试注入）
func newStoreWithClient(client redisClient, opts *redisconfig.RedisOptions, logger log.Logger) *Store {
	return &Store{
		client:     client,
		keyPrefix:  opts.KeyPrefix,
		defaultTTL: opts.DefaultTTL,
		logger:     logger,
	}
}

func (s *Store) fullKey(key []byte) string {
	return s.keyPrefix + string(key)
}

// Get 获取值，键不存在时返回 nil
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	val, err := s.client.Get(ctx, s.fullKey(key))
	if errors.Is(err, errNil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis获取键失败: %w", err)
	}
	return val, nil
}

// Set 设置值，使用默认 TTL
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	if err := s.client.Set(ctx, s.fullKey(key), value, s.defaultTTL); err != nil {
		return fmt.Errorf("redis设置键失败: %w", err)
	}
	return nil
}

// Delete 删除指定键
func (s *Store) Delete(ctx context.Context, key []byte) error {
	if _, err := s.client.Del(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("redis删除键失败: %w", err)
	}
	return nil
}

// scanKeys 通过 SCAN 遍历匹配前缀的全部键（含 keyPrefix）
func (s *Store) scanKeys(ctx context.Context, prefix []byte) ([]string, error) {
	match := escapeGlob(s.fullKey(prefix)) + "*"
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch)
		if err != nil {
			return nil, fmt.Errorf("redis扫描失败: %w", err)
		}
		// SCAN 可能重复返回同一键
		for _, k := range batch {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// PrefixScan 按前缀扫描键值对，返回的键不含 keyPrefix
func (s *Store) PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error) {
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		val, err := s.client.Get(ctx, k)
		if errors.Is(err, errNil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis获取键失败: %w", err)
		}
		result[strings.TrimPrefix(k, s.keyPrefix)] = val
	}
	return result, nil
}

// DeletePrefix 删除指定前缀的全部键
func (s *Store) DeletePrefix(ctx context.Context, prefix []byte) (int, error) {
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("redis批量删除失败: %w", err)
	}
	return int(n), nil
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

// escapeGlob 转义 Redis MATCH 模式中的特殊字符
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
