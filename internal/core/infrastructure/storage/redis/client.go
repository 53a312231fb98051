package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redisconfig "github.com/weisyn/zkattest/internal/config/storage/redis"
)

// errNil 键不存在
var errNil = errors.New("redis: nil")

// redisClient 最小化的 Redis 操作接口，测试中可替换
type redisClient interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Ping(ctx context.Context) error
	Close() error
}

// goRedisClient 基于 go-redis 的 redisClient 实现
type goRedisClient struct {
	client *goredis.Client
}

var _ redisClient = (*goRedisClient)(nil)

// newGoRedisClient 创建客户端并测试连接
func newGoRedisClient(opts *redisconfig.RedisOptions) (redisClient, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &goRedisClient{client: client}, nil
}

func (c *goRedisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, errNil
	}
	return val, err
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.client.Del(ctx, keys...).Result()
}

func (c *goRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return c.client.Scan(ctx, cursor, match, count).Result()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}
