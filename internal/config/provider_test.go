package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheconfig "github.com/weisyn/zkattest/internal/config/cache"
	"github.com/weisyn/zkattest/pkg/types"
)

// TestGetEnvironment 测试 GetEnvironment() 方法
func TestGetEnvironment(t *testing.T) {
	t.Run("显式配置 dev", func(t *testing.T) {
		provider := NewProvider(&types.AppConfig{Environment: types.StringPtr("dev")})
		assert.Equal(t, "dev", provider.GetEnvironment())
	})

	t.Run("未配置时默认为 prod", func(t *testing.T) {
		provider := NewProvider(&types.AppConfig{})
		assert.Equal(t, "prod", provider.GetEnvironment())
	})

	t.Run("无效值默认为 prod", func(t *testing.T) {
		provider := NewProvider(&types.AppConfig{Environment: types.StringPtr("invalid")})
		assert.Equal(t, "prod", provider.GetEnvironment())
	})
}

// TestProvider_NilAppConfig nil 配置返回全部默认值
func TestProvider_NilAppConfig(t *testing.T) {
	provider := NewProvider(nil)
	require.Equal(t, "zkattest", provider.GetAppName())
	require.NotNil(t, provider.GetLog())
	require.NotNil(t, provider.GetProver())
	require.Equal(t, cacheconfig.PersistenceBadger, provider.GetCache().Persistence)
	require.True(t, provider.GetAPI().HTTPEnabled)
}

// TestProvider_UserOverrides 用户配置覆盖默认值
func TestProvider_UserOverrides(t *testing.T) {
	dataRoot := t.TempDir()
	provider := NewProvider(&types.AppConfig{
		Storage: &types.UserStorageConfig{DataRoot: types.StringPtr(dataRoot)},
		Redis:   &types.UserRedisConfig{Addr: types.StringPtr("redis:6380"), TTLSeconds: types.IntPtr(60)},
		Cache:   &types.UserCacheConfig{Capacity: types.IntPtr(8), Persistence: types.StringPtr("redis")},
		Prover:  &types.UserProverConfig{Workers: types.IntPtr(2), VerifyTimeout: types.StringPtr("3s")},
		API:     &types.UserAPIConfig{HTTPAddr: types.StringPtr("127.0.0.1:9000"), EnableWS: types.BoolPtr(false)},
	})

	require.Equal(t, filepath.Join(dataRoot, "badger"), provider.GetBadger().Path)
	require.Equal(t, "redis:6380", provider.GetRedis().Addr)
	require.Equal(t, time.Minute, provider.GetRedis().DefaultTTL)
	require.Equal(t, 8, provider.GetCache().Capacity)
	require.Equal(t, cacheconfig.PersistenceRedis, provider.GetCache().Persistence)
	require.Equal(t, 2, provider.GetProver().ResolveWorkers())
	require.Equal(t, 3*time.Second, provider.GetProver().VerifyTimeout)
	require.Equal(t, "127.0.0.1:9000", provider.GetAPI().HTTPAddr)
	require.False(t, provider.GetAPI().EnableWebSocket)
}
