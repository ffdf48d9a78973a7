package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	config := Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	}
	cache, err := NewMemoryCache(config)
	require.NoError(t, err)

	// 测试Set和Get
	require.NoError(t, cache.Set("key1", "value1", 0))

	val, found, err := cache.Get("key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	// 测试不存在的键
	val, found, err = cache.Get("non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	// 测试过期
	require.NoError(t, cache.Set("expire-soon", "temp-value", time.Millisecond*200))
	time.Sleep(time.Millisecond * 500)

	_, found, err = cache.Get("expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试删除
	require.NoError(t, cache.Set("to-delete", "delete-me", 0))
	require.NoError(t, cache.Delete("to-delete"))
	_, found, _ = cache.Get("to-delete")
	assert.False(t, found)

	// 测试清空
	require.NoError(t, cache.Set("key2", "value2", 0))
	require.NoError(t, cache.Clear())
	_, found, _ = cache.Get("key2")
	assert.False(t, found)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(Config{
		Type:       "redis",
		Namespace:  "paper-rag",
		RedisAddr:  mr.Addr(),
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, cache.Set("embed:model:abc", "[0.1,0.2]", 0))

	// 键带命名空间前缀，并使用默认TTL
	assert.True(t, mr.Exists("paper-rag:embed:model:abc"))
	assert.Equal(t, time.Minute, mr.TTL("paper-rag:embed:model:abc"))

	val, found, err := cache.Get("embed:model:abc")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[0.1,0.2]", val)

	// 测试过期
	require.NoError(t, cache.Set("short", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err = cache.Get("short")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试删除
	require.NoError(t, cache.Delete("embed:model:abc"))
	_, found, _ = cache.Get("embed:model:abc")
	assert.False(t, found)
}

// TestRedisCacheClearKeepsForeignKeys 测试Clear只清理命名空间内的键
func TestRedisCacheClearKeepsForeignKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("other-app:key", "keep"))

	cache, err := NewRedisCache(Config{Namespace: "paper-rag", RedisAddr: mr.Addr()})
	require.NoError(t, err)

	require.NoError(t, cache.Set("a", "1", 0))
	require.NoError(t, cache.Set("b", "2", 0))
	require.NoError(t, cache.Clear())

	_, found, _ := cache.Get("a")
	assert.False(t, found)
	assert.True(t, mr.Exists("other-app:key"))
}

// TestRedisCacheUnavailable 测试Redis不可用时创建失败
func TestRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(Config{RedisAddr: addr})
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, memCache)

	mr := miniredis.RunT(t)
	redisCache, err := NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, redisCache)

	// 未知类型回退到内存缓存
	fallback, err := NewCache(Config{Type: "unknown"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, fallback)
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "embed", GenerateCacheKey("embed"))
	assert.Equal(t, "embed:m:h", GenerateCacheKey("embed", "m", "h"))
	assert.Len(t, HashText("hello"), 64)
	assert.Equal(t, HashText("hello"), HashText("hello"))
	assert.NotEqual(t, HashText("hello"), HashText("hello "))
}
