package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.Addr != "localhost:6379" {
		t.Errorf("Expected Addr to be localhost:6379, got %s", config.Addr)
	}
	if config.Namespace != DefaultNamespace {
		t.Errorf("Expected Namespace to be %s, got %s", DefaultNamespace, config.Namespace)
	}
	if config.PoolSize != 10 {
		t.Errorf("Expected PoolSize to be 10, got %d", config.PoolSize)
	}
	if config.MinIdleConns != 5 {
		t.Errorf("Expected MinIdleConns to be 5, got %d", config.MinIdleConns)
	}
	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}
	if config.DialTimeout != 5*time.Second {
		t.Errorf("Expected DialTimeout to be 5s, got %v", config.DialTimeout)
	}
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	config := DefaultCacheConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = 0

	return NewRedisCache(config), mr
}

func TestNewRedisCache_WithNilConfig(t *testing.T) {
	cache := NewRedisCache(nil)

	if cache == nil || cache.client == nil {
		t.Fatal("Expected cache to be created with default config")
	}
	if cache.namespace != DefaultNamespace {
		t.Errorf("Expected default namespace, got %s", cache.namespace)
	}
}

func TestNewRedisCacheFromClient_SharesClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cache := NewRedisCacheFromClient(client, "")
	if cache.Client() != client {
		t.Error("Expected the given client to be reused")
	}
	if cache.namespace != DefaultNamespace {
		t.Errorf("Expected empty namespace to fall back to default, got %s", cache.namespace)
	}
}

func TestRedisCache_SetAndGet(t *testing.T) {
	cache, _ := setupTestRedis(t)

	type overview struct {
		UrgentCount int      `json:"urgent_count"`
		Titles      []string `json:"titles"`
	}

	want := overview{UrgentCount: 2, Titles: []string{"接口联调", "上线准备"}}
	if err := cache.Set("dashboard:overview", want, time.Minute); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	var retrieved overview
	if err := cache.Get("dashboard:overview", &retrieved); err != nil {
		t.Fatalf("Failed to get from cache: %v", err)
	}
	if retrieved.UrgentCount != 2 || len(retrieved.Titles) != 2 || retrieved.Titles[0] != "接口联调" {
		t.Errorf("Unexpected cached value %+v", retrieved)
	}
}

func TestRedisCache_KeysAreNamespaced(t *testing.T) {
	cache, mr := setupTestRedis(t)

	if err := cache.Set("report:effort:all", "rows", time.Minute); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	if !mr.Exists(DefaultNamespace + ":report:effort:all") {
		t.Error("Expected key to be stored under the namespace")
	}
	if mr.Exists("report:effort:all") {
		t.Error("Expected no key outside the namespace")
	}
}

func TestRedisCache_Get_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	var result string
	err := cache.Get("non-existent-key", &result)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisCache_Set_InvalidData(t *testing.T) {
	cache, _ := setupTestRedis(t)

	if err := cache.Set("test:key", make(chan int), time.Minute); err == nil {
		t.Error("Expected error when setting unmarshalable data")
	}
}

func TestRedisCache_Get_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	mr.Set(DefaultNamespace+":test:invalid", "invalid-json")

	var result map[string]interface{}
	if err := cache.Get("test:invalid", &result); err == nil {
		t.Error("Expected error when getting invalid JSON")
	}
}

func TestRedisCache_Expiry(t *testing.T) {
	cache, mr := setupTestRedis(t)

	if err := cache.Set("dashboard:overview", "x", time.Minute); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	var result string
	if err := cache.Get("dashboard:overview", &result); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected expired key to miss, got %v", err)
	}
}

func TestRedisCache_Delete(t *testing.T) {
	cache, _ := setupTestRedis(t)

	key := "test:delete"
	if err := cache.Set(key, "test-data", time.Minute); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	if err := cache.Delete(key); err != nil {
		t.Fatalf("Failed to delete from cache: %v", err)
	}

	var retrieved string
	if err := cache.Get(key, &retrieved); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestRedisCache_DeletePattern(t *testing.T) {
	cache, _ := setupTestRedis(t)

	keys := []string{"report:effort:all", "report:effort:123", "dashboard:overview"}
	for _, key := range keys {
		if err := cache.Set(key, "data", time.Minute); err != nil {
			t.Fatalf("Failed to set cache key %s: %v", key, err)
		}
	}

	if err := cache.DeletePattern("report:*"); err != nil {
		t.Fatalf("Failed to delete pattern: %v", err)
	}

	var result string
	for _, key := range keys[:2] {
		if err := cache.Get(key, &result); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Expected key %s to be deleted, but got: %v", key, err)
		}
	}
	if err := cache.Get("dashboard:overview", &result); err != nil {
		t.Errorf("Expected dashboard:overview to still exist, got: %v", err)
	}
}

func TestRedisCache_Exists(t *testing.T) {
	cache, _ := setupTestRedis(t)

	key := "test:exists"
	exists, err := cache.Exists(key)
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if exists {
		t.Error("Expected key to not exist")
	}

	if err := cache.Set(key, "data", time.Minute); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	exists, err = cache.Exists(key)
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if !exists {
		t.Error("Expected key to exist")
	}
}

func TestRedisCache_Health(t *testing.T) {
	cache, mr := setupTestRedis(t)

	if err := cache.Health(); err != nil {
		t.Errorf("Expected healthy cache, got error: %v", err)
	}

	mr.Close()

	err := cache.Health()
	if !errors.Is(err, ErrCacheDown) {
		t.Errorf("Expected ErrCacheDown after closing Redis, got %v", err)
	}
}

func TestRedisCache_Stats(t *testing.T) {
	cache, _ := setupTestRedis(t)

	stats := cache.Stats()
	if stats["namespace"] != DefaultNamespace {
		t.Errorf("Expected namespace in stats, got %v", stats["namespace"])
	}
	if _, ok := stats["pool_total"]; !ok {
		t.Error("Expected pool stats")
	}
}

func TestRedisCache_Close(t *testing.T) {
	cache, _ := setupTestRedis(t)

	if err := cache.Close(); err != nil {
		t.Errorf("Failed to close cache: %v", err)
	}
	if err := cache.Set("test", "data", time.Minute); err == nil {
		t.Error("Expected error when using cache after close")
	}
}

func BenchmarkRedisCache_Get(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatal(err)
	}
	defer mr.Close()

	cache := NewRedisCache(&CacheConfig{Addr: mr.Addr()})
	if err := cache.Set("benchmark:key", map[string]string{"key": "value"}, time.Minute); err != nil {
		b.Fatalf("Failed to set cache: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var result map[string]string
		if err := cache.Get("benchmark:key", &result); err != nil {
			b.Fatalf("Failed to get cache: %v", err)
		}
	}
}
