package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	DeletePattern(pattern string) error
	Exists(key string) (bool, error)
	Stats() map[string]interface{}
	Health() error
	Close() error
}

// l1PromoteTTL bounds how long a value read from redis lives in memory.
const l1PromoteTTL = 5 * time.Minute

// MultiLevelCache reads memory first and redis second. Redis failures trip
// the breaker, after which the cache runs on memory alone until redis
// answers again.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	breaker *breaker
	reads   *levelCounters
}

var _ Cache = (*MultiLevelCache)(nil)

// NewMultiLevelCache accepts a nil redisCache for a memory-only cache.
func NewMultiLevelCache(redisCache *RedisCache) *MultiLevelCache {
	return &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		breaker: newBreaker(DefaultBreakerConfig()),
		reads:   newLevelCounters(time.Now()),
	}
}

func (c *MultiLevelCache) Set(key string, value interface{}, ttl time.Duration) error {
	c.l1.Set(key, value, ttl)
	return c.l2Do(func() error { return c.l2.Set(key, value, ttl) })
}

func (c *MultiLevelCache) Get(key string, dest interface{}) error {
	if value, found := c.l1.Get(key); found {
		return copyValue(value, dest)
	}
	if c.l2 == nil {
		return ErrCacheMiss
	}

	miss := false
	err := c.breaker.Execute(func() error {
		err := c.l2.Get(key, dest)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})
	if miss {
		err = ErrCacheMiss
	}
	c.reads.read(err)
	if err != nil {
		return err
	}
	c.l1.Set(key, reflect.ValueOf(dest).Elem().Interface(), l1PromoteTTL)
	return nil
}

// Delete and DeletePattern report an open breaker. A delete that never
// reached redis leaves the old value there for the next reader.
func (c *MultiLevelCache) Delete(key string) error {
	c.l1.Delete(key)
	if c.l2 == nil {
		return nil
	}
	return c.breaker.Execute(func() error { return c.l2.Delete(key) })
}

func (c *MultiLevelCache) DeletePattern(pattern string) error {
	c.l1.DeletePattern(pattern)
	if c.l2 == nil {
		return nil
	}
	return c.breaker.Execute(func() error { return c.l2.DeletePattern(pattern) })
}

func (c *MultiLevelCache) Exists(key string) (bool, error) {
	if _, found := c.l1.Get(key); found {
		return true, nil
	}
	if c.l2 == nil {
		return false, nil
	}
	var exists bool
	err := c.breaker.Execute(func() error {
		var err error
		exists, err = c.l2.Exists(key)
		return err
	})
	return exists, err
}

// l2Do runs fn against redis behind the breaker. An open breaker is not an
// error for writes; memory already holds the change.
func (c *MultiLevelCache) l2Do(fn func() error) error {
	if c.l2 == nil {
		return nil
	}
	err := c.breaker.Execute(fn)
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return nil
	}
	return err
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":      c.l1.Stats(),
		"breaker": c.breaker.Stats(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
		stats["l2_reads"] = c.reads.snapshot()
	}
	return stats
}

func (c *MultiLevelCache) Health() error {
	if c.l2 != nil {
		return c.l2.Health()
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func copyValue(src, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("destination must be a pointer, got %T", dest)
	}
	if destValue.IsNil() {
		return fmt.Errorf("destination pointer is nil")
	}
	if !destValue.Elem().CanSet() {
		return fmt.Errorf("destination is not settable")
	}
	return copyValueViaJSON(src, dest)
}

// copyValueViaJSON hands out a deep copy so callers cannot mutate what L1
// holds.
func copyValueViaJSON(src, dest interface{}) error {
	jsonData, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source value: %w", err)
	}
	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("failed to unmarshal to destination: %w", err)
	}
	return nil
}
