// Package cache 提供泛型 LRU+TTL 缓存
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Config 缓存配置
type Config struct {
	// Name 缓存名称，用于日志与统计
	Name string

	// MaxSize 最大条目数，0 表示不限制
	MaxSize int

	// TTL 基于访问时间的过期时长，0 表示永不过期
	TTL time.Duration

	// OnEvict 条目被驱逐或过期时的回调（可选）
	OnEvict func(key, value any)
}

// Stats 缓存统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expires   int64
	Size      int
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	accessedAt time.Time
	element    *list.Element
}

// Cache 并发安全的泛型 LRU+TTL 缓存
type Cache[K comparable, V any] struct {
	config Config

	mu    sync.Mutex
	items map[K]*entry[K, V]
	order *list.List // 最近使用的在前
	stats Stats
}

// New 创建缓存
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	return &Cache[K, V]{
		config: config,
		items:  make(map[K]*entry[K, V]),
		order:  list.New(),
	}
}

// Get 读取缓存值，过期条目按未命中处理并删除
//
// Get 需要更新访问时间、LRU 位置与统计，因此持写锁。
func (c *Cache[K, V]) Get(key K) (value V, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return value, false
	}
	if c.expired(e) {
		c.remove(e)
		c.stats.Misses++
		c.stats.Expires++
		return value, false
	}

	e.accessedAt = time.Now()
	c.order.MoveToFront(e.element)
	c.stats.Hits++
	return e.value, true
}

// Set 写入缓存值，容量满时驱逐最久未使用的条目
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.accessedAt = time.Now()
		c.order.MoveToFront(e.element)
		return
	}

	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		if back := c.order.Back(); back != nil {
			c.remove(back.Value.(*entry[K, V]))
			c.stats.Evictions++
		}
	}

	e := &entry[K, V]{key: key, value: value, accessedAt: time.Now()}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Delete 删除条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(e)
	return true
}

// Clear 清空缓存
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.OnEvict != nil {
		for _, e := range c.items {
			c.config.OnEvict(e.key, e.value)
		}
	}
	c.items = make(map[K]*entry[K, V])
	c.order.Init()
}

// CleanExpired 清理过期条目，返回清理数量
func (c *Cache[K, V]) CleanExpired() int {
	if c.config.TTL <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for _, e := range c.items {
		if c.expired(e) {
			c.remove(e)
			cleaned++
		}
	}
	c.stats.Expires += int64(cleaned)
	return cleaned
}

// Size 当前条目数
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 统计快照
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

// String 描述缓存当前状态
func (c *Cache[K, V]) String() string {
	stats := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d hits=%d misses=%d evictions=%d expires=%d",
		c.config.Name, stats.Size, c.config.MaxSize, stats.Hits, stats.Misses, stats.Evictions, stats.Expires)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && time.Since(e.accessedAt) >= c.config.TTL
}

// remove 删除条目，需持锁调用
func (c *Cache[K, V]) remove(e *entry[K, V]) {
	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
