package aggregate

import (
	"time"

	"loom/cache"
)

// ICache 聚合实例缓存
//
// 缓存的是已重建的聚合实例；并发冲突或提交失败时必须失效对应
// 条目，避免脏实例被复用。
type ICache interface {
	Get(id string) (IAggregate, bool)
	Put(id string, agg IAggregate)
	Remove(id string)
}

// NullCache 不缓存（默认）
type NullCache struct{}

func (NullCache) Get(string) (IAggregate, bool) { return nil, false }
func (NullCache) Put(string, IAggregate)        {}
func (NullCache) Remove(string)                 {}

// LRUCache 基于 LRU+TTL 的聚合缓存
type LRUCache struct {
	inner *cache.Cache[string, IAggregate]
}

// NewLRUCache 创建聚合缓存
func NewLRUCache(name string, maxSize int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		inner: cache.New[string, IAggregate](cache.Config{
			Name:    name,
			MaxSize: maxSize,
			TTL:     ttl,
		}),
	}
}

func (c *LRUCache) Get(id string) (IAggregate, bool) { return c.inner.Get(id) }
func (c *LRUCache) Put(id string, agg IAggregate)    { c.inner.Set(id, agg) }
func (c *LRUCache) Remove(id string)                 { c.inner.Delete(id) }

var _ ICache = NullCache{}
var _ ICache = (*LRUCache)(nil)
