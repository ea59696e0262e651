package cache

import (
	"sync"
	"time"

	"github.com/LENAX/conduit/pkg/core/result"
)

// ResultCache 节点结果缓存接口（对外导出）
type ResultCache interface {
	// Set 设置缓存值
	// label: 节点标签
	// res: 已反序列化的结果
	// ttl: 缓存有效期，<=0 表示不过期
	Set(label string, res result.Result, ttl time.Duration) error

	// Get 获取缓存值
	// 返回: 结果和是否存在
	Get(label string) (result.Result, bool)

	// Delete 删除缓存值
	Delete(label string) error

	// Clear 清空所有缓存
	Clear() error
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      result.Result
	expireTime time.Time // 零值表示不过期
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expireTime.IsZero() && now.After(e.expireTime)
}

// MemoryResultCache 内存结果缓存实现（对外导出）
type MemoryResultCache struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryResultCache 创建内存结果缓存实例（对外导出）
// cleanInterval: 过期条目清理间隔，<=0 时不启动清理协程
func NewMemoryResultCache(cleanInterval time.Duration) *MemoryResultCache {
	c := &MemoryResultCache{
		cache: make(map[string]*cacheEntry),
		stop:  make(chan struct{}),
	}
	if cleanInterval > 0 {
		go c.cleanupExpired(cleanInterval)
	}
	return c
}

// Set 设置缓存值
func (c *MemoryResultCache) Set(label string, res result.Result, ttl time.Duration) error {
	if label == "" {
		return nil // 空key，忽略
	}

	entry := &cacheEntry{value: res}
	if ttl > 0 {
		entry.expireTime = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.cache[label] = entry
	c.mu.Unlock()
	return nil
}

// Get 获取缓存值
func (c *MemoryResultCache) Get(label string) (result.Result, bool) {
	if label == "" {
		return nil, false
	}

	c.mu.RLock()
	entry, exists := c.cache[label]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if entry.expired(time.Now()) {
		c.mu.Lock()
		// 重新检查，避免删除并发写入的新条目
		if cur, ok := c.cache[label]; ok && cur == entry {
			delete(c.cache, label)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryResultCache) Delete(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, label)
	return nil
}

// Clear 清空所有缓存
func (c *MemoryResultCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cacheEntry)
	return nil
}

// Len 当前缓存条目数（含未清理的过期条目）
func (c *MemoryResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止清理协程
func (c *MemoryResultCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemoryResultCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.cache {
				if entry.expired(now) {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

var _ ResultCache = (*MemoryResultCache)(nil)
