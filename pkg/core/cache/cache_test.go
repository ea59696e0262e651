package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/conduit/pkg/core/result"
)

// TestMemoryResultCache_SetAndGet 测试缓存设置和获取
func TestMemoryResultCache_SetAndGet(t *testing.T) {
	c := NewMemoryResultCache(0)
	defer c.Close()

	res := result.Text{Value: "test result"}
	if err := c.Set("node-1", res, time.Hour); err != nil {
		t.Fatalf("设置缓存失败: %v", err)
	}

	cached, found := c.Get("node-1")
	if !found {
		t.Fatal("期望缓存存在，但未找到")
	}
	if cached != res {
		t.Errorf("期望缓存值为'%v'，实际为'%v'", res, cached)
	}
}

// TestMemoryResultCache_TTLExpiration 测试缓存TTL过期
func TestMemoryResultCache_TTLExpiration(t *testing.T) {
	c := NewMemoryResultCache(0)
	defer c.Close()

	if err := c.Set("node-1", result.Text{Value: "v"}, 50*time.Millisecond); err != nil {
		t.Fatalf("设置缓存失败: %v", err)
	}
	if _, found := c.Get("node-1"); !found {
		t.Fatal("期望缓存存在，但未找到")
	}

	time.Sleep(80 * time.Millisecond)

	if _, found := c.Get("node-1"); found {
		t.Error("期望缓存已过期，但仍然存在")
	}
	if c.Len() != 0 {
		t.Errorf("过期条目应在读取时删除，实际剩余 %d 条", c.Len())
	}
}

// TestMemoryResultCache_NoTTL 测试不过期条目
func TestMemoryResultCache_NoTTL(t *testing.T) {
	c := NewMemoryResultCache(10 * time.Millisecond)
	defer c.Close()

	_ = c.Set("node-1", result.Empty{}, 0)
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("node-1"); !found {
		t.Error("ttl<=0 的条目不应过期")
	}
}

// TestMemoryResultCache_CleanupLoop 测试后台清理协程
func TestMemoryResultCache_CleanupLoop(t *testing.T) {
	c := NewMemoryResultCache(10 * time.Millisecond)
	defer c.Close()

	_ = c.Set("node-1", result.Empty{}, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if c.Len() != 0 {
		t.Errorf("清理协程应删除过期条目，实际剩余 %d 条", c.Len())
	}
}

// TestMemoryResultCache_DeleteAndClear 测试删除与清空
func TestMemoryResultCache_DeleteAndClear(t *testing.T) {
	c := NewMemoryResultCache(0)
	defer c.Close()

	_ = c.Set("a", result.Empty{}, time.Hour)
	_ = c.Set("b", result.Empty{}, time.Hour)

	_ = c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("删除后不应存在")
	}

	_ = c.Clear()
	if c.Len() != 0 {
		t.Errorf("清空后应为空，实际 %d 条", c.Len())
	}
}

// TestMemoryResultCache_ConcurrentAccess 测试缓存并发安全
func TestMemoryResultCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryResultCache(time.Millisecond)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			label := fmt.Sprintf("node-%d", idx)
			res := result.Text{Value: fmt.Sprintf("result-%d", idx)}
			_ = c.Set(label, res, time.Hour)
			if got, ok := c.Get(label); !ok || got != res {
				t.Errorf("并发读取失败: %s", label)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 100 {
		t.Errorf("期望 100 条缓存，实际 %d 条", c.Len())
	}
}
