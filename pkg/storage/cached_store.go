package storage

import (
	"context"
	"reflect"
	"time"

	"github.com/LENAX/conduit/pkg/core/cache"
	"github.com/LENAX/conduit/pkg/core/result"
)

// CachedStore 带读缓存的结果存储（对外导出）
// 写入穿透到底层存储并刷新缓存；读取优先命中缓存
type CachedStore struct {
	inner Store
	cache cache.ResultCache
	ttl   time.Duration
}

// NewCachedStore 包装底层存储
func NewCachedStore(inner Store, c cache.ResultCache, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, cache: c, ttl: ttl}
}

// Inner 返回底层存储
func (s *CachedStore) Inner() Store {
	return s.inner
}

// WriteResult 写入底层存储并更新缓存
func (s *CachedStore) WriteResult(ctx context.Context, res result.Result, label string) error {
	if err := s.inner.WriteResult(ctx, res, label); err != nil {
		_ = s.cache.Delete(label)
		return err
	}
	return s.cache.Set(label, res, s.ttl)
}

// ReadResult 读取结果，缓存中的类型必须与 kind 一致才算命中
func (s *CachedStore) ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error) {
	if cached, ok := s.cache.Get(label); ok && reflect.TypeOf(cached) == kind.Type() {
		return cached, nil
	}

	res, err := s.inner.ReadResult(ctx, label, kind)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(label, res, s.ttl)
	return res, nil
}

// CreateScratchArea 转发给底层存储（如支持）
func (s *CachedStore) CreateScratchArea(ctx context.Context) error {
	if sa, ok := s.inner.(ScratchArea); ok {
		return sa.CreateScratchArea(ctx)
	}
	return nil
}

// DeleteScratchArea 转发给底层存储（如支持）并清空缓存
func (s *CachedStore) DeleteScratchArea(ctx context.Context, ignoreMissing bool) error {
	_ = s.cache.Clear()
	if sa, ok := s.inner.(ScratchArea); ok {
		return sa.DeleteScratchArea(ctx, ignoreMissing)
	}
	return nil
}

var (
	_ Store       = (*CachedStore)(nil)
	_ ScratchArea = (*CachedStore)(nil)
)
