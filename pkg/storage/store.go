package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/LENAX/conduit/pkg/core/result"
)

var (
	// ErrResultNotFound 读取的节点结果尚未写入
	ErrResultNotFound = errors.New("节点结果不存在")
	// ErrScratchAreaMissing 删除临时区域时区域不存在
	ErrScratchAreaMissing = errors.New("临时存储区域不存在")
)

// Store 节点结果存储接口（对外导出）
// 以节点标签为键，一次写入、多次读取；不同键的并发写入必须安全
type Store interface {
	// WriteResult 写入节点结果，覆盖已有键是允许的
	WriteResult(ctx context.Context, res result.Result, label string) error
	// ReadResult 读取节点结果并按 kind 反序列化，未写入时返回 ErrResultNotFound
	ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error)
}

// ScratchArea 可选的临时区域生命周期接口
// 引擎在运行前调用 CreateScratchArea，运行结束（成功或失败）后调用 DeleteScratchArea
type ScratchArea interface {
	CreateScratchArea(ctx context.Context) error
	DeleteScratchArea(ctx context.Context, ignoreMissing bool) error
}

// ReadResults 批量读取多个节点的结果（对外导出）
// kinds: 节点标签 -> 结果类型
func ReadResults(ctx context.Context, s Store, kinds map[string]result.Kind) (map[string]result.Result, error) {
	out := make(map[string]result.Result, len(kinds))
	for label, kind := range kinds {
		res, err := s.ReadResult(ctx, label, kind)
		if err != nil {
			return nil, fmt.Errorf("批量读取结果失败: label=%s: %w", label, err)
		}
		out[label] = res
	}
	return out, nil
}

// ScratchAreaOf 返回存储的临时区域能力
// 支持通过 Unwrap() Store 逐层解包的包装存储
func ScratchAreaOf(s Store) (ScratchArea, bool) {
	for s != nil {
		if sa, ok := s.(ScratchArea); ok {
			return sa, true
		}
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}
