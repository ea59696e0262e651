package storage

import (
	"context"
	"fmt"

	"github.com/LENAX/conduit/pkg/core/result"
)

// TeeStore 写入同时复制到镜像存储（对外导出）
// 读取只走主存储；临时区域由主存储负责，删除后镜像中的结果仍可查询
type TeeStore struct {
	primary Store
	mirror  Store
}

// NewTeeStore 创建镜像写入存储
func NewTeeStore(primary, mirror Store) *TeeStore {
	return &TeeStore{primary: primary, mirror: mirror}
}

// WriteResult 先写主存储，成功后写镜像
func (s *TeeStore) WriteResult(ctx context.Context, res result.Result, label string) error {
	if err := s.primary.WriteResult(ctx, res, label); err != nil {
		return err
	}
	if err := s.mirror.WriteResult(ctx, res, label); err != nil {
		return fmt.Errorf("写入镜像存储失败: label=%s: %w", label, err)
	}
	return nil
}

// ReadResult 从主存储读取
func (s *TeeStore) ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error) {
	return s.primary.ReadResult(ctx, label, kind)
}

// Mirror 返回镜像存储
func (s *TeeStore) Mirror() Store {
	return s.mirror
}

// Unwrap 返回主存储，供引擎探测 ScratchArea
func (s *TeeStore) Unwrap() Store {
	return s.primary
}

var _ Store = (*TeeStore)(nil)
