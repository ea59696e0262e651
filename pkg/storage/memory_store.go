package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/LENAX/conduit/pkg/core/result"
)

// MemoryStore 内存结果存储（对外导出）
// 保存序列化后的字节，读取时按 kind 反序列化，与持久化存储行为一致
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore 创建内存结果存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// WriteResult 写入节点结果
func (s *MemoryStore) WriteResult(ctx context.Context, res result.Result, label string) error {
	payload, err := res.Serialize()
	if err != nil {
		return fmt.Errorf("序列化结果失败: label=%s: %w", label, err)
	}

	s.mu.Lock()
	s.data[label] = payload
	s.mu.Unlock()
	return nil
}

// ReadResult 读取节点结果
func (s *MemoryStore) ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error) {
	s.mu.RLock()
	payload, ok := s.data[label]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: label=%s", ErrResultNotFound, label)
	}
	return kind.Deserialize(payload)
}

// Labels 返回已写入的节点标签
func (s *MemoryStore) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make([]string, 0, len(s.data))
	for label := range s.data {
		labels = append(labels, label)
	}
	return labels
}

var _ Store = (*MemoryStore)(nil)
