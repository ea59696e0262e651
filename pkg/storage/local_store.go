package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"

	"github.com/LENAX/conduit/pkg/core/result"
)

// DefaultScratchDirName 默认临时目录名
const DefaultScratchDirName = "conduit"

// LocalStore 本地文件系统结果存储（对外导出）
// 每个节点结果保存为 <dir>/<label>.<ext>
type LocalStore struct {
	dir string
	ext string
}

// LocalStoreOption LocalStore 配置选项
type LocalStoreOption func(*LocalStore)

// WithFileExtension 设置结果文件扩展名（默认 json）
func WithFileExtension(ext string) LocalStoreOption {
	return func(s *LocalStore) {
		s.ext = ext
	}
}

// NewLocalStore 创建本地文件系统结果存储
// dir 为空时使用系统临时目录下的 conduit 目录
func NewLocalStore(dir string, opts ...LocalStoreOption) *LocalStore {
	if dir == "" {
		dir = DefaultScratchDir(DefaultScratchDirName)
	}
	s := &LocalStore{dir: dir, ext: "json"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultScratchDir 返回系统临时目录下指定名称的目录
func DefaultScratchDir(name string) string {
	return filepath.Join(os.TempDir(), name)
}

// Dir 返回临时目录
func (s *LocalStore) Dir() string {
	return s.dir
}

// FilePath 返回节点结果文件路径
func (s *LocalStore) FilePath(label string) string {
	name := url.PathEscape(label)
	if s.ext != "" {
		name += "." + s.ext
	}
	return filepath.Join(s.dir, name)
}

// WriteResult 写入节点结果（先写临时文件再重命名，读方不会看到半个文件）
func (s *LocalStore) WriteResult(ctx context.Context, res result.Result, label string) error {
	payload, err := res.Serialize()
	if err != nil {
		return fmt.Errorf("序列化结果失败: label=%s: %w", label, err)
	}

	target := s.FilePath(label)
	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: label=%s: %w", label, err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入结果文件失败: label=%s: %w", label, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("关闭结果文件失败: label=%s: %w", label, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("提交结果文件失败: label=%s: %w", label, err)
	}
	return nil
}

// ReadResult 读取节点结果
func (s *LocalStore) ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error) {
	payload, err := os.ReadFile(s.FilePath(label))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: label=%s", ErrResultNotFound, label)
		}
		return nil, fmt.Errorf("读取结果文件失败: label=%s: %w", label, err)
	}
	return kind.Deserialize(payload)
}

// CreateScratchArea 创建临时目录
func (s *LocalStore) CreateScratchArea(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("创建临时目录失败: %s: %w", s.dir, err)
	}
	log.Printf("[LocalStore] 已创建临时目录: %s", s.dir)
	return nil
}

// DeleteScratchArea 删除临时目录
func (s *LocalStore) DeleteScratchArea(ctx context.Context, ignoreMissing bool) error {
	if _, err := os.Stat(s.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if ignoreMissing {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrScratchAreaMissing, s.dir)
		}
		return fmt.Errorf("检查临时目录失败: %s: %w", s.dir, err)
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("删除临时目录失败: %s: %w", s.dir, err)
	}
	log.Printf("[LocalStore] 已删除临时目录: %s", s.dir)
	return nil
}

var (
	_ Store       = (*LocalStore)(nil)
	_ ScratchArea = (*LocalStore)(nil)
)
