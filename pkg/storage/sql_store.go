package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/storage/dao"
)

// DefaultResultTable 默认结果表名
const DefaultResultTable = "node_result"

// nodeResultSchema 结果表DDL（SQLite语法，由Dialect转换）
const nodeResultSchema = `
CREATE TABLE IF NOT EXISTS %s (
	namespace VARCHAR(64) NOT NULL,
	label VARCHAR(255) NOT NULL,
	kind VARCHAR(255) NOT NULL,
	payload TEXT NOT NULL,
	create_time DATETIME NOT NULL,
	PRIMARY KEY (namespace, label)
);`

// SQLStore 基于SQL数据库的结果存储（对外导出）
// 同一张表可被多次运行共享，每次运行使用独立的 namespace
type SQLStore struct {
	db        *sqlx.DB
	dialect   Dialect
	namespace string
	table     string
}

// SQLStoreOption SQLStore 配置选项
type SQLStoreOption func(*SQLStore)

// WithNamespace 指定命名空间（默认随机UUID）
func WithNamespace(namespace string) SQLStoreOption {
	return func(s *SQLStore) {
		s.namespace = namespace
	}
}

// WithTable 指定结果表名
func WithTable(table string) SQLStoreOption {
	return func(s *SQLStore) {
		s.table = table
	}
}

// NewSQLStore 创建SQL结果存储，并初始化表结构
func NewSQLStore(db *sqlx.DB, dialect Dialect, opts ...SQLStoreOption) (*SQLStore, error) {
	s := &SQLStore{
		db:        db,
		dialect:   dialect,
		namespace: uuid.NewString(),
		table:     DefaultResultTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return s, nil
}

// Namespace 返回当前命名空间
func (s *SQLStore) Namespace() string {
	return s.namespace
}

// GetDB 获取底层数据库连接
func (s *SQLStore) GetDB() *sqlx.DB {
	return s.db
}

// Close 关闭数据库连接
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	ddl := s.dialect.CreateTableSQL(fmt.Sprintf(nodeResultSchema, s.table))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("创建结果表失败: dialect=%s: %w", s.dialect.Name(), err)
	}
	return nil
}

// WriteResult 写入节点结果（UPSERT）
func (s *SQLStore) WriteResult(ctx context.Context, res result.Result, label string) error {
	payload, err := res.Serialize()
	if err != nil {
		return fmt.Errorf("序列化结果失败: label=%s: %w", label, err)
	}

	row := &dao.NodeResultDAO{
		Namespace:  s.namespace,
		Label:      label,
		Kind:       fmt.Sprintf("%T", res),
		Payload:    string(payload),
		CreateTime: time.Now().UTC(),
	}
	query := s.dialect.UpsertSQL(
		s.table,
		[]string{"namespace", "label", "kind", "payload", "create_time"},
		"namespace, label",
		[]string{"kind", "payload", "create_time"},
	)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("写入结果失败: label=%s: %w", label, err)
	}
	return nil
}

// ReadResult 读取节点结果
func (s *SQLStore) ReadResult(ctx context.Context, label string, kind result.Kind) (result.Result, error) {
	var row dao.NodeResultPayload
	query := s.db.Rebind(fmt.Sprintf("SELECT kind, payload FROM %s WHERE namespace = ? AND label = ?", s.table))
	if err := s.db.GetContext(ctx, &row, query, s.namespace, label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: label=%s", ErrResultNotFound, label)
		}
		return nil, fmt.Errorf("读取结果失败: label=%s: %w", label, err)
	}
	return kind.Deserialize([]byte(row.Payload))
}

// CreateScratchArea 确保结果表存在
func (s *SQLStore) CreateScratchArea(ctx context.Context) error {
	return s.initSchema(ctx)
}

// DeleteScratchArea 删除当前命名空间下的所有结果
func (s *SQLStore) DeleteScratchArea(ctx context.Context, ignoreMissing bool) error {
	query := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE namespace = ?", s.table))
	res, err := s.db.ExecContext(ctx, query, s.namespace)
	if err != nil {
		if ignoreMissing {
			return nil
		}
		return fmt.Errorf("删除结果失败: namespace=%s: %w", s.namespace, err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 && !ignoreMissing {
		return fmt.Errorf("%w: namespace=%s", ErrScratchAreaMissing, s.namespace)
	}
	log.Printf("[SQLStore] 已清理命名空间: %s (%d 条)", s.namespace, affected)
	return nil
}

var (
	_ Store       = (*SQLStore)(nil)
	_ ScratchArea = (*SQLStore)(nil)
)
