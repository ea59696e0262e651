package sqlite

import (
	"github.com/LENAX/conduit/pkg/storage"
)

// Dialect SQLite方言（对外导出）
// DDL 本身即以 SQLite 语法书写，无需转换
type Dialect struct{}

// Name 返回方言名称
func (Dialect) Name() string {
	return "sqlite"
}

// UpsertSQL 使用 ON CONFLICT DO UPDATE，保留原行而不是删除后重插
func (Dialect) UpsertSQL(tableName string, columns []string, conflictColumns string, updateColumns []string) string {
	return storage.OnConflictUpsert(tableName, columns, conflictColumns, updateColumns)
}

// CreateTableSQL 原样返回
func (Dialect) CreateTableSQL(schema string) string {
	return schema
}

// ConfigureDB 并发运行共享同一个数据库文件，开启 WAL 并等待写锁
func (Dialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

var _ storage.Dialect = Dialect{}
