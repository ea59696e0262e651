package postgres

import (
	"strings"

	"github.com/LENAX/conduit/pkg/storage"
)

// Dialect PostgreSQL方言（对外导出）
type Dialect struct{}

// Name 返回方言名称
func (Dialect) Name() string {
	return "postgres"
}

// UpsertSQL 返回 INSERT ... ON CONFLICT 语句
func (Dialect) UpsertSQL(tableName string, columns []string, conflictColumns string, updateColumns []string) string {
	return storage.OnConflictUpsert(tableName, columns, conflictColumns, updateColumns)
}

// CreateTableSQL 将SQLite DDL转换为PostgreSQL DDL
func (Dialect) CreateTableSQL(schema string) string {
	return strings.ReplaceAll(schema, "DATETIME", "TIMESTAMP")
}

// ConfigureDB 无需额外配置
func (Dialect) ConfigureDB() []string {
	return nil
}

var _ storage.Dialect = Dialect{}
