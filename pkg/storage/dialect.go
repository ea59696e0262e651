package storage

import (
	"fmt"
	"strings"
)

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// UpsertSQL 返回INSERT或UPDATE的SQL语句（使用 :column 命名参数）
	// tableName: 表名
	// columns: 列名列表
	// conflictColumns: 冲突判断列（通常是主键，多列用逗号分隔）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumns string, updateColumns []string) string

	// CreateTableSQL 将以SQLite语法书写的DDL转换为本方言的DDL
	CreateTableSQL(schema string) string

	// ConfigureDB 连接建立后需要执行的配置SQL（如SQLite的PRAGMA）
	ConfigureDB() []string
}

// NamedColumns 返回 sqlx 命名参数列表，如 ":a, :b"
func NamedColumns(columns []string) string {
	named := make([]string, len(columns))
	for i, col := range columns {
		named[i] = ":" + col
	}
	return strings.Join(named, ", ")
}

// OnConflictUpsert 生成 INSERT ... ON CONFLICT (...) DO UPDATE 语句（SQLite 3.24+ 与 PostgreSQL 通用）
func OnConflictUpsert(tableName string, columns []string, conflictColumns string, updateColumns []string) string {
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = col + " = excluded." + col
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		NamedColumns(columns),
		conflictColumns,
		strings.Join(updates, ", "),
	)
}
