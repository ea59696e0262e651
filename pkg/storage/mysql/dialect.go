package mysql

import (
	"fmt"
	"strings"

	"github.com/LENAX/conduit/pkg/storage"
)

// Dialect MySQL方言（对外导出）
type Dialect struct{}

// Name 返回方言名称
func (Dialect) Name() string {
	return "mysql"
}

// UpsertSQL 返回 INSERT ... ON DUPLICATE KEY UPDATE 语句，冲突列由主键决定
func (Dialect) UpsertSQL(tableName string, columns []string, _ string, updateColumns []string) string {
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		storage.NamedColumns(columns),
		strings.Join(updates, ", "),
	)
}

// CreateTableSQL 追加InnoDB引擎与字符集
func (Dialect) CreateTableSQL(schema string) string {
	s := strings.TrimSpace(schema)
	s = strings.TrimSuffix(s, ";")
	return s + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;"
}

// ConfigureDB 无需额外配置
func (Dialect) ConfigureDB() []string {
	return nil
}

var _ storage.Dialect = Dialect{}
