package sqlite

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/conduit/pkg/storage"
)

// Open 打开SQLite数据库并应用PRAGMA配置
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite数据库失败: %w", err)
	}
	// SQLite 单写者，PRAGMA 只作用于当前连接
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接SQLite数据库失败: %w", err)
	}

	dialect := Dialect{}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			log.Printf("⚠️ SQLite配置失败: %s: %v", stmt, err)
		}
	}
	return db, nil
}

// NewStore 打开SQLite数据库并创建结果存储
func NewStore(dsn string, opts ...storage.SQLStoreOption) (*storage.SQLStore, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLStore(db, Dialect{}, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
