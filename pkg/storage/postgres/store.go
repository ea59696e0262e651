package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/LENAX/conduit/pkg/storage"
)

// Open 打开PostgreSQL数据库
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开PostgreSQL数据库失败: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接PostgreSQL数据库失败: %w", err)
	}
	return db, nil
}

// NewStore 打开PostgreSQL数据库并创建结果存储
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
