package mysql

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/conduit/pkg/storage"
)

// Open 打开MySQL数据库
// dsn 需包含 parseTime=true
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开MySQL数据库失败: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接MySQL数据库失败: %w", err)
	}
	return db, nil
}

// NewStore 打开MySQL数据库并创建结果存储
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
