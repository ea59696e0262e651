package storage

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/core/cache"
	"github.com/LENAX/conduit/pkg/storage"
	"github.com/LENAX/conduit/pkg/storage/mysql"
	"github.com/LENAX/conduit/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/conduit/pkg/storage/sqlite"
)

// ResultStore 工厂返回的存储：结果读写 + 可关闭
type ResultStore interface {
	storage.Store
	Close() error
}

// NewResultStore 根据配置创建结果存储（内部方法）
// 启用缓存时在外层包裹 CachedStore
func NewResultStore(cfg *config.EngineConfig) (ResultStore, error) {
	return newResultStore(cfg, "")
}

// NewRunStore 创建单次运行独占的结果存储
// 本地存储使用 <dir>/<runID> 子目录，SQL 存储以 runID 作为命名空间，并发运行互不干扰
func NewRunStore(cfg *config.EngineConfig, runID string) (ResultStore, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID 不能为空")
	}
	return newResultStore(cfg, runID)
}

func newResultStore(cfg *config.EngineConfig, runID string) (ResultStore, error) {
	inner, closer, err := newBaseStore(cfg, runID)
	if err != nil {
		return nil, err
	}

	if !cfg.Conduit.Storage.Cache.Enabled {
		return &closableStore{Store: inner, close: closer}, nil
	}

	c := cache.NewMemoryResultCache(cfg.Conduit.Storage.Cache.DefaultTTL)
	cached := storage.NewCachedStore(inner, c, cfg.Conduit.Storage.Cache.DefaultTTL)
	log.Printf("[StoreFactory] 已启用结果缓存, ttl=%v", cfg.Conduit.Storage.Cache.DefaultTTL)
	return &closableStore{
		Store: cached,
		close: func() error {
			c.Close()
			return closer()
		},
	}, nil
}

func newBaseStore(cfg *config.EngineConfig, runID string) (storage.Store, func() error, error) {
	noop := func() error { return nil }
	dsn := cfg.GetStorageDSN()

	var sqlOpts []storage.SQLStoreOption
	if runID != "" {
		sqlOpts = append(sqlOpts, storage.WithNamespace(runID))
	}

	switch cfg.GetStorageType() {
	case config.StorageMemory:
		return storage.NewMemoryStore(), noop, nil
	case config.StorageLocal:
		dir := cfg.Conduit.Storage.Dir
		if dir == "" {
			dir = storage.DefaultScratchDir(storage.DefaultScratchDirName)
		}
		if runID != "" {
			dir = filepath.Join(dir, runID)
		}
		return storage.NewLocalStore(dir), noop, nil
	case config.StorageSQLite:
		s, err := pkgsqlite.NewStore(dsn, sqlOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite store failed: %w", err)
		}
		return s, s.Close, nil
	case config.StorageMySQL:
		s, err := mysql.NewStore(dsn, sqlOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create mysql store failed: %w", err)
		}
		return s, s.Close, nil
	case config.StoragePostgres, "postgresql":
		s, err := postgres.NewStore(dsn, sqlOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres store failed: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.GetStorageType())
	}
}

// closableStore 为存储附加 Close，并透传 ScratchArea 能力
type closableStore struct {
	storage.Store
	close func() error
}

func (s *closableStore) Close() error {
	return s.close()
}

// Unwrap 返回被包装的存储，供引擎探测 ScratchArea
func (s *closableStore) Unwrap() storage.Store {
	return s.Store
}
