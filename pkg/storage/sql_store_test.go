package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/storage"
	"github.com/LENAX/conduit/pkg/storage/mysql"
	"github.com/LENAX/conduit/pkg/storage/postgres"
	"github.com/LENAX/conduit/pkg/storage/sqlite"
)

func newSQLiteStore(t *testing.T, opts ...storage.SQLStoreOption) *storage.SQLStore {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "results.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_ReadWrite(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	textKind := result.KindOf[result.Text]()

	_, err := s.ReadResult(ctx, "a", textKind)
	assert.ErrorIs(t, err, storage.ErrResultNotFound)

	require.NoError(t, s.WriteResult(ctx, result.Text{Value: "hello"}, "a"))
	got, err := s.ReadResult(ctx, "a", textKind)
	require.NoError(t, err)
	assert.Equal(t, result.Text{Value: "hello"}, got)

	require.NoError(t, s.WriteResult(ctx, result.Text{Value: "world"}, "a"))
	got, err = s.ReadResult(ctx, "a", textKind)
	require.NoError(t, err)
	assert.Equal(t, result.Text{Value: "world"}, got)
}

func TestSQLStore_NamespaceIsolation(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	textKind := result.KindOf[result.Text]()

	first, err := sqlite.NewStore(dsn, storage.WithNamespace("run-1"))
	require.NoError(t, err)
	defer first.Close()
	second, err := sqlite.NewStore(dsn, storage.WithNamespace("run-2"))
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.WriteResult(ctx, result.Text{Value: "x"}, "a"))
	_, err = second.ReadResult(ctx, "a", textKind)
	assert.ErrorIs(t, err, storage.ErrResultNotFound)

	require.NoError(t, first.DeleteScratchArea(ctx, false))
	_, err = first.ReadResult(ctx, "a", textKind)
	assert.ErrorIs(t, err, storage.ErrResultNotFound)
}

func TestSQLStore_ScratchArea(t *testing.T) {
	s := newSQLiteStore(t, storage.WithTable("custom_results"))
	ctx := context.Background()

	require.NoError(t, s.CreateScratchArea(ctx))
	assert.ErrorIs(t, s.DeleteScratchArea(ctx, false), storage.ErrScratchAreaMissing)
	assert.NoError(t, s.DeleteScratchArea(ctx, true))

	require.NoError(t, s.WriteResult(ctx, result.Empty{}, "n"))
	assert.NoError(t, s.DeleteScratchArea(ctx, false))
	assert.NotEmpty(t, s.Namespace())
}

func TestDialects_UpsertSQL(t *testing.T) {
	cols := []string{"namespace", "label", "payload"}
	updates := []string{"payload"}

	assert.Equal(t,
		"INSERT INTO r (namespace, label, payload) VALUES (:namespace, :label, :payload) ON CONFLICT (namespace, label) DO UPDATE SET payload = excluded.payload",
		sqlite.Dialect{}.UpsertSQL("r", cols, "namespace, label", updates))
	assert.Equal(t,
		sqlite.Dialect{}.UpsertSQL("r", cols, "namespace, label", updates),
		postgres.Dialect{}.UpsertSQL("r", cols, "namespace, label", updates))
	assert.Equal(t,
		"INSERT INTO r (namespace, label, payload) VALUES (:namespace, :label, :payload) ON DUPLICATE KEY UPDATE payload = VALUES(payload)",
		mysql.Dialect{}.UpsertSQL("r", cols, "namespace, label", updates))
}

func TestDialects_CreateTableSQL(t *testing.T) {
	ddl := "CREATE TABLE t (create_time DATETIME NOT NULL);"
	assert.Equal(t, ddl, sqlite.Dialect{}.CreateTableSQL(ddl))
	assert.Equal(t, "CREATE TABLE t (create_time TIMESTAMP NOT NULL);", postgres.Dialect{}.CreateTableSQL(ddl))
	assert.Equal(t, "CREATE TABLE t (create_time DATETIME NOT NULL) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;", mysql.Dialect{}.CreateTableSQL(ddl))
}

func TestSQLStore_OverwriteKeepsSingleRow(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteResult(ctx, result.Text{Value: "v1"}, "a"))
	require.NoError(t, s.WriteResult(ctx, result.Text{Value: "v2"}, "a"))

	var rows int
	require.NoError(t, s.GetDB().Get(&rows, s.GetDB().Rebind("SELECT COUNT(*) FROM node_result WHERE namespace = ?"), s.Namespace()))
	assert.Equal(t, 1, rows)
}
