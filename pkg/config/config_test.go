package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
conduit:
  general:
    instance_name: "test-conduit"
    log_level: "debug"
    env: "test"
  storage:
    type: "sqlite"
    dsn: "./results.db"
    cache:
      enabled: true
      default_ttl: "2h"
  execution:
    engine: "pool"
    concurrency_limit: 4
    poll_interval: "50ms"
    worker_pool_size: 2
    strict_teardown: true
  server:
    port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-conduit", cfg.Conduit.General.InstanceName)
	assert.True(t, cfg.IsDebug())
	assert.Equal(t, StorageSQLite, cfg.GetStorageType())
	assert.Equal(t, "./results.db", cfg.GetStorageDSN())
	assert.True(t, cfg.Conduit.Storage.Cache.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Conduit.Storage.Cache.DefaultTTL)
	assert.Equal(t, EnginePool, cfg.Conduit.Execution.Engine)
	assert.Equal(t, 4, cfg.GetConcurrencyLimit())
	assert.Equal(t, 50*time.Millisecond, cfg.Conduit.Execution.PollInterval)
	assert.Equal(t, 2, cfg.GetWorkerPoolSize())
	assert.True(t, cfg.Conduit.Execution.StrictTeardown)
	assert.Equal(t, 9090, cfg.Conduit.Server.Port)
	// 未配置项使用默认值
	assert.Equal(t, "0.0.0.0", cfg.Conduit.Server.Host)
}

func TestLoad_FileMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "conduit", cfg.Conduit.General.InstanceName)
	assert.Equal(t, StorageLocal, cfg.GetStorageType())
	assert.Equal(t, EngineAsync, cfg.Conduit.Execution.Engine)
	assert.Equal(t, 10, cfg.GetConcurrencyLimit())
	assert.Equal(t, 100*time.Millisecond, cfg.Conduit.Execution.PollInterval)
	assert.Equal(t, runtime.NumCPU(), cfg.GetWorkerPoolSize())
	assert.Equal(t, runtime.NumCPU(), cfg.GetMaxProcessors())
	assert.Equal(t, 8080, cfg.Conduit.Server.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "conduit: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"unknown engine", func(c *EngineConfig) { c.Conduit.Execution.Engine = "threads" }},
		{"unknown storage", func(c *EngineConfig) { c.Conduit.Storage.Type = "redis" }},
		{"sql without dsn", func(c *EngineConfig) { c.Conduit.Storage.Type = StorageMySQL }},
		{"negative concurrency", func(c *EngineConfig) { c.Conduit.Execution.ConcurrencyLimit = -1 }},
		{"negative pool", func(c *EngineConfig) { c.Conduit.Execution.WorkerPoolSize = -2 }},
		{"too many processors", func(c *EngineConfig) { c.Conduit.Execution.MaxProcessors = runtime.NumCPU() + 1 }},
		{"bad log level", func(c *EngineConfig) { c.Conduit.General.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}
