package config

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidConfig 配置不合法
var ErrInvalidConfig = errors.New("配置不合法")

// Validate 校验配置合法性
func (c *EngineConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: 配置不能为空", ErrInvalidConfig)
	}

	// 校验General
	if c.Conduit.General.InstanceName == "" {
		return fmt.Errorf("%w: instance_name不能为空", ErrInvalidConfig)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Conduit.General.LogLevel != "" && !validLevels[c.Conduit.General.LogLevel] {
		return fmt.Errorf("%w: log_level必须是debug/info/warn/error之一", ErrInvalidConfig)
	}

	// 校验Storage
	switch c.Conduit.Storage.Type {
	case StorageMemory, StorageLocal:
	case StorageSQLite, StorageMySQL, StoragePostgres:
		if c.Conduit.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn不能为空（type=%s）", ErrInvalidConfig, c.Conduit.Storage.Type)
		}
	default:
		return fmt.Errorf("%w: storage.type必须是memory/local/sqlite/mysql/postgres之一", ErrInvalidConfig)
	}

	// 校验Execution
	exec := c.Conduit.Execution
	if exec.Engine != EngineAsync && exec.Engine != EnginePool {
		return fmt.Errorf("%w: execution.engine必须是async/pool之一", ErrInvalidConfig)
	}
	if exec.ConcurrencyLimit < 0 {
		return fmt.Errorf("%w: execution.concurrency_limit不能为负数", ErrInvalidConfig)
	}
	if exec.PollInterval < 0 {
		return fmt.Errorf("%w: execution.poll_interval不能为负数", ErrInvalidConfig)
	}
	if exec.WorkerPoolSize < 0 {
		return fmt.Errorf("%w: execution.worker_pool_size不能为负数", ErrInvalidConfig)
	}
	if exec.MaxProcessors < 0 {
		return fmt.Errorf("%w: execution.max_processors不能为负数", ErrInvalidConfig)
	}
	if exec.MaxProcessors > runtime.NumCPU() {
		return fmt.Errorf("%w: execution.max_processors(%d)超过CPU核数(%d)", ErrInvalidConfig, exec.MaxProcessors, runtime.NumCPU())
	}

	if c.Conduit.Server.Port < 0 || c.Conduit.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port超出范围", ErrInvalidConfig)
	}
	return nil
}
