package config

import (
	"runtime"
	"time"
)

// 支持的引擎类型
const (
	EngineAsync = "async"
	EnginePool  = "pool"
)

// 支持的存储类型
const (
	StorageMemory   = "memory"
	StorageLocal    = "local"
	StorageSQLite   = "sqlite"
	StorageMySQL    = "mysql"
	StoragePostgres = "postgres"
)

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	Conduit struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Type  string `yaml:"type"`
			Dir   string `yaml:"dir"` // local 存储的临时目录
			DSN   string `yaml:"dsn"` // SQL 存储的连接字符串
			Cache struct {
				Enabled    bool          `yaml:"enabled"`
				DefaultTTL time.Duration `yaml:"default_ttl"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Execution struct {
			Engine           string        `yaml:"engine"`
			ConcurrencyLimit int           `yaml:"concurrency_limit"`
			PollInterval     time.Duration `yaml:"poll_interval"`
			WorkerPoolSize   int           `yaml:"worker_pool_size"`
			MaxProcessors    int           `yaml:"max_processors"`
			StrictTeardown   bool          `yaml:"strict_teardown"`
		} `yaml:"execution"`
		Server struct {
			Host string `yaml:"host"`
			Port int    `yaml:"port"`
		} `yaml:"server"`
	} `yaml:"conduit"`
}

// Default 返回填充默认值的配置
func Default() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// GetStorageType 获取存储类型
func (c *EngineConfig) GetStorageType() string {
	return c.Conduit.Storage.Type
}

// GetStorageDSN 获取SQL存储DSN
func (c *EngineConfig) GetStorageDSN() string {
	return c.Conduit.Storage.DSN
}

// GetConcurrencyLimit 获取协作式引擎的并发上限K
func (c *EngineConfig) GetConcurrencyLimit() int {
	limit := c.Conduit.Execution.ConcurrencyLimit
	if limit <= 0 {
		return 10 // 默认值
	}
	return limit
}

// GetWorkerPoolSize 获取工作池大小
func (c *EngineConfig) GetWorkerPoolSize() int {
	size := c.Conduit.Execution.WorkerPoolSize
	if size <= 0 {
		return runtime.NumCPU()
	}
	return size
}

// GetMaxProcessors 获取扇出引擎的最大进程数M
func (c *EngineConfig) GetMaxProcessors() int {
	m := c.Conduit.Execution.MaxProcessors
	if m <= 0 {
		return runtime.NumCPU()
	}
	return m
}

// IsDebug 是否开启调试日志
func (c *EngineConfig) IsDebug() bool {
	return c.Conduit.General.LogLevel == "debug"
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	// General默认值
	if c.Conduit.General.InstanceName == "" {
		c.Conduit.General.InstanceName = "conduit"
	}
	if c.Conduit.General.LogLevel == "" {
		c.Conduit.General.LogLevel = "info"
	}
	if c.Conduit.General.Env == "" {
		c.Conduit.General.Env = "dev"
	}

	// Storage默认值
	if c.Conduit.Storage.Type == "" {
		c.Conduit.Storage.Type = StorageLocal
	}
	if c.Conduit.Storage.Cache.DefaultTTL <= 0 {
		c.Conduit.Storage.Cache.DefaultTTL = 1 * time.Hour
	}

	// Execution默认值
	if c.Conduit.Execution.Engine == "" {
		c.Conduit.Execution.Engine = EngineAsync
	}
	if c.Conduit.Execution.ConcurrencyLimit == 0 {
		c.Conduit.Execution.ConcurrencyLimit = 10
	}
	if c.Conduit.Execution.PollInterval == 0 {
		c.Conduit.Execution.PollInterval = 100 * time.Millisecond
	}

	// Server默认值
	if c.Conduit.Server.Host == "" {
		c.Conduit.Server.Host = "0.0.0.0"
	}
	if c.Conduit.Server.Port == 0 {
		c.Conduit.Server.Port = 8080
	}
}
