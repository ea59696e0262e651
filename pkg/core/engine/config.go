package engine

import (
	"fmt"

	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/storage"
)

// OptionsFromConfig 将执行配置转换为引擎选项
func OptionsFromConfig(cfg *config.EngineConfig) []Option {
	exec := cfg.Conduit.Execution
	opts := []Option{
		WithConcurrencyLimit(cfg.GetConcurrencyLimit()),
		WithPollInterval(exec.PollInterval),
		WithWorkerPoolSize(cfg.GetWorkerPoolSize()),
	}
	if exec.StrictTeardown {
		opts = append(opts, WithStrictTeardown())
	}
	return opts
}

// NewRunner 按引擎类型创建引擎（async / pool）
func NewRunner(kind string, graph *dag.Dag, store storage.Store, opts ...Option) (Runner, error) {
	switch kind {
	case config.EngineAsync, "":
		return NewAsyncEngine(graph, store, opts...), nil
	case config.EnginePool:
		return NewPoolEngine(graph, store, opts...), nil
	default:
		return nil, fmt.Errorf("不支持的引擎类型: %s", kind)
	}
}
