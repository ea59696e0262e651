package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/executor"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/storage"
)

// PoolEngine 固定大小线程池引擎（对外导出）
// 起点批量提交，之后每当有节点结束就扫描并提交新的就绪节点；
// 节点只在依赖全部完成后才提交，工作池饱和时不会因等待依赖而占住 worker
type PoolEngine struct {
	base
}

// NewPoolEngine 创建线程池引擎，工作池默认大小为CPU核数
func NewPoolEngine(graph *dag.Dag, store storage.Store, opts ...Option) *PoolEngine {
	return &PoolEngine{base: newBase("PoolEngine", graph, store, opts)}
}

// PoolSize 返回工作池大小
func (e *PoolEngine) PoolSize() int {
	return e.opts.workerPoolSize
}

// Start 执行一次完整运行（对外导出）
func (e *PoolEngine) Start(ctx context.Context) error {
	return e.withScratchArea(ctx, e.run)
}

func (e *PoolEngine) run(ctx context.Context) error {
	if len(e.nodes) == 0 {
		return nil
	}

	exec, err := executor.NewExecutor(e.opts.workerPoolSize)
	if err != nil {
		return fmt.Errorf("创建工作池失败: %w", err)
	}
	exec.Start()
	defer exec.Shutdown()

	submitted := make(map[*node.Node]bool, len(e.nodes))
	owner := make(map[*executor.Future]*node.Node, len(e.nodes))
	done := make(chan *executor.Future, len(e.nodes))
	var failure *SchedulerError
	pending := 0

	submit := func(n *node.Node) error {
		f, err := exec.Submit(n.Label(), func() error {
			return e.execute(ctx, n)
		})
		if err != nil {
			return err
		}
		submitted[n] = true
		owner[f] = n
		pending++
		go func() {
			<-f.Done()
			done <- f
		}()
		return nil
	}

	for _, src := range e.graph.Sources() {
		if err := submit(src); err != nil {
			return &SchedulerError{RunID: e.RunID(), Node: src.Label(), Err: err}
		}
	}

	for pending > 0 {
		// 等待任一节点结束
		var f *executor.Future
		select {
		case f = <-done:
		case <-ctx.Done():
			if failure == nil {
				failure = &SchedulerError{RunID: e.RunID(), Err: ctx.Err()}
			}
			f = <-done
		}
		pending--

		if err := f.Err(); err != nil && failure == nil {
			failure = &SchedulerError{RunID: e.RunID(), Node: owner[f].Label(), Err: err}
		}
		if failure != nil {
			// 首个失败后不再提交，等待已提交的节点结束
			continue
		}

		for _, n := range e.NodesInState(node.Idle) {
			if submitted[n] || !e.IsReady(n) {
				continue
			}
			if err := submit(n); err != nil {
				failure = &SchedulerError{RunID: e.RunID(), Node: n.Label(), Err: err}
				break
			}
		}
	}

	if failure != nil {
		return failure
	}
	if !e.AllComplete() {
		log.Printf("⚠️ [PoolEngine] 所有任务已结束但存在未完成节点: run=%s", e.RunID())
		return &SchedulerError{RunID: e.RunID(), Err: fmt.Errorf("存在未完成节点")}
	}
	return nil
}

var _ Runner = (*PoolEngine)(nil)
