package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/executor"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/storage"
)

// AsyncEngine 协作式有界并发引擎（对外导出）
// 调度决策在单个 goroutine 中进行，节点回调交给工作池执行；
// 准入闸门限制同时在途的节点数为K，与工作池大小无关
type AsyncEngine struct {
	base

	gate *semaphore.Weighted
	exec *executor.Executor

	mu       sync.Mutex
	running  map[*node.Node]struct{} // 在途节点，防止重复启动
	failure  *SchedulerError
	inflight sync.WaitGroup
	wake     chan struct{}
}

// NewAsyncEngine 创建协作式引擎
// 工作池默认大小为CPU核数；K 大于工作池时，已准入的节点在工作池队列中等待
func NewAsyncEngine(graph *dag.Dag, store storage.Store, opts ...Option) *AsyncEngine {
	e := &AsyncEngine{
		base:    newBase("AsyncEngine", graph, store, opts),
		running: make(map[*node.Node]struct{}),
		wake:    make(chan struct{}, 1),
	}
	e.gate = semaphore.NewWeighted(int64(e.opts.concurrencyLimit))
	return e
}

// ConcurrencyLimit 返回准入闸门容量K
func (e *AsyncEngine) ConcurrencyLimit() int {
	return e.opts.concurrencyLimit
}

// Start 执行一次完整运行（对外导出）
func (e *AsyncEngine) Start(ctx context.Context) error {
	return e.withScratchArea(ctx, e.loop)
}

func (e *AsyncEngine) loop(ctx context.Context) error {
	if len(e.nodes) == 0 {
		return nil
	}

	exec, err := executor.NewExecutor(e.opts.workerPoolSize)
	if err != nil {
		return fmt.Errorf("创建工作池失败: %w", err)
	}
	exec.Start()
	defer exec.Shutdown()
	e.exec = exec

	// 起点立即启动
	if err := e.launchBatch(ctx, e.graph.Sources()); err != nil {
		return e.abort(err)
	}

	ticker := time.NewTicker(e.opts.pollInterval)
	defer ticker.Stop()

	for !e.AllComplete() {
		if f := e.firstFailure(); f != nil {
			return e.abort(f)
		}

		if err := e.launchBatch(ctx, e.readyNodes()); err != nil {
			return e.abort(err)
		}

		// 节点完成时唤醒，定时轮询兜底
		select {
		case <-e.wake:
		case <-ticker.C:
		case <-ctx.Done():
			return e.abort(ctx.Err())
		}
	}

	e.inflight.Wait()
	if f := e.firstFailure(); f != nil {
		return f
	}
	return nil
}

// readyNodes 返回 Idle、依赖已完成且不在途的节点
func (e *AsyncEngine) readyNodes() []*node.Node {
	var ready []*node.Node
	for _, n := range e.NodesInState(node.Idle) {
		if e.IsReady(n) && !e.isRunning(n) {
			ready = append(ready, n)
		}
	}
	return ready
}

// launchBatch 启动一批节点，等待它们全部通过准入闸门并提交到工作池
func (e *AsyncEngine) launchBatch(ctx context.Context, batch []*node.Node) error {
	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range batch {
		if !e.markRunning(n) {
			continue
		}
		log.Printf("[AsyncEngine] 节点就绪: run=%s, node=%s", e.RunID(), n.Label())
		g.Go(func() error {
			return e.launch(gctx, ctx, n)
		})
	}
	return g.Wait()
}

// launch 获取准入名额后把节点交给工作池
// admitCtx 只用于等待名额，节点执行使用 runCtx
func (e *AsyncEngine) launch(admitCtx, runCtx context.Context, n *node.Node) error {
	if err := e.gate.Acquire(admitCtx, 1); err != nil {
		e.unmarkRunning(n)
		return err
	}

	e.inflight.Add(1)
	future, err := e.exec.Submit(n.Label(), func() error {
		return e.execute(runCtx, n)
	})
	if err != nil {
		e.gate.Release(1)
		e.inflight.Done()
		e.unmarkRunning(n)
		return err
	}

	go func() {
		<-future.Done()
		e.gate.Release(1)
		e.finish(n, future.Err())
		e.inflight.Done()
	}()
	return nil
}

func (e *AsyncEngine) markRunning(n *node.Node) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[n]; ok {
		return false
	}
	e.running[n] = struct{}{}
	return true
}

func (e *AsyncEngine) unmarkRunning(n *node.Node) {
	e.mu.Lock()
	delete(e.running, n)
	e.mu.Unlock()
}

func (e *AsyncEngine) isRunning(n *node.Node) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[n]
	return ok
}

// finish 节点结束：记录首个失败并唤醒调度循环
func (e *AsyncEngine) finish(n *node.Node, err error) {
	e.mu.Lock()
	delete(e.running, n)
	if err != nil && e.failure == nil {
		e.failure = &SchedulerError{RunID: e.RunID(), Node: n.Label(), Err: err}
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *AsyncEngine) firstFailure() *SchedulerError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// abort 停止启动新节点，等待在途节点结束后返回
func (e *AsyncEngine) abort(cause error) error {
	e.inflight.Wait()
	if f := e.firstFailure(); f != nil {
		return f
	}
	var schedErr *SchedulerError
	if errors.As(cause, &schedErr) {
		return schedErr
	}
	return &SchedulerError{RunID: e.RunID(), Err: cause}
}

var _ Runner = (*AsyncEngine)(nil)
