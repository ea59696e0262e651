package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/events"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/storage"
)

const (
	// DefaultConcurrencyLimit 协作式引擎默认并发上限
	DefaultConcurrencyLimit = 10
	// DefaultPollInterval 协作式引擎默认轮询间隔
	DefaultPollInterval = 100 * time.Millisecond
)

// Runner 可执行一次完整运行的调度引擎（对外导出）
type Runner interface {
	// Start 驱动图中所有节点执行到 Complete，首个节点失败时返回 *SchedulerError
	Start(ctx context.Context) error
	// RunID 返回本次运行的标识
	RunID() string
}

// SchedulerError 调度失败，包装首个失败节点的错误
type SchedulerError struct {
	RunID string
	Node  string
	Err   error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("调度失败: run=%s, node=%s: %v", e.RunID, e.Node, e.Err)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}

// settings 引擎配置（内部结构）
type settings struct {
	runID            string
	concurrencyLimit int
	pollInterval     time.Duration
	workerPoolSize   int
	strictTeardown   bool
	publisher        events.Publisher
}

// Option 引擎配置选项
type Option func(*settings)

// WithRunID 指定运行标识（默认随机UUID）
func WithRunID(runID string) Option {
	return func(s *settings) {
		s.runID = runID
	}
}

// WithConcurrencyLimit 设置协作式引擎的并发上限K
func WithConcurrencyLimit(k int) Option {
	return func(s *settings) {
		s.concurrencyLimit = k
	}
}

// WithPollInterval 设置协作式引擎的兜底轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		s.pollInterval = d
	}
}

// WithWorkerPoolSize 设置工作池大小
func WithWorkerPoolSize(n int) Option {
	return func(s *settings) {
		s.workerPoolSize = n
	}
}

// WithStrictTeardown 清理临时区域失败时返回错误（默认忽略）
func WithStrictTeardown() Option {
	return func(s *settings) {
		s.strictTeardown = true
	}
}

// WithEvents 发布运行与节点生命周期事件
func WithEvents(p events.Publisher) Option {
	return func(s *settings) {
		s.publisher = p
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		concurrencyLimit: DefaultConcurrencyLimit,
		pollInterval:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.concurrencyLimit <= 0 {
		s.concurrencyLimit = DefaultConcurrencyLimit
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.workerPoolSize <= 0 {
		s.workerPoolSize = runtime.NumCPU()
	}
	return s
}

// base 各引擎共享的图查询与运行仪式（内部结构）
type base struct {
	name  string
	graph *dag.Dag
	store storage.Store
	opts  settings
	deps  map[*node.Node][]*node.Node
	nodes []*node.Node
}

func newBase(name string, graph *dag.Dag, store storage.Store, opts []Option) base {
	return base{
		name:  name,
		graph: graph,
		store: store,
		opts:  newSettings(opts),
		deps:  graph.DependencyIndex(),
		nodes: graph.Nodes(),
	}
}

// RunID 返回本次运行的标识
func (b *base) RunID() string {
	return b.opts.runID
}

// NodesInState 返回处于指定状态的节点
func (b *base) NodesInState(state node.State) []*node.Node {
	var out []*node.Node
	for _, n := range b.nodes {
		if n.State() == state {
			out = append(out, n)
		}
	}
	return out
}

// IsReady 所有直接依赖均已 Complete
func (b *base) IsReady(n *node.Node) bool {
	for _, dep := range b.deps[n] {
		if dep.State() != node.Complete {
			return false
		}
	}
	return true
}

// AllComplete 所有节点均已 Complete
func (b *base) AllComplete() bool {
	for _, n := range b.nodes {
		if n.State() != node.Complete {
			return false
		}
	}
	return true
}

// execute 在当前 goroutine 中执行节点并发布事件
func (b *base) execute(ctx context.Context, n *node.Node) error {
	events.Emit(ctx, b.opts.publisher, events.NewEvent(events.EventNodeStarted, b.RunID(), n.Label()))
	start := time.Now()

	err := n.Start(ctx, b.deps[n], b.store)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("❌ [%s] 节点执行失败: run=%s, node=%s, 耗时=%v: %v", b.name, b.RunID(), n.Label(), elapsed, err)
		events.Emit(ctx, b.opts.publisher, events.NewEvent(events.EventNodeFailed, b.RunID(), n.Label()).WithError(err).WithDuration(elapsed))
		return err
	}
	log.Printf("✅ [%s] 节点执行完成: run=%s, node=%s, 耗时=%v", b.name, b.RunID(), n.Label(), elapsed)
	events.Emit(ctx, b.opts.publisher, events.NewEvent(events.EventNodeCompleted, b.RunID(), n.Label()).WithDuration(elapsed))
	return nil
}

// withScratchArea 运行仪式：清理残留临时区域、创建、运行、无论成败都删除
func (b *base) withScratchArea(ctx context.Context, run func(ctx context.Context) error) (err error) {
	start := time.Now()
	log.Printf("🚀 [%s] 运行开始: run=%s, nodes=%d", b.name, b.RunID(), len(b.nodes))
	events.Emit(ctx, b.opts.publisher, events.NewEvent(events.EventRunStarted, b.RunID(), "").WithMetadata("engine", b.name))

	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			log.Printf("❌ [%s] 运行失败: run=%s, 耗时=%v: %v", b.name, b.RunID(), elapsed, err)
			failed := ""
			var se *SchedulerError
			if errors.As(err, &se) {
				failed = se.Node
			}
			events.Emit(ctx, b.opts.publisher, events.NewEvent(events.EventRunFailed, b.RunID(), failed).WithError(err).WithDuration(elapsed))
			return
		}
		log.Printf("⏱️ [%s] 运行完成: run=%s, 耗时=%v", b.name, b.RunID(), elapsed)
		events.Emit(ctx, b.opts.publisher, events.NewEvent(events.EventRunCompleted, b.RunID(), "").WithDuration(elapsed))
	}()

	sa, ok := storage.ScratchAreaOf(b.store)
	if !ok {
		return run(ctx)
	}

	// 清理上次运行残留，错误忽略
	_ = sa.DeleteScratchArea(ctx, true)
	if err := sa.CreateScratchArea(ctx); err != nil {
		return fmt.Errorf("创建临时区域失败: %w", err)
	}

	defer func() {
		// 即使 ctx 已取消也要清理
		teardownErr := sa.DeleteScratchArea(context.WithoutCancel(ctx), true)
		if teardownErr == nil {
			return
		}
		if b.opts.strictTeardown && err == nil {
			err = fmt.Errorf("删除临时区域失败: %w", teardownErr)
			return
		}
		log.Printf("⚠️ [%s] 删除临时区域失败（已忽略）: run=%s: %v", b.name, b.RunID(), teardownErr)
	}()

	return run(ctx)
}
