// Package service 管理通过 API 提交的流水线运行
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	internalstorage "github.com/LENAX/conduit/internal/storage"
	"github.com/LENAX/conduit/pkg/config"
	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/engine"
	"github.com/LENAX/conduit/pkg/core/events"
	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/pipeline"
	"github.com/LENAX/conduit/pkg/storage"
)

var (
	// ErrRunNotFound 运行不存在
	ErrRunNotFound = errors.New("运行不存在")
	// ErrNodeNotFound 运行中不存在该节点
	ErrNodeNotFound = errors.New("节点不存在")
	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("运行管理器已关闭")
)

// RunStatus 运行状态
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// 节点状态（对外展示）
const (
	NodePending   = "pending"
	NodeRunning   = "running"
	NodeCompleted = "completed"
	NodeFailed    = "failed"
)

// RunOptions 单次运行的可选覆盖项，零值表示使用配置
type RunOptions struct {
	Engine           string
	ConcurrencyLimit int
	WorkerPoolSize   int
	Params           map[string]string
}

// NodeSnapshot 节点状态快照
type NodeSnapshot struct {
	Label      string     `json:"label"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunSnapshot 运行状态快照
type RunSnapshot struct {
	ID         string         `json:"id"`
	Pipeline   string         `json:"pipeline"`
	Engine     string         `json:"engine"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	FailedNode string         `json:"failed_node,omitempty"`
	Nodes      []NodeSnapshot `json:"nodes"` // 拓扑序
}

// Progress 按展示状态统计节点数
func (s RunSnapshot) Progress() map[string]int {
	counts := make(map[string]int)
	for _, n := range s.Nodes {
		counts[n.State]++
	}
	return counts
}

// StoreFactory 为单次运行创建结果存储，返回的 close 在运行结束后调用
type StoreFactory func(runID string) (storage.Store, func() error, error)

// ManagerOption 运行管理器配置选项
type ManagerOption func(*RunManager)

// WithPublisher 运行事件发布到指定总线
func WithPublisher(p events.Publisher) ManagerOption {
	return func(m *RunManager) {
		m.publisher = p
	}
}

// WithRegistry 使用指定的函数注册表
func WithRegistry(r *pipeline.Registry) ManagerOption {
	return func(m *RunManager) {
		m.registry = r
	}
}

// WithStoreFactory 替换默认的存储工厂
func WithStoreFactory(f StoreFactory) ManagerOption {
	return func(m *RunManager) {
		m.newStore = f
	}
}

// RunManager 运行管理器（对外导出）
// 每次提交构建全新的图与存储，在后台执行；结果镜像到内存，临时区域删除后仍可查询
type RunManager struct {
	cfg       *config.EngineConfig
	publisher events.Publisher
	registry  *pipeline.Registry
	newStore  StoreFactory

	mu     sync.RWMutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunManager 创建运行管理器
func NewRunManager(cfg *config.EngineConfig, opts ...ManagerOption) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &RunManager{
		cfg:    cfg,
		runs:   make(map[string]*run),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = pipeline.NewRegistry()
	}
	if m.newStore == nil {
		m.newStore = func(runID string) (storage.Store, func() error, error) {
			s, err := internalstorage.NewRunStore(cfg, runID)
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		}
	}
	return m
}

// Submit 提交一次运行，立即返回运行ID（对外导出）
func (m *RunManager) Submit(def *pipeline.Definition, opts RunOptions) (string, error) {
	kind := opts.Engine
	if kind == "" {
		kind = m.cfg.Conduit.Execution.Engine
	}
	if kind != config.EngineAsync && kind != config.EnginePool {
		return "", fmt.Errorf("不支持的引擎类型: %s", kind)
	}

	runID := uuid.NewString()
	r := newRun(runID, def.Name, kind)

	graph, err := def.Build(
		pipeline.WithRegistry(m.registry),
		pipeline.WithParams(opts.Params),
		pipeline.WithNodeOptions(node.WithTransitionHook(r.onTransition)),
	)
	if err != nil {
		return "", err
	}
	if err := r.bind(graph); err != nil {
		return "", err
	}

	store, closeStore, err := m.newStore(runID)
	if err != nil {
		return "", fmt.Errorf("创建结果存储失败: %w", err)
	}
	tee := storage.NewTeeStore(store, r.results)

	engineOpts := append(engine.OptionsFromConfig(m.cfg), engine.WithRunID(runID), engine.WithEvents(m.publisher))
	if opts.ConcurrencyLimit > 0 {
		engineOpts = append(engineOpts, engine.WithConcurrencyLimit(opts.ConcurrencyLimit))
	}
	if opts.WorkerPoolSize > 0 {
		engineOpts = append(engineOpts, engine.WithWorkerPoolSize(opts.WorkerPoolSize))
	}
	runner, err := engine.NewRunner(kind, graph, tee, engineOpts...)
	if err != nil {
		_ = closeStore()
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = closeStore()
		return "", ErrManagerClosed
	}
	m.runs[runID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	log.Printf("🚀 [RunManager] 已提交运行: run=%s, pipeline=%s, engine=%s", runID, def.Name, kind)
	go func() {
		defer m.wg.Done()
		err := runner.Start(m.ctx)
		if cerr := closeStore(); cerr != nil {
			log.Printf("⚠️ [RunManager] 关闭结果存储失败: run=%s: %v", runID, cerr)
		}
		r.finish(err)
	}()
	return runID, nil
}

// Get 返回运行快照
func (m *RunManager) Get(runID string) (RunSnapshot, bool) {
	r, ok := m.lookup(runID)
	if !ok {
		return RunSnapshot{}, false
	}
	return r.snapshot(), true
}

// List 返回所有运行快照，按开始时间倒序
func (m *RunManager) List() []RunSnapshot {
	m.mu.RLock()
	out := make([]RunSnapshot, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Wait 等待运行结束
func (m *RunManager) Wait(ctx context.Context, runID string) (RunSnapshot, error) {
	r, ok := m.lookup(runID)
	if !ok {
		return RunSnapshot{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return RunSnapshot{}, ctx.Err()
	}
}

// Done 返回运行结束时关闭的通道
func (m *RunManager) Done(runID string) (<-chan struct{}, bool) {
	r, ok := m.lookup(runID)
	if !ok {
		return nil, false
	}
	return r.done, true
}

// Result 读取节点结果，运行结束后依然可用
func (m *RunManager) Result(ctx context.Context, runID, label string) (result.Result, error) {
	r, ok := m.lookup(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	kind, ok := r.kinds[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, label)
	}
	return r.results.ReadResult(ctx, label, kind)
}

// Close 取消所有运行并等待结束
func (m *RunManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	log.Println("✅ [RunManager] 已关闭")
}

func (m *RunManager) lookup(runID string) (*run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	return r, ok
}

// Plan 流水线的执行计划
type Plan struct {
	Order  []string   `json:"order"`  // 拓扑序
	Levels [][]string `json:"levels"` // 同一层的节点可以并行
	Width  int        `json:"width"`
}

// PlanOf 构建图并计算执行计划，不执行任何节点
func PlanOf(def *pipeline.Definition, params map[string]string) (Plan, error) {
	graph, err := def.Build(pipeline.WithParams(params))
	if err != nil {
		return Plan{}, err
	}
	return planOf(graph)
}

func planOf(graph *dag.Dag) (Plan, error) {
	order, err := graph.TopologicalSort()
	if err != nil {
		return Plan{}, err
	}
	levels, err := graph.Levels()
	if err != nil {
		return Plan{}, err
	}

	p := Plan{Order: labels(order)}
	for _, level := range levels {
		p.Levels = append(p.Levels, labels(level))
		if len(level) > p.Width {
			p.Width = len(level)
		}
	}
	return p, nil
}

func labels(nodes []*node.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label()
	}
	return out
}
