package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
)

// RunFactory 为每次触发构建全新的引擎（新的节点、图与存储）
type RunFactory func(ctx context.Context) (Runner, error)

// RunResult 一次定时触发的结果
type RunResult struct {
	Name  string
	RunID string
	Err   error
}

// CronScheduler 定时调度器（对外导出）
type CronScheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	jobs     map[string]RunFactory   // 名称 -> 引擎工厂
	exprs    map[string]string       // 名称 -> Cron表达式
	entries  map[string]cron.EntryID // 名称 -> cron.EntryID
	inFlight map[string]bool
	onResult func(RunResult)
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// CronOption 定时调度器配置选项
type CronOption func(*CronScheduler)

// WithRunResultHandler 每次触发结束后回调
func WithRunResultHandler(handler func(RunResult)) CronOption {
	return func(cs *CronScheduler) {
		cs.onResult = handler
	}
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(opts ...CronOption) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &CronScheduler{
		cron:     cron.New(cron.WithSeconds()), // 支持秒级精度
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:     make(map[string]RunFactory),
		exprs:    make(map[string]string),
		entries:  make(map[string]cron.EntryID),
		inFlight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// Register 注册定时运行（对外导出）
func (cs *CronScheduler) Register(name, cronExpr string, factory RunFactory) error {
	if factory == nil {
		return fmt.Errorf("定时任务 %s 未提供引擎工厂", name)
	}
	if cronExpr == "" {
		return fmt.Errorf("定时任务 %s 未设置Cron表达式", name)
	}
	if _, err := cs.parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("定时任务 %s 的Cron表达式无效: %w", name, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.jobs[name]; exists {
		return fmt.Errorf("定时任务 %s 已注册", name)
	}

	entryID, err := cs.cron.AddFunc(cronExpr, func() {
		cs.trigger(name)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}

	cs.jobs[name] = factory
	cs.exprs[name] = cronExpr
	cs.entries[name] = entryID

	log.Printf("✅ [Cron调度器] 已注册: name=%s, CronExpr=%s", name, cronExpr)
	return nil
}

// Unregister 取消注册（对外导出）
func (cs *CronScheduler) Unregister(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return fmt.Errorf("定时任务 %s 未注册", name)
	}

	cs.cron.Remove(entryID)
	delete(cs.jobs, name)
	delete(cs.exprs, name)
	delete(cs.entries, name)

	log.Printf("✅ [Cron调度器] 已取消注册: name=%s", name)
	return nil
}

// Trigger 立即触发一次运行（同步执行）
func (cs *CronScheduler) Trigger(name string) error {
	cs.mu.RLock()
	_, exists := cs.jobs[name]
	cs.mu.RUnlock()
	if !exists {
		return fmt.Errorf("定时任务 %s 未注册", name)
	}
	return cs.trigger(name).Err
}

// trigger 构建引擎并执行；同名任务上一轮未结束时跳过本轮
func (cs *CronScheduler) trigger(name string) RunResult {
	cs.mu.Lock()
	factory, exists := cs.jobs[name]
	if !exists {
		cs.mu.Unlock()
		return RunResult{Name: name, Err: fmt.Errorf("定时任务 %s 未注册", name)}
	}
	if cs.inFlight[name] {
		cs.mu.Unlock()
		log.Printf("⏭️ [Cron调度器] 上一轮尚未结束，跳过: name=%s", name)
		return RunResult{Name: name}
	}
	cs.inFlight[name] = true
	cs.mu.Unlock()

	defer func() {
		cs.mu.Lock()
		delete(cs.inFlight, name)
		cs.mu.Unlock()
	}()

	log.Printf("🕐 [Cron调度器] 触发运行: name=%s", name)

	res := RunResult{Name: name}
	runner, err := factory(cs.ctx)
	if err != nil {
		res.Err = fmt.Errorf("构建引擎失败: %w", err)
	} else {
		res.RunID = runner.RunID()
		res.Err = runner.Start(cs.ctx)
	}

	if res.Err != nil {
		log.Printf("❌ [Cron调度器] 运行失败: name=%s, run=%s, Error=%v", name, res.RunID, res.Err)
	} else {
		log.Printf("✅ [Cron调度器] 运行完成: name=%s, run=%s", name, res.RunID)
	}
	if cs.onResult != nil {
		cs.onResult(res)
	}
	return res
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时调度器，等待正在执行的运行结束（对外导出）
func (cs *CronScheduler) Stop() {
	<-cs.cron.Stop().Done()
	cs.cancel()
	log.Println("✅ [Cron调度器] 已停止")
}

// Registered 返回已注册的任务名称（按名称排序）
func (cs *CronScheduler) Registered() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expr 返回任务的Cron表达式
func (cs *CronScheduler) Expr(name string) (string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	expr, ok := cs.exprs[name]
	return expr, ok
}
