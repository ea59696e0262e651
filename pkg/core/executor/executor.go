package executor

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdown 执行器已关闭
var ErrShutdown = errors.New("执行器已关闭")

const (
	maxGlobalWorkers = 1000  // 全局最大并发数上限
	defaultQueueSize = 10000 // 默认任务队列大小
)

// Executor 固定大小的工作池（对外导出）
// 任务先进入队列，由调度协程在获得 worker token 后派发
type Executor struct {
	mu         sync.RWMutex
	maxWorkers int
	workerPool chan struct{}
	taskQueue  chan *pendingTask
	wg         sync.WaitGroup
	running    bool
	shutdown   chan struct{}
	stopped    chan struct{}
	active     atomic.Int64
}

// NewExecutor 创建执行器实例（对外导出）
func NewExecutor(maxWorkers int) (*Executor, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10 // 默认值
	}
	if maxWorkers > maxGlobalWorkers {
		return nil, fmt.Errorf("最大并发数不能超过 %d", maxGlobalWorkers)
	}

	exec := &Executor{
		maxWorkers: maxWorkers,
		workerPool: make(chan struct{}, maxWorkers),
		taskQueue:  make(chan *pendingTask, defaultQueueSize),
		shutdown:   make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	// 启动任务调度器
	go exec.scheduler()

	return exec, nil
}

// Start 启动执行器
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	log.Printf("✅ 执行器已启动, workers=%d", e.maxWorkers)
}

// MaxWorkers 返回工作池大小
func (e *Executor) MaxWorkers() int {
	return e.maxWorkers
}

// Active 返回正在执行的任务数
func (e *Executor) Active() int {
	return int(e.active.Load())
}

// Submit 提交任务（对外导出）
// 队列满时阻塞，直到有空间或执行器关闭
func (e *Executor) Submit(label string, fn Func) (*Future, error) {
	if fn == nil {
		return nil, fmt.Errorf("任务函数不能为空: %s", label)
	}

	// 持有读锁直到入队完成，保证 Shutdown 之后不会再有任务入队
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running {
		return nil, fmt.Errorf("执行器未运行: %s", label)
	}

	pt := &pendingTask{label: label, fn: fn, future: newFuture(label)}
	select {
	case e.taskQueue <- pt:
		return pt.future, nil
	case <-e.shutdown:
		return nil, ErrShutdown
	}
}

// Shutdown 关闭执行器，等待已派发的任务结束（对外导出）
// 队列中尚未派发的任务以 ErrShutdown 结束
func (e *Executor) Shutdown() error {
	e.mu.Lock()
	select {
	case <-e.shutdown:
		e.mu.Unlock()
		return nil
	default:
	}
	e.running = false
	close(e.shutdown)
	e.mu.Unlock()

	<-e.stopped
	e.wg.Wait()
	log.Println("✅ 执行器已关闭")
	return nil
}

// scheduler 任务调度器（内部方法）
func (e *Executor) scheduler() {
	defer close(e.stopped)
	for {
		select {
		case pt := <-e.taskQueue:
			if !e.dispatch(pt) {
				e.drain()
				return
			}
		case <-e.shutdown:
			e.drain()
			return
		}
	}
}

// dispatch 获取 worker token 后派发任务，关闭时返回 false
func (e *Executor) dispatch(pt *pendingTask) bool {
	select {
	case e.workerPool <- struct{}{}:
		e.wg.Add(1)
		go e.execute(pt)
		return true
	case <-e.shutdown:
		pt.future.complete(ErrShutdown, 0)
		return false
	}
}

// drain 结束队列中剩余的任务
func (e *Executor) drain() {
	for {
		select {
		case pt := <-e.taskQueue:
			pt.future.complete(ErrShutdown, 0)
		default:
			return
		}
	}
}

// execute 执行任务（内部方法）
func (e *Executor) execute(pt *pendingTask) {
	e.active.Add(1)
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("任务 %s panic: %v", pt.label, r)
		}
		e.active.Add(-1)
		// 先释放 token，再通知等待者
		<-e.workerPool
		pt.future.complete(err, time.Since(start))
		e.wg.Done()
	}()

	err = pt.fn()
}
