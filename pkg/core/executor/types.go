package executor

import (
	"context"
	"time"
)

// Func 提交给执行器的任务函数
type Func func() error

// pendingTask 待执行任务（内部结构）
type pendingTask struct {
	label  string
	fn     Func
	future *Future
}

// Future 任务执行结果占位（对外导出）
type Future struct {
	label    string
	done     chan struct{}
	err      error
	duration time.Duration
}

func newFuture(label string) *Future {
	return &Future{label: label, done: make(chan struct{})}
}

func (f *Future) complete(err error, d time.Duration) {
	f.err = err
	f.duration = d
	close(f.done)
}

// Label 返回任务标签
func (f *Future) Label() string {
	return f.label
}

// Done 任务结束时关闭
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err 返回任务错误，仅在 Done 关闭后有效
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Duration 返回执行时长，仅在 Done 关闭后有效
func (f *Future) Duration() time.Duration {
	return f.duration
}

// Wait 等待任务结束
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
