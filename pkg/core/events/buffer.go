package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Buffer 订阅端事件缓冲区（背压控制）
// 消费方跟不上时丢弃非终止事件；终止事件总是阻塞写入，保证消费方能看到运行结束
type Buffer struct {
	data         chan *Event
	capacity     int
	threshold    float64
	backpressure atomic.Bool
	closeOnce    sync.Once

	totalIn  atomic.Int64
	totalOut atomic.Int64
	dropped  atomic.Int64

	mu             sync.RWMutex
	onBackpressure func(usage float64)
}

// NewBuffer 创建事件缓冲区，capacity<=0 时取 256
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &Buffer{
		data:      make(chan *Event, capacity),
		capacity:  capacity,
		threshold: 0.8,
	}
}

// SetBackpressureCallback 设置背压触发回调
func (b *Buffer) SetBackpressureCallback(callback func(usage float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBackpressure = callback
}

// Drain 把订阅通道中的事件搬入缓冲区，订阅关闭或 ctx 取消后关闭缓冲区
// 每个缓冲区只能有一个 Drain
func (b *Buffer) Drain(ctx context.Context, in <-chan *Event) {
	defer b.closeOnce.Do(func() { close(b.data) })
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			if !b.push(ctx, e) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// push 写入事件；返回 false 表示 ctx 已取消
func (b *Buffer) push(ctx context.Context, e *Event) bool {
	if e.Terminal() {
		select {
		case b.data <- e:
			b.totalIn.Add(1)
			return true
		case <-ctx.Done():
			return false
		}
	}

	select {
	case b.data <- e:
		b.totalIn.Add(1)
		b.checkBackpressure()
	default:
		// 缓冲区满，丢弃
		b.dropped.Add(1)
	}
	return true
}

// Next 取出下一个事件；缓冲区关闭或 ctx 取消时返回 false
func (b *Buffer) Next(ctx context.Context) (*Event, bool) {
	select {
	case e, ok := <-b.data:
		if !ok {
			return nil, false
		}
		b.totalOut.Add(1)
		b.checkBackpressure()
		return e, true
	case <-ctx.Done():
		return nil, false
	}
}

// TryNext 非阻塞取出事件
func (b *Buffer) TryNext() (*Event, bool) {
	select {
	case e, ok := <-b.data:
		if !ok {
			return nil, false
		}
		b.totalOut.Add(1)
		b.checkBackpressure()
		return e, true
	default:
		return nil, false
	}
}

// Len 当前缓冲的事件数
func (b *Buffer) Len() int {
	return len(b.data)
}

// Usage 使用率
func (b *Buffer) Usage() float64 {
	return float64(len(b.data)) / float64(b.capacity)
}

// IsBackpressure 是否处于背压状态
func (b *Buffer) IsBackpressure() bool {
	return b.backpressure.Load()
}

// checkBackpressure 使用率超过阈值进入背压，降到阈值一半以下解除
func (b *Buffer) checkBackpressure() {
	usage := b.Usage()
	if usage >= b.threshold {
		if b.backpressure.CompareAndSwap(false, true) {
			b.mu.RLock()
			callback := b.onBackpressure
			b.mu.RUnlock()
			if callback != nil {
				go callback(usage)
			}
		}
	} else if usage < b.threshold*0.5 {
		b.backpressure.Store(false)
	}
}

// Stats 获取统计信息
func (b *Buffer) Stats() (totalIn, totalOut, dropped int64) {
	return b.totalIn.Load(), b.totalOut.Load(), b.dropped.Load()
}
