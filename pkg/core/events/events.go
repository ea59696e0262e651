// Package events 提供运行与节点生命周期事件的发布订阅
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 运行事件
	EventRunStarted   EventType = "run.started"   // 运行开始
	EventRunCompleted EventType = "run.completed" // 运行完成
	EventRunFailed    EventType = "run.failed"    // 运行失败

	// 节点事件
	EventNodeStarted   EventType = "node.started"   // 节点开始执行
	EventNodeCompleted EventType = "node.completed" // 节点执行完成
	EventNodeFailed    EventType = "node.failed"    // 节点执行失败

	// 扇出事件
	EventChildExited EventType = "fanout.child_exited" // 子进程退出
)

// Event 生命周期事件
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	RunID     string            `json:"run_id"`
	Node      string            `json:"node,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  int64             `json:"duration_ms,omitempty"` // 执行时长（毫秒）
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent 创建事件
func NewEvent(eventType EventType, runID, nodeLabel string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Node:      nodeLabel,
		Timestamp: time.Now(),
	}
}

// WithError 附加错误信息
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration 附加执行时长
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d.Milliseconds()
	return e
}

// WithMetadata 添加元数据
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Terminal 是否为运行的终止事件
func (e *Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}
