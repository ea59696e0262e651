package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic 生命周期事件主题
const Topic = "conduit.lifecycle"

// Publisher 事件发布接口，引擎只依赖该接口
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Bus 基于 watermill gochannel 的进程内事件总线（对外导出）
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
	closed atomic.Bool
}

// NewBus 创建事件总线
func NewBus(debug bool) *Bus {
	logger := watermill.NewStdLogger(debug, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布事件
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	if b.closed.Load() {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("run_id", event.RunID)
	msg.Metadata.Set("node", event.Node)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339Nano))
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅所有事件，ctx 取消时关闭返回的 channel
func (b *Bus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	return b.subscribe(ctx, func(*Event) bool { return true })
}

// SubscribeRun 只订阅指定运行的事件
func (b *Bus) SubscribeRun(ctx context.Context, runID string) (<-chan *Event, error) {
	return b.subscribe(ctx, func(e *Event) bool { return e.RunID == runID })
}

func (b *Bus) subscribe(ctx context.Context, accept func(*Event) bool) (<-chan *Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Printf("⚠️ [EventBus] 丢弃无法解析的事件 %s: %v", msg.UUID, err)
				msg.Ack()
				continue
			}
			msg.Ack()
			if !accept(&event) {
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close 关闭事件总线，所有订阅 channel 随之关闭
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}

// Emit 发布事件，publisher 为空时忽略，失败只记录日志
func Emit(ctx context.Context, p Publisher, event *Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("⚠️ [EventBus] 发布事件失败: type=%s, run=%s: %v", event.Type, event.RunID, err)
	}
}

var _ Publisher = (*Bus)(nil)
