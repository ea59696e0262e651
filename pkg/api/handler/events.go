package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/conduit/pkg/api/dto"
	"github.com/LENAX/conduit/pkg/api/service"
	"github.com/LENAX/conduit/pkg/core/events"
)

const writeTimeout = 5 * time.Second

// EventSource 按运行订阅生命周期事件
type EventSource interface {
	SubscribeRun(ctx context.Context, runID string) (<-chan *events.Event, error)
}

// EventHandler 运行事件 WebSocket 推送
type EventHandler struct {
	manager  *service.RunManager
	source   EventSource
	upgrader websocket.Upgrader
}

// NewEventHandler 创建EventHandler
func NewEventHandler(manager *service.RunManager, source EventSource) *EventHandler {
	return &EventHandler{
		manager: manager,
		source:  source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 推送运行事件，运行结束后关闭连接
// GET /api/v1/runs/:id/events
func (h *EventHandler) Stream(c *gin.Context) {
	runID := c.Param("id")
	if _, ok := h.manager.Get(runID); !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行不存在"))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 先订阅再检查状态，避免错过终止事件
	sub, err := h.source.SubscribeRun(ctx, runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "订阅事件失败"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ [EventHandler] WebSocket 升级失败: run=%s: %v", runID, err)
		return
	}
	defer conn.Close()

	// 读协程：客户端断开时取消订阅
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	buf := events.NewBuffer(256)
	go buf.Drain(ctx, sub)

	// 运行结束时停止阻塞等待，转为排空缓冲区
	done, _ := h.manager.Done(runID)
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go func() {
		select {
		case <-done:
			stopStream()
		case <-streamCtx.Done():
		}
	}()

	for {
		e, ok := buf.Next(streamCtx)
		if !ok {
			break
		}
		if terminal, err := h.write(conn, e); err != nil || terminal {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	// 终止事件可能在订阅之前已发布
	for {
		e, ok := buf.TryNext()
		if !ok {
			break
		}
		if terminal, err := h.write(conn, e); err != nil || terminal {
			return
		}
	}
	snap, _ := h.manager.Get(runID)
	h.writeFinal(conn, snap)
}

// write 推送单个事件，终止事件后发送关闭帧
func (h *EventHandler) write(conn *websocket.Conn, e *events.Event) (bool, error) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(e); err != nil {
		log.Printf("⚠️ [EventHandler] 推送事件失败: run=%s: %v", e.RunID, err)
		return false, err
	}
	if e.Terminal() {
		h.close(conn)
		return true, nil
	}
	return false, nil
}

// writeFinal 运行已结束时只推送一个终止事件
func (h *EventHandler) writeFinal(conn *websocket.Conn, snap service.RunSnapshot) {
	e := events.NewEvent(events.EventRunCompleted, snap.ID, "")
	if snap.Status == service.StatusFailed {
		e = events.NewEvent(events.EventRunFailed, snap.ID, snap.FailedNode)
		e.Error = snap.Error
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(e); err == nil {
		h.close(conn)
	}
}

func (h *EventHandler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
