package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"printq/internal/events"
)

const sseBuffer = 32

type EventHandler struct {
	hub *events.Hub
}

func NewEventHandler(hub *events.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// Stream is the SSE endpoint. Each connection gets its own buffered
// subscription; a client that falls behind loses events and should re-fetch
// the queue.
func (h *EventHandler) Stream(c *gin.Context) {
	ch := h.hub.Subscribe(sseBuffer)
	defer h.hub.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *EventHandler) RegisterRoutes(public *gin.RouterGroup) {
	public.GET("/events", h.Stream)
}
