package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

// handleEvents serves the SSE stream of document-change notifications.
// Credentials arrive via header or the credential query parameter since
// EventSource clients cannot send a JSON body.
func (h *httpHandler) handleEvents(c *gin.Context) {
	if !h.authorize(c, c.Query("credential")) {
		return
	}
	if h.dispatcher == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "events_disabled"})
		return
	}

	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context(), h.documentID.String())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Flush an immediate heartbeat so EventSource clients see the stream
	// open without waiting for the first change.
	c.SSEvent(realtimeEventHeartbeat, time.Now().UnixMilli())
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, gin.H{"timestamp": message.Timestamp})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, time.Now().UnixMilli())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
