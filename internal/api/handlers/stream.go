package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"facegate/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Stream behandelt SSE-Verbindungen für Echtzeit-Updates
func (h *APIHandler) Stream(c *gin.Context) {
	if h.Hub == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	// SSE-Header setzen
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 16)
	h.Hub.Register(client)
	defer h.Hub.Unregister(client)

	// Aktuellen Zustand sofort senden
	if data, err := json.Marshal(h.Loop.Status()); err == nil {
		c.SSEvent(sse.EventLoopStatus, string(data))
		c.Writer.Flush()
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false // Kanal geschlossen, Stream beenden
			}
			c.SSEvent(msg.Event, string(msg.Data))
			return true
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return false
		}
	})
}
