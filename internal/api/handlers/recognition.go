package handlers

import (
	"context"
	"net/http"

	"facegate/internal/api/middleware"
	"facegate/internal/core/recognition"

	"github.com/gin-gonic/gin"
)

// statusResponse ergänzt den Schleifenstatus um eine übersetzte Fehlermeldung
type statusResponse struct {
	recognition.Status
	Message string `json:"message,omitempty"`
}

func (h *APIHandler) statusBody(c *gin.Context) statusResponse {
	st := h.Loop.Status()
	resp := statusResponse{Status: st}
	if st.Reason != "" {
		resp.Message = middleware.T(c, st.Reason, nil)
	}
	return resp
}

// GetStatus gibt den Zustand der Erkennungsschleife zurück
func (h *APIHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusBody(c))
}

// StartRecognition startet die Erkennungsschleife
func (h *APIHandler) StartRecognition(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.startTimeout)
	defer cancel()

	err := h.Loop.Start(ctx)
	h.broadcastStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	body := h.statusBody(c)
	body.Message = middleware.T(c, "recognition_started", nil)
	c.JSON(http.StatusOK, body)
}

// StopRecognition hält die Erkennungsschleife an
func (h *APIHandler) StopRecognition(c *gin.Context) {
	err := h.Loop.Stop()
	h.broadcastStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	body := h.statusBody(c)
	body.Message = middleware.T(c, "recognition_stopped", nil)
	c.JSON(http.StatusOK, body)
}

// LatestRecognition gibt das Ergebnis des letzten Zyklus zurück
func (h *APIHandler) LatestRecognition(c *gin.Context) {
	result, ok := h.Loop.Latest()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) broadcastStatus() {
	if h.Hub != nil {
		h.Hub.BroadcastStatus(h.Loop.Status())
	}
}

