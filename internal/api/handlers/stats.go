package handlers

import (
	"net/http"
	"strconv"

	"facegate/internal/core/models"
	"facegate/internal/stats"

	"github.com/gin-gonic/gin"
)

// ListRecognitions gibt die letzten Erkennungsereignisse zurück (?limit=, ?userId=)
func (h *APIHandler) ListRecognitions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		respondError(c, models.ErrValidation)
		return
	}

	events, err := h.Events.Recent(c.Request.Context(), c.Query("userId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":        len(events),
		"recognitions": events,
	})
}

// GetStats gibt die Übersichtsstatistik zurück
func (h *APIHandler) GetStats(c *gin.Context) {
	st, err := h.Dashboard.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetSystem gibt Host- und Prozessstatistiken zurück
func (h *APIHandler) GetSystem(c *gin.Context) {
	c.JSON(http.StatusOK, stats.GetSystemStats(h.Loop))
}
