package handlers

import (
	"errors"
	"net/http"

	"facegate/internal/api/middleware"
	"facegate/internal/core/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ErrorResponse ist der Fehlerkörper aller API-Antworten
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor ordnet einem Fehler den HTTP-Status zu
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStartAborted):
		return http.StatusConflict
	case errors.Is(err, models.ErrModelLoad), errors.Is(err, models.ErrCameraAccess):
		return http.StatusServiceUnavailable
	case models.ReasonCode(err) == models.ReasonCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError protokolliert den Fehler und antwortet mit Reason-Code und übersetzter Meldung
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	code := models.ReasonCode(err)

	entry := log.WithError(err).WithFields(log.Fields{
		"path":   c.FullPath(),
		"reason": code,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("API request failed")
	} else {
		entry.Info("API request rejected")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   code,
		Message: middleware.T(c, code, nil),
	})
}
