// Package handlers exposes the recognition loop, the gallery and the
// statistics over a gin HTTP API.
package handlers

import (
	"context"
	"time"

	"facegate/internal/api/middleware"
	"facegate/internal/core/gallery"
	"facegate/internal/core/models"
	"facegate/internal/core/recognition"
	"facegate/internal/core/registration"
	"facegate/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// MaxUploadSize limits registration images
const MaxUploadSize = 10 << 20

// LoopController steuert die Erkennungsschleife
type LoopController interface {
	Start(ctx context.Context) error
	Stop() error
	Status() recognition.Status
	Latest() (recognition.CycleResult, bool)
}

// Registrar registriert neue Identitäten
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (*models.Identity, error)
}

// EventQueries liest und löscht Erkennungsereignisse
type EventQueries interface {
	Recent(ctx context.Context, identityID string, limit int) ([]models.RecognitionEvent, error)
	DeleteByIdentity(ctx context.Context, identityID string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// Dashboard liefert die Übersichtsstatistik
type Dashboard interface {
	Statistics(ctx context.Context) (models.Statistics, error)
}

// Deps fasst die Abhängigkeiten des APIHandler zusammen
type Deps struct {
	Loop       LoopController
	Gallery    *gallery.Gallery
	Registrar  Registrar
	Events     EventQueries
	Dashboard  Dashboard
	Hub        *sse.Hub
	Translator *middleware.Translator
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	Deps
	startTimeout time.Duration
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(deps Deps) *APIHandler {
	return &APIHandler{Deps: deps, startTimeout: 30 * time.Second}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Erkennungs-Endpunkte
	router.GET("/status", h.GetStatus)
	router.POST("/recognition/start", h.StartRecognition)
	router.POST("/recognition/stop", h.StopRecognition)
	router.GET("/recognition/latest", h.LatestRecognition)

	// Identitäts-Endpunkte
	router.GET("/identities", h.ListIdentities)
	router.POST("/identities", h.CreateIdentity)
	router.DELETE("/identities", h.ClearIdentities)
	router.GET("/identities/:id", h.GetIdentity)
	router.DELETE("/identities/:id", h.DeleteIdentity)

	// Statistik-Endpunkte
	router.GET("/recognitions", h.ListRecognitions)
	router.GET("/stats", h.GetStats)
	router.GET("/system", h.GetSystem)

	// Echtzeit-Updates
	router.GET("/stream", h.Stream)
}
