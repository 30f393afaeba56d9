package handlers

import (
	"crypto/rand"
	"net/http"

	"facegate/internal/api/middleware"
	"facegate/internal/overlay"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RouterOptions beschreibt die optionalen Teile des Routers
type RouterOptions struct {
	SessionSecret []byte
	Overlay       *overlay.Buffer // nil deaktiviert /api/overlay*
	Metrics       http.Handler    // nil deaktiviert /metrics
}

// NewRouter erstellt die gin-Engine mit Middleware und allen Routen
func NewRouter(h *APIHandler, opts RouterOptions) *gin.Engine {
	if len(opts.SessionSecret) == 0 {
		opts.SessionSecret = randomSecret()
		log.Warn("No server.session_secret configured, language cookies are only valid until restart")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Accept-Language"},
	}))
	router.Use(sessions.Sessions("facegate_session", cookie.NewStore(opts.SessionSecret)))
	router.Use(middleware.I18n(h.Translator))

	h.RegisterRoutes(router.Group("/api"))

	if opts.Overlay != nil {
		opts.Overlay.RegisterRoutes(router)
	}
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func randomSecret() []byte {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret) // bricht seit Go 1.24 selbst ab, statt einen Fehler zu liefern
	return secret
}
