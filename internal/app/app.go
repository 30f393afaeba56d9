// Package app wires configuration, storage, the face model and the
// recognition pipeline into a runnable service.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"facegate/config"
	"facegate/internal/core/gallery"
	"facegate/internal/core/registration"
	"facegate/internal/db"
	"facegate/internal/db/repository"
	"facegate/internal/integrations/facemodel"
	"facegate/internal/integrations/insightface"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Descriptor sizes used for demo identities
const (
	DlibDimension        = 128
	InsightFaceDimension = 512
)

// App holds the components shared by the CLI commands
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Gallery      *gallery.Gallery
	Models       *facemodel.Manager
	Events       *repository.EventRepository
	Registration *registration.Service

	closers []func() error
}

// New opens the database, loads the gallery and registers the model
// providers. local is the in-process provider (dlib), it may be nil.
func New(ctx context.Context, cfg *config.Config, local facemodel.Service) (*App, error) {
	timezone.Initialize(cfg.Server.Timezone)

	database, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config: cfg,
		DB:     database,
		Events: repository.NewEventRepository(database),
		Models: facemodel.NewManager(),
	}
	a.closers = append(a.closers, func() error {
		db.Close(database)
		return nil
	})

	if local != nil {
		a.Models.Register(local)
		if c, ok := local.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	if cfg.Model.InsightFace.Enabled {
		a.Models.Register(insightface.NewService(cfg.Model.InsightFace))
	}
	if err := a.Models.SetActive(facemodel.ProviderType(cfg.Model.Provider)); err != nil {
		a.Close()
		return nil, err
	}

	a.Gallery = gallery.New(repository.NewKVStore(database), cfg.Gallery.Key)
	found, err := a.Gallery.Load(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}
	if !found && cfg.Gallery.SeedDemo {
		if err := a.seedDemo(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	log.WithFields(log.Fields{
		"identities": a.Gallery.Len(),
		"provider":   cfg.Model.Provider,
	}).Info("Gallery loaded")

	a.Registration = registration.NewService(a.Models, a.Gallery, timezone.Now)
	return a, nil
}

func (a *App) seedDemo(ctx context.Context) error {
	dim := DlibDimension
	if a.Config.Model.Provider == string(facemodel.ProviderInsightFace) {
		dim = InsightFaceDimension
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	demo := gallery.DemoIdentities(r, a.Config.Gallery.DemoCount, dim, timezone.Now())
	if err := a.Gallery.Replace(ctx, demo); err != nil {
		return fmt.Errorf("failed to seed demo gallery: %w", err)
	}
	log.WithField("count", len(demo)).Info("Seeded gallery with demo identities")
	return nil
}

// Close releases the database and the model resources
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("Failed to release resource")
		}
	}
	a.closers = nil
}
