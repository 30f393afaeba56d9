package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"facegate/config"
	"facegate/internal/api/handlers"
	"facegate/internal/api/middleware"
	"facegate/internal/cleanup"
	"facegate/internal/core/models"
	"facegate/internal/core/recognition"
	"facegate/internal/events"
	"facegate/internal/integrations/homeassistant"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/metrics"
	"facegate/internal/overlay"
	"facegate/internal/server/sse"
	"facegate/internal/stats"
	"facegate/internal/util/timezone"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ServeOptions supplies the platform specific parts of the server
type ServeOptions struct {
	Camera recognition.Camera

	// OpenCVRenderer builds the gocv overlay renderer, nil if unavailable
	OpenCVRenderer func(*overlay.Buffer) recognition.Renderer

	// ConfigPath is watched for threshold and confidence display changes
	ConfigPath string

	// AutoStart starts the recognition loop right away
	AutoStart bool

	// Ready is called with the listening address once the server is set up
	Ready func(addr string)
}

// Server is the assembled HTTP service
type Server struct {
	app      *App
	opts     ServeOptions
	Loop     *recognition.Loop
	Hub      *sse.Hub
	Recorder *events.Recorder
	MQTT     *mqtt.Client
	Metrics  *metrics.Exporter
	Overlay  *overlay.Buffer
	Cleanup  *cleanup.Service
	Router   *gin.Engine

	// nil unless Home Assistant discovery is enabled
	Discovery *homeassistant.Discovery
	Presence  *homeassistant.Publisher
}

// NewServer builds the recognition loop and everything that consumes it
func (a *App) NewServer(opts ServeOptions) (*Server, error) {
	cfg := a.Config
	s := &Server{app: a, opts: opts, Hub: sse.NewHub()}

	var publisher events.Publisher
	if cfg.MQTT.Enabled {
		s.MQTT = mqtt.NewClient(cfg.MQTT)
		publisher = s.MQTT
	}
	s.Recorder = events.NewRecorder(a.Events, a.Gallery, publisher, events.Options{
		Location: cfg.Recognition.Location,
		Cooldown: cfg.Recognition.EventCooldown,
	})

	var renderer recognition.Renderer
	if cfg.Overlay.Enabled {
		s.Overlay = overlay.NewBuffer(cfg.Overlay.BufferSize)
		switch {
		case cfg.Overlay.Backend == "opencv" && opts.OpenCVRenderer != nil:
			renderer = opts.OpenCVRenderer(s.Overlay)
		default:
			if cfg.Overlay.Backend == "opencv" {
				log.Warn("OpenCV overlay not available, using the built-in renderer")
			}
			renderer = overlay.NewRenderer(s.Overlay)
		}
	}

	sinks := []recognition.Sink{s.Hub, s.Recorder}
	if s.MQTT != nil && cfg.MQTT.HomeAssistant.Enabled {
		s.Discovery = homeassistant.NewDiscovery(s.MQTT, cfg.MQTT.HomeAssistant.DiscoveryPrefix, cfg.MQTT.Topic)
		s.Presence = homeassistant.NewPublisher(s.MQTT, cfg.MQTT.Topic, homeassistant.DefaultResetAfter)
		sinks = append(sinks, s.Presence)
		a.Gallery.OnCommit(func([]models.Identity) { s.Discovery.Notify() })
		s.MQTT.OnConnect(func() {
			s.Discovery.Reset()
			s.Discovery.Notify()
			s.Presence.Republish()
		})
	}
	loopOpts := recognition.Options{
		Interval:       cfg.Recognition.Interval,
		Threshold:      cfg.Recognition.Threshold,
		MaxFaces:       cfg.Recognition.MaxFacesPerFrame,
		ShowConfidence: cfg.Recognition.ShowConfidence,
		Width:          cfg.Camera.Width,
		Height:         cfg.Camera.Height,
		Renderer:       renderer,
		Now:            timezone.Now,
	}
	if cfg.Metrics.Enabled {
		// the exporter reads the loop lazily, so it can be created first
		s.Metrics = metrics.NewExporter(metrics.Sources{
			Loop:    loopRef{s},
			Events:  s.Recorder,
			Clients: s.Hub,
		})
		sinks = append(sinks, s.Metrics)
	}
	loopOpts.Sinks = sinks
	s.Loop = recognition.New(a.Models, opts.Camera, a.Gallery, loopOpts)

	if s.MQTT != nil {
		s.MQTT.SetController(s.Loop)
	}
	s.Cleanup = cleanup.NewService(a.Events, cfg.Cleanup.RetentionDays, cleanup.DefaultCheckInterval)

	translator, err := middleware.NewTranslator(cfg.I18n.DefaultLanguage)
	if err != nil {
		return nil, err
	}
	h := handlers.NewAPIHandler(handlers.Deps{
		Loop:       s.Loop,
		Gallery:    a.Gallery,
		Registrar:  a.Registration,
		Events:     a.Events,
		Dashboard:  stats.NewDashboard(a.Events, a.Gallery, timezone.Now),
		Hub:        s.Hub,
		Translator: translator,
	})
	routerOpts := handlers.RouterOptions{
		SessionSecret: []byte(cfg.Server.SessionSecret),
		Overlay:       s.Overlay,
	}
	if s.Metrics != nil {
		routerOpts.Metrics = s.Metrics.Handler()
	}
	s.Router = handlers.NewRouter(h, routerOpts)
	return s, nil
}

// loopRef defers the loop lookup to scrape time
type loopRef struct{ s *Server }

func (r loopRef) Status() recognition.Status { return r.s.Loop.Status() }

// ApplyRuntimeConfig übernimmt die zur Laufzeit änderbaren Einstellungen
func (s *Server) ApplyRuntimeConfig(cfg *config.Config) {
	s.Loop.SetThreshold(cfg.Recognition.Threshold)
	s.Loop.SetShowConfidence(cfg.Recognition.ShowConfidence)
	s.Loop.SetMaxFaces(cfg.Recognition.MaxFacesPerFrame)
	log.WithFields(log.Fields{
		"threshold":       cfg.Recognition.Threshold,
		"show_confidence": cfg.Recognition.ShowConfidence,
		"max_faces":       cfg.Recognition.MaxFacesPerFrame,
	}).Info("Runtime settings updated")
}

// Run serves HTTP and runs all background workers until ctx is done
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.Recorder.Run(ctx)
		return nil
	})
	if s.Cleanup != nil {
		g.Go(func() error {
			s.Cleanup.Run(ctx)
			return nil
		})
	}

	if s.Discovery != nil {
		g.Go(func() error {
			s.Discovery.Run(ctx, s.app.Gallery.Snapshot)
			return nil
		})
		g.Go(func() error {
			s.Presence.Run(ctx)
			return nil
		})
	}

	if s.MQTT != nil {
		if err := s.MQTT.Start(); err != nil {
			// ohne Broker weiterlaufen
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
		} else {
			defer s.MQTT.Stop()
		}
	}

	if err := config.Watch(s.opts.ConfigPath, s.ApplyRuntimeConfig); err != nil {
		log.WithError(err).Warn("Config hot reload disabled")
	}

	srv := &http.Server{
		Addr:              s.app.Config.Server.Address(),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server...")
		if err := s.Loop.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop recognition loop")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.opts.AutoStart {
		g.Go(func() error {
			startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := s.Loop.Start(startCtx); err != nil {
				log.WithError(err).Warn("Recognition loop did not start")
			}
			s.Hub.BroadcastStatus(s.Loop.Status())
			return nil
		})
	}
	if s.opts.Ready != nil {
		s.opts.Ready(srv.Addr)
	}

	err := g.Wait()
	log.Info("Server stopped.")
	return err
}
