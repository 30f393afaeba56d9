// Package insightface implements the face model service against an external
// InsightFace REST service.
package insightface

import (
	"context"
	"fmt"
	"math"
	"sync"

	"facegate/config"
	"facegate/internal/core/matcher"
	"facegate/internal/core/models"
	"facegate/internal/integrations/facemodel"

	log "github.com/sirupsen/logrus"
)

// Log-Felder für InsightFace-Komponente
var logFields = log.Fields{
	"component": "insightface",
}

// Service implementiert facemodel.Service für InsightFace
type Service struct {
	client *APIClient
	config config.InsightFaceConfig

	mu    sync.Mutex
	ready bool
}

// NewService erstellt einen neuen InsightFace-Service
func NewService(cfg config.InsightFaceConfig) *Service {
	return &Service{
		client: NewAPIClient(cfg),
		config: cfg,
	}
}

// Name gibt den Providernamen zurück
func (s *Service) Name() facemodel.ProviderType {
	return facemodel.ProviderInsightFace
}

// LoadModels prüft, ob der entfernte Dienst bereit ist
func (s *Service) LoadModels(ctx context.Context) error {
	if !s.config.Enabled {
		return fmt.Errorf("InsightFace ist nicht aktiviert")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	info, err := s.client.Info(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logFields).WithFields(log.Fields{
		"version": info.Version,
		"backend": info.Backend,
	}).Info("InsightFace service available")
	s.ready = true
	return nil
}

// Detect erkennt Gesichter und liefert normierte Einbettungen
func (s *Service) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	resp, err := s.client.DetectFaces(ctx, frame.Data, s.config.DetectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("fehler bei der Gesichtserkennung: %w", err)
	}

	detections := make([]models.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BoundingBox) != 4 || len(f.Embedding) == 0 {
			log.WithFields(logFields).Debug("Skipping face without box or embedding")
			continue
		}
		x1, y1 := int(math.Round(f.BoundingBox[0])), int(math.Round(f.BoundingBox[1]))
		x2, y2 := int(math.Round(f.BoundingBox[2])), int(math.Round(f.BoundingBox[3]))
		detections = append(detections, models.Detection{
			Box:       models.BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
			Embedding: normalize(f.Embedding),
			Score:     f.Confidence,
		})
	}
	log.WithFields(logFields).Tracef("InsightFace found %d faces in %.3fs", len(detections), resp.ProcessTime)
	return detections, nil
}

// Distance misst den euklidischen Abstand zweier normierter Einbettungen
func (s *Service) Distance(a, b models.Embedding) float64 {
	return matcher.Euclidean(a, b)
}

// normalize skaliert e auf Länge 1
func normalize(e []float32) models.Embedding {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	out := make(models.Embedding, len(e))
	if sum == 0 {
		copy(out, e)
		return out
	}
	n := math.Sqrt(sum)
	for i, v := range e {
		out[i] = float32(float64(v) / n)
	}
	return out
}
