// Package dlib implements the face model service on top of go-face, which
// wraps dlib's face detector and ResNet descriptor network.
package dlib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"facegate/internal/core/matcher"
	"facegate/internal/core/models"
	"facegate/internal/integrations/facemodel"

	"github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"
)

// RequiredModels must exist in the model directory
var RequiredModels = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
	"mmod_human_face_detector.dat",
}

// Service implementiert facemodel.Service mit dlib
type Service struct {
	modelDir string

	mu  sync.Mutex
	rec *face.Recognizer
}

// NewService erstellt einen dlib-Service für das angegebene Modellverzeichnis
func NewService(modelDir string) *Service {
	return &Service{modelDir: modelDir}
}

// Name gibt den Providernamen zurück
func (s *Service) Name() facemodel.ProviderType {
	return facemodel.ProviderDlib
}

// LoadModels lädt die Modelle einmalig
func (s *Service) LoadModels(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return nil
	}

	for _, name := range RequiredModels {
		if _, err := os.Stat(filepath.Join(s.modelDir, name)); err != nil {
			return fmt.Errorf("model file %s missing in %s: %w", name, s.modelDir, err)
		}
	}

	log.WithField("dir", s.modelDir).Info("Loading dlib face models")
	rec, err := face.NewRecognizer(s.modelDir)
	if err != nil {
		return fmt.Errorf("failed to load dlib models: %w", err)
	}
	s.rec = rec
	log.Info("dlib face models loaded")
	return nil
}

// Detect erkennt Gesichter in einem JPEG-Bild
func (s *Service) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Recognizer ist nicht nebenläufig nutzbar
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, fmt.Errorf("%w: dlib models not loaded", models.ErrModelLoad)
	}

	faces, err := s.rec.Recognize(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}

	detections := make([]models.Detection, len(faces))
	for i, f := range faces {
		detections[i] = models.Detection{
			Box: models.BoundingBox{
				X:      f.Rectangle.Min.X,
				Y:      f.Rectangle.Min.Y,
				Width:  f.Rectangle.Dx(),
				Height: f.Rectangle.Dy(),
			},
			Embedding: descriptorToEmbedding(f.Descriptor),
		}
	}
	return detections, nil
}

// Distance misst den euklidischen Abstand zweier Deskriptoren
func (s *Service) Distance(a, b models.Embedding) float64 {
	return matcher.Euclidean(a, b)
}

// Close gibt die Modelle frei
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		s.rec.Close()
		s.rec = nil
	}
	return nil
}

func descriptorToEmbedding(d face.Descriptor) models.Embedding {
	out := make(models.Embedding, len(d))
	copy(out, d[:])
	return out
}
