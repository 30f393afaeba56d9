// Package opencv provides the gocv backed camera and overlay renderer.
package opencv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/core/recognition"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Camera öffnet ein lokales Videogerät über OpenCV
type Camera struct {
	device int
}

// NewCamera erstellt eine Kamera für den angegebenen Geräteindex
func NewCamera(device int) *Camera {
	return &Camera{device: device}
}

// Acquire öffnet das Gerät und setzt die gewünschte Auflösung
func (c *Camera) Acquire(ctx context.Context, cons recognition.Constraints) (recognition.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return nil, fmt.Errorf("konnte Kamera %d nicht öffnen: %w", c.device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("kamera %d ist nicht verfügbar", c.device)
	}

	if cons.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cons.Width))
	}
	if cons.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cons.Height))
	}

	log.WithFields(log.Fields{
		"device": c.device,
		"width":  capture.Get(gocv.VideoCaptureFrameWidth),
		"height": capture.Get(gocv.VideoCaptureFrameHeight),
	}).Info("Camera opened")

	return &stream{capture: capture, img: gocv.NewMat()}, nil
}

// stream liest Einzelbilder aus einem geöffneten VideoCapture
type stream struct {
	mutex    sync.Mutex
	capture  *gocv.VideoCapture
	img      gocv.Mat
	released bool
}

// Capture liest ein Bild und kodiert es als JPEG
func (s *stream) Capture(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.released {
		return models.Frame{}, fmt.Errorf("kamera wurde bereits freigegeben")
	}
	if ok := s.capture.Read(&s.img); !ok || s.img.Empty() {
		return models.Frame{}, fmt.Errorf("kein Bild von der Kamera erhalten")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.img)
	if err != nil {
		return models.Frame{}, fmt.Errorf("fehler beim Kodieren des Bildes: %w", err)
	}
	defer buf.Close()

	// GetBytes verweist auf nativen Speicher, daher kopieren
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return models.Frame{
		Data:       data,
		Width:      s.img.Cols(),
		Height:     s.img.Rows(),
		CapturedAt: time.Now(),
	}, nil
}

// Release gibt Gerät und Puffer frei
func (s *stream) Release() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	if err := s.img.Close(); err != nil {
		log.WithError(err).Debug("Failed to close frame buffer")
	}
	return s.capture.Close()
}
