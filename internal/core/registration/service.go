// Package registration turns a still image into a new gallery identity.
package registration

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"facegate/internal/core/gallery"
	"facegate/internal/core/models"
	"facegate/internal/integrations/facemodel"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ThumbnailSize is the bounding square of the stored identity picture
const ThumbnailSize = 160

// Request is a registration attempt
type Request struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Image    []byte `validate:"required"`
	ImageURL string `validate:"omitempty,max=2048"` // used instead of a generated thumbnail
}

// Service registers identities from still images
type Service struct {
	model    facemodel.Service
	gallery  *gallery.Gallery
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewService creates a registration Service. now defaults to time.Now.
func NewService(model facemodel.Service, g *gallery.Gallery, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		model:    model,
		gallery:  g,
		validate: validator.New(),
		now:      now,
		newID:    uuid.NewString,
	}
}

// Register validates the request, detects the face and appends the new
// identity to the gallery. Only the first detected face is used. The identity
// is returned only once it has been persisted.
func (s *Service) Register(ctx context.Context, req Request) (*models.Identity, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	img, jpegData, err := s.check(req)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"name": req.Name, "provider": s.model.Name()})

	if err := s.model.LoadModels(ctx); err != nil {
		logger.WithError(err).Error("Registration: failed to load face models")
		return nil, fmt.Errorf("%w: %v", models.ErrModelLoad, err)
	}

	bounds := img.Bounds()
	detections, err := s.model.Detect(ctx, models.Frame{
		Data:       jpegData,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: s.now(),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.WithError(err).Warn("Registration: face detection failed")
		return nil, fmt.Errorf("%w: %v", models.ErrFrameProcessing, err)
	}
	if len(detections) == 0 {
		logger.Info("Registration: no face detected")
		return nil, models.ErrNoFaceDetected
	}
	if len(detections) > 1 {
		logger.WithField("faces", len(detections)).Debug("Registration: several faces found, using the first")
	}
	if dim := s.gallery.Dimension(); dim > 0 && len(detections[0].Embedding) != dim {
		return nil, fmt.Errorf("%w: %w", models.ErrFrameProcessing, models.ErrDimensionMismatch)
	}

	imageURL := req.ImageURL
	if imageURL == "" {
		imageURL, err = thumbnail(img)
		if err != nil {
			logger.WithError(err).Warn("Registration: failed to build thumbnail")
		}
	}

	identity := models.Identity{
		ID:           s.newID(),
		Name:         req.Name,
		Email:        req.Email,
		Embedding:    detections[0].Embedding.Clone(),
		ImageURL:     imageURL,
		RegisteredAt: s.now(),
	}

	if err := s.gallery.Append(ctx, identity); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !errors.Is(err, models.ErrPersistence) {
			err = fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		logger.WithError(err).Error("Registration: failed to store identity")
		return nil, err
	}

	logger.WithField("id", identity.ID).Info("Registration: identity stored")
	return &identity, nil
}

// check validates the request and decodes the image. It returns the image
// re-encoded as JPEG if it was supplied in another format.
func (s *Service) check(req Request) (image.Image, []byte, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return nil, nil, fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(fields, ", "))
		}
		return nil, nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	mtype := mimetype.Detect(req.Image)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, nil, fmt.Errorf("%w: unsupported file type %s", models.ErrValidation, mtype.String())
	}

	img, err := imaging.Decode(bytes.NewReader(req.Image))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: image cannot be decoded: %v", models.ErrValidation, err)
	}

	if mtype.Is("image/jpeg") {
		return img, req.Image, nil
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrFrameProcessing, err)
	}
	return img, buf.Bytes(), nil
}

// thumbnail renders img into a small inline JPEG data URI
func thumbnail(img image.Image) (string, error) {
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
