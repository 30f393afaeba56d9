package models

import (
	"context"
	"errors"
)

// Error taxonomy shared by the recognition pipeline and the API.
var (
	// ErrModelLoad means the face model could not be loaded
	ErrModelLoad = errors.New("face model could not be loaded")

	// ErrCameraAccess means the camera could not be acquired
	ErrCameraAccess = errors.New("camera could not be accessed")

	// ErrFrameProcessing marks a transient capture or detection failure
	ErrFrameProcessing = errors.New("frame processing failed")

	// ErrValidation marks invalid registration input
	ErrValidation = errors.New("invalid input")

	// ErrNoFaceDetected means a still image produced no detections
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrPersistence means the gallery could not be written to the store
	ErrPersistence = errors.New("gallery could not be persisted")

	// ErrDimensionMismatch means an embedding does not match the gallery dimensionality
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound means an identity does not exist
	ErrNotFound = errors.New("not found")

	// ErrStartAborted means the loop was stopped while it was starting
	ErrStartAborted = errors.New("start aborted by stop")
)

// Reason codes reported to clients.
const (
	ReasonModelLoad      = "model_load_failed"
	ReasonCameraAccess   = "camera_unavailable"
	ReasonProcessing     = "processing_failed"
	ReasonValidation     = "invalid_input"
	ReasonNoFaceDetected = "no_face_detected"
	ReasonPersistence    = "persistence_failed"
	ReasonNotFound       = "not_found"
	ReasonStartAborted   = "start_aborted"
	ReasonCanceled       = "canceled"
	ReasonInternal       = "internal_error"
	ReasonRegistered     = "registered"
)

// ReasonCode maps an error to a stable, human-independent code.
// Anything unexpected becomes ReasonInternal.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ReasonValidation
	case errors.Is(err, ErrNoFaceDetected):
		return ReasonNoFaceDetected
	case errors.Is(err, ErrModelLoad):
		return ReasonModelLoad
	case errors.Is(err, ErrCameraAccess):
		return ReasonCameraAccess
	case errors.Is(err, ErrFrameProcessing):
		return ReasonProcessing
	case errors.Is(err, ErrPersistence):
		return ReasonPersistence
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrStartAborted):
		return ReasonStartAborted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonInternal
	}
}
