// Package facemodel beschreibt den austauschbaren Gesichtserkennungsdienst,
// der Gesichter findet und Einbettungen liefert.
package facemodel

import (
	"context"

	"facegate/internal/core/models"
)

// ProviderType definiert den Typ des Gesichtserkennungsdiensts
type ProviderType string

const (
	// ProviderDlib steht für das lokale dlib-Modell (go-face)
	ProviderDlib ProviderType = "dlib"

	// ProviderInsightFace steht für den InsightFace-Dienst
	ProviderInsightFace ProviderType = "insightface"
)

// Service ist die Schnittstelle zu einem Modell, das Gesichter erkennt
type Service interface {
	// Name gibt den Namen des Providers zurück
	Name() ProviderType

	// LoadModels lädt die Modelle. Mehrfache Aufrufe sind erlaubt.
	LoadModels(ctx context.Context) error

	// Detect findet alle Gesichter in einem JPEG-Bild, jeweils mit Einbettung
	Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error)

	// Distance misst den Abstand zweier Einbettungen dieses Modells
	Distance(a, b models.Embedding) float64
}
