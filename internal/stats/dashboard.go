// Package stats computes dashboard figures and host statistics.
package stats

import (
	"context"
	"fmt"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/db/repository"
	"facegate/internal/util/timezone"
)

// EventStats summarises stored recognition events
type EventStats interface {
	Statistics(ctx context.Context, since time.Time) (repository.EventStatistics, error)
}

// GallerySize reports the number of registered identities
type GallerySize interface {
	Len() int
}

// Dashboard computes the dashboard statistics
type Dashboard struct {
	events  EventStats
	gallery GallerySize
	now     func() time.Time
}

// NewDashboard creates a Dashboard. now defaults to timezone.Now.
func NewDashboard(events EventStats, gallery GallerySize, now func() time.Time) *Dashboard {
	if now == nil {
		now = timezone.Now
	}
	return &Dashboard{events: events, gallery: gallery, now: now}
}

// Statistics returns totals, average confidence and the identities seen since local midnight
func (d *Dashboard) Statistics(ctx context.Context) (models.Statistics, error) {
	out := models.Statistics{TotalUsers: d.gallery.Len()}

	ev, err := d.events.Statistics(ctx, timezone.StartOfDay(d.now()))
	if err != nil {
		return out, fmt.Errorf("failed to compute statistics: %w", err)
	}
	out.TotalRecognitions = ev.Total
	out.AverageConfidence = ev.AverageConfidence
	out.ActiveToday = ev.ActiveSince
	out.LatestRecognition = ev.Latest
	return out, nil
}
