package repository

import (
	"context"
	"fmt"
	"time"

	"facegate/internal/core/models"

	"gorm.io/gorm"
)

// EventRepository speichert Erkennungsereignisse
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository erstellt ein neues EventRepository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save speichert ein Ereignis
func (r *EventRepository) Save(ctx context.Context, event *models.RecognitionEvent) error {
	// Zeitstempel immer in UTC, damit Textvergleiche in SQLite stimmen
	event.Timestamp = event.Timestamp.UTC()
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to save recognition event: %w", err)
	}
	return nil
}

// Recent holt die neuesten Ereignisse, optional gefiltert nach Identität
func (r *EventRepository) Recent(ctx context.Context, identityID string, limit int) ([]models.RecognitionEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit)
	if identityID != "" {
		q = q.Where("identity_id = ?", identityID)
	}
	var events []models.RecognitionEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load recognition events: %w", err)
	}
	return events, nil
}

// EventStatistics fasst die Ereignisse zusammen
type EventStatistics struct {
	Total             int64
	AverageConfidence float64
	ActiveSince       int64 // verschiedene Identitäten seit dem Stichtag
	Latest            time.Time
}

// Statistics berechnet Kennzahlen; since ist der Stichtag für aktive Identitäten
func (r *EventRepository) Statistics(ctx context.Context, since time.Time) (EventStatistics, error) {
	var stats EventStatistics
	db := r.db.WithContext(ctx).Model(&models.RecognitionEvent{})

	if err := db.Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("failed to count events: %w", err)
	}
	if stats.Total == 0 {
		return stats, nil
	}

	var avg struct{ Avg float64 }
	if err := r.db.WithContext(ctx).Model(&models.RecognitionEvent{}).
		Select("AVG(confidence) AS avg").Scan(&avg).Error; err != nil {
		return stats, fmt.Errorf("failed to average confidence: %w", err)
	}
	stats.AverageConfidence = avg.Avg

	if err := r.db.WithContext(ctx).Model(&models.RecognitionEvent{}).
		Where("timestamp >= ?", since.UTC()).
		Distinct("identity_id").Count(&stats.ActiveSince).Error; err != nil {
		return stats, fmt.Errorf("failed to count active identities: %w", err)
	}

	var latest models.RecognitionEvent
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(1).Find(&latest).Error; err != nil {
		return stats, fmt.Errorf("failed to load latest event: %w", err)
	}
	stats.Latest = latest.Timestamp
	return stats, nil
}

// DeleteBefore löscht Ereignisse vor cutoff und gibt die Anzahl zurück
func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("timestamp < ?", cutoff.UTC()).Delete(&models.RecognitionEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAll löscht sämtliche Ereignisse
func (r *EventRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.RecognitionEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByIdentity löscht alle Ereignisse einer Identität
func (r *EventRepository) DeleteByIdentity(ctx context.Context, identityID string) error {
	return r.db.WithContext(ctx).Where("identity_id = ?", identityID).Delete(&models.RecognitionEvent{}).Error
}
