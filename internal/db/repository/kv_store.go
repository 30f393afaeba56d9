package repository

import (
	"context"
	"errors"
	"fmt"

	"facegate/internal/core/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVStore ist ein Schlüssel-Wert-Speicher auf einer SQLite-Tabelle.
// Er erfüllt gallery.Store.
type KVStore struct {
	db *gorm.DB
}

// NewKVStore erstellt einen neuen KVStore
func NewKVStore(db *gorm.DB) *KVStore {
	return &KVStore{db: db}
}

// Get holt den Wert zu key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where(&models.KVEntry{Key: key}).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return []byte(entry.Value), true, nil
}

// Set speichert value unter key und überschreibt einen vorhandenen Wert
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	entry := models.KVEntry{Key: key, Value: datatypes.JSON(value)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete entfernt key; ein fehlender Schlüssel ist kein Fehler
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(&models.KVEntry{Key: key}).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
