package facemodel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"facegate/internal/core/matcher"
	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Manager verwaltet die registrierten Provider und leitet Aufrufe an den aktiven weiter.
// Manager erfüllt selbst Service.
type Manager struct {
	mu        sync.RWMutex
	providers map[ProviderType]Service
	active    ProviderType
}

// NewManager erstellt einen leeren Manager
func NewManager() *Manager {
	return &Manager{
		providers: make(map[ProviderType]Service),
	}
}

// Register registriert einen Provider. Der erste registrierte wird aktiv.
func (m *Manager) Register(provider Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[provider.Name()] = provider
	if m.active == "" {
		m.active = provider.Name()
	}
	log.WithField("provider", provider.Name()).Debug("Face model provider registered")
}

// SetActive setzt den aktiven Provider
func (m *Manager) SetActive(name ProviderType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[name]; !ok {
		return fmt.Errorf("face model provider %q is not registered: %w", name, models.ErrModelLoad)
	}
	m.active = name
	return nil
}

// Active gibt den aktiven Provider zurück
func (m *Manager) Active() (Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return nil, false
	}
	p, ok := m.providers[m.active]
	return p, ok
}

// Providers gibt die Namen aller registrierten Provider sortiert zurück
func (m *Manager) Providers() []ProviderType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]ProviderType, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Name gibt den Namen des aktiven Providers zurück
func (m *Manager) Name() ProviderType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// LoadModels lädt die Modelle des aktiven Providers
func (m *Manager) LoadModels(ctx context.Context) error {
	p, ok := m.Active()
	if !ok {
		return fmt.Errorf("no face model provider configured: %w", models.ErrModelLoad)
	}
	return p.LoadModels(ctx)
}

// Detect leitet an den aktiven Provider weiter
func (m *Manager) Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	p, ok := m.Active()
	if !ok {
		return nil, fmt.Errorf("no face model provider configured: %w", models.ErrModelLoad)
	}
	return p.Detect(ctx, frame)
}

// Distance leitet an den aktiven Provider weiter
func (m *Manager) Distance(a, b models.Embedding) float64 {
	p, ok := m.Active()
	if !ok {
		return matcher.Euclidean(a, b)
	}
	return p.Distance(a, b)
}
