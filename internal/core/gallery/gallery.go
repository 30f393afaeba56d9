// Package gallery holds the registered identities used for matching and keeps
// them in step with the durable Gallery Store.
//
// Readers take lock-free snapshots. Writers are serialized, and a new snapshot
// is published only after the store accepted the serialized gallery, so the
// in-memory state never runs ahead of durable state.
package gallery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// DefaultKey is the store key the gallery is persisted under
const DefaultKey = "facerecog_users"

// Gallery is the shared, injectable identity collection
type Gallery struct {
	store    Store
	key      string
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[[]models.Identity]
	onCommit []func([]models.Identity)
}

// New creates an empty gallery persisted to store under key
func New(store Store, key string) *Gallery {
	if key == "" {
		key = DefaultKey
	}
	g := &Gallery{store: store, key: key}
	empty := []models.Identity{}
	g.snapshot.Store(&empty)
	return g
}

// Load replaces the in-memory gallery with the persisted one.
// found is false when the store has no gallery yet.
func (g *Gallery) Load(ctx context.Context) (found bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	blob, ok, err := g.store.Get(ctx, g.key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if !ok {
		log.WithField("key", g.key).Info("No persisted gallery found")
		return false, nil
	}
	identities, err := Decode(blob)
	if err != nil {
		return true, err
	}
	g.snapshot.Store(&identities)
	log.WithFields(log.Fields{"key": g.key, "identities": len(identities)}).Info("Gallery loaded")
	return true, nil
}

// Snapshot returns the current identities in gallery order.
// The returned slice is shared and must not be modified.
func (g *Gallery) Snapshot() []models.Identity {
	return *g.snapshot.Load()
}

// Len returns the number of identities
func (g *Gallery) Len() int {
	return len(g.Snapshot())
}

// Dimension returns the embedding length of the gallery, 0 when empty
func (g *Gallery) Dimension() int {
	snap := g.Snapshot()
	if len(snap) == 0 {
		return 0
	}
	return len(snap[0].Embedding)
}

// Get returns a copy of the identity with the given id
func (g *Gallery) Get(id string) (models.Identity, bool) {
	for _, identity := range g.Snapshot() {
		if identity.ID == id {
			return identity.Clone(), true
		}
	}
	return models.Identity{}, false
}

// Append adds an identity at the end of the gallery and persists the result.
// On any error the gallery is unchanged.
func (g *Gallery) Append(ctx context.Context, identity models.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	cur := g.Snapshot()
	if len(cur) > 0 && len(cur[0].Embedding) != len(identity.Embedding) {
		return fmt.Errorf("identity has %d components, gallery has %d: %w",
			len(identity.Embedding), len(cur[0].Embedding), models.ErrDimensionMismatch)
	}
	next := make([]models.Identity, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, identity.Clone())
	return g.commit(ctx, next)
}

// Update applies fn to a copy of the identity and persists the result
func (g *Gallery) Update(ctx context.Context, id string, fn func(*models.Identity)) (models.Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.Snapshot()
	idx := indexOf(cur, id)
	if idx < 0 {
		return models.Identity{}, fmt.Errorf("identity %s: %w", id, models.ErrNotFound)
	}
	next := make([]models.Identity, len(cur))
	copy(next, cur)
	updated := cur[idx].Clone()
	fn(&updated)
	// id and embedding are owned by the gallery
	updated.ID = cur[idx].ID
	updated.Embedding = cur[idx].Embedding
	next[idx] = updated
	if err := g.commit(ctx, next); err != nil {
		return models.Identity{}, err
	}
	return updated.Clone(), nil
}

// Remove deletes the identity with the given id and persists the result
func (g *Gallery) Remove(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.Snapshot()
	idx := indexOf(cur, id)
	if idx < 0 {
		return fmt.Errorf("identity %s: %w", id, models.ErrNotFound)
	}
	next := make([]models.Identity, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	return g.commit(ctx, next)
}

// Replace swaps the whole gallery for identities and persists it
func (g *Gallery) Replace(ctx context.Context, identities []models.Identity) error {
	if err := checkDimensions(identities); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	next := make([]models.Identity, len(identities))
	for i := range identities {
		next[i] = identities[i].Clone()
	}
	return g.commit(ctx, next)
}

// Clear removes every identity. Stores implementing Deleter drop the key,
// so a later Load reports no persisted gallery.
func (g *Gallery) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := g.store.(Deleter)
	if !ok {
		return g.commit(ctx, []models.Identity{})
	}
	if err := d.Delete(ctx, g.key); err != nil {
		log.WithError(err).WithField("key", g.key).Error("Failed to clear gallery")
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	g.publish([]models.Identity{})
	log.WithField("key", g.key).Info("Gallery cleared")
	return nil
}

// OnCommit registers fn to be called with every newly published snapshot.
// fn runs while writers are blocked and must not write to the gallery.
func (g *Gallery) OnCommit(fn func([]models.Identity)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onCommit = append(g.onCommit, fn)
}

// commit persists next and publishes it. Callers hold g.mu.
func (g *Gallery) commit(ctx context.Context, next []models.Identity) error {
	blob, err := Encode(next)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if err := g.store.Set(ctx, g.key, blob); err != nil {
		log.WithError(err).WithField("key", g.key).Error("Failed to persist gallery")
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	g.publish(next)
	return nil
}

// publish stores next as the current snapshot. Callers hold g.mu.
func (g *Gallery) publish(next []models.Identity) {
	g.snapshot.Store(&next)
	for _, fn := range g.onCommit {
		fn(next)
	}
}

func indexOf(identities []models.Identity, id string) int {
	for i := range identities {
		if identities[i].ID == id {
			return i
		}
	}
	return -1
}
