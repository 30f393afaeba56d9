package gallery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"facegate/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	MemoryStore
	fail bool
}

func (s *failingStore) Set(ctx context.Context, key string, blob []byte) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Set(ctx, key, blob)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Delete(ctx, key)
}

// setOnlyStore hides MemoryStore.Delete
type setOnlyStore struct{ inner *MemoryStore }

func (s setOnlyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, key)
}

func (s setOnlyStore) Set(ctx context.Context, key string, blob []byte) error {
	return s.inner.Set(ctx, key, blob)
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: MemoryStore{items: make(map[string][]byte)}}
}

func alice() models.Identity {
	seen := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	return models.Identity{
		ID:               "a1",
		Name:             "Alice",
		Email:            "alice@example.com",
		Embedding:        models.Embedding{0.1, -0.25, 0.5},
		ImageURL:         "data:image/jpeg;base64,AAAA",
		RegisteredAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		LastSeen:         &seen,
		RecognitionCount: 7,
	}
}

func TestGallery_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	g := New(store, "")

	bob := models.Identity{ID: "b2", Name: "Bob", Embedding: models.Embedding{1, 2, 3}, RegisteredAt: time.Unix(0, 0).UTC()}
	require.NoError(t, g.Append(ctx, alice()))
	require.NoError(t, g.Append(ctx, bob))

	reloaded := New(store, DefaultKey)
	found, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, g.Snapshot(), reloaded.Snapshot())
	assert.Equal(t, "a1", reloaded.Snapshot()[0].ID)
	assert.Equal(t, "b2", reloaded.Snapshot()[1].ID)
}

func TestGallery_LoadAbsent(t *testing.T) {
	g := New(NewMemoryStore(), "")
	found, err := g.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, g.Len())
}

func TestGallery_LoadCorrupt(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), DefaultKey, []byte("{not json")))
	g := New(store, "")
	_, err := g.Load(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestGallery_AppendNotCommittedWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	store := newFailingStore()
	g := New(store, "")
	require.NoError(t, g.Append(ctx, alice()))

	store.fail = true
	err := g.Append(ctx, models.Identity{ID: "b2", Embedding: models.Embedding{0, 0, 0}})
	require.ErrorIs(t, err, models.ErrPersistence)
	assert.Equal(t, 1, g.Len())
	_, ok := g.Get("b2")
	assert.False(t, ok)
}

func TestGallery_AppendCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := New(NewMemoryStore(), "")
	err := g.Append(ctx, alice())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, g.Len())
}

func TestGallery_AppendDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(), "")
	require.NoError(t, g.Append(ctx, alice()))
	err := g.Append(ctx, models.Identity{ID: "x", Embedding: models.Embedding{1}})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.Equal(t, 1, g.Len())
}

func TestGallery_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	g := New(store, "")
	require.NoError(t, g.Append(ctx, alice()))

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, err := g.Update(ctx, "a1", func(i *models.Identity) {
		i.RecognitionCount++
		i.LastSeen = &now
	})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.RecognitionCount)

	got, ok := g.Get("a1")
	require.True(t, ok)
	assert.Equal(t, now, *got.LastSeen)

	_, err = g.Update(ctx, "missing", func(*models.Identity) {})
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, g.Remove(ctx, "a1"))
	assert.Equal(t, 0, g.Len())
	assert.ErrorIs(t, g.Remove(ctx, "a1"), models.ErrNotFound)

	reloaded := New(store, "")
	_, err = reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
}

func TestGallery_SnapshotStableDuringWrites(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(), "")
	require.NoError(t, g.Append(ctx, alice()))
	snap := g.Snapshot()

	require.NoError(t, g.Append(ctx, models.Identity{ID: "b2", Embedding: models.Embedding{0, 0, 0}}))
	assert.Len(t, snap, 1)
	assert.Equal(t, 2, g.Len())
}

func TestGallery_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(), "")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := models.Identity{ID: fmt.Sprintf("w%d-%d", w, i), Embedding: models.Embedding{float32(w), float32(i)}}
				assert.NoError(t, g.Append(ctx, id))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for _, identity := range g.Snapshot() {
					assert.Len(t, identity.Embedding, 2)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, g.Len())
}

func TestDemoIdentities(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ids := DemoIdentities(r, 50, 128, now)
	require.Len(t, ids, 50)
	for _, id := range ids {
		assert.Len(t, id.Embedding, 128)
		for _, v := range id.Embedding {
			assert.GreaterOrEqual(t, v, float32(-1))
			assert.Less(t, v, float32(1))
		}
		assert.False(t, id.RegisteredAt.After(now))
		assert.Contains(t, id.Email, "@")
	}

	g := New(NewMemoryStore(), "")
	require.NoError(t, g.Replace(context.Background(), ids))
	assert.Equal(t, 50, g.Len())
	assert.Equal(t, 128, g.Dimension())
}

func TestCodec_EmptyGallery(t *testing.T) {
	blob, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(blob))

	ids, err := Decode(blob)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCodec_RejectsMixedDimensions(t *testing.T) {
	_, err := Decode([]byte(`[{"id":"a","descriptor":[1,2]},{"id":"b","descriptor":[1]}]`))
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestGallery_OnCommit(t *testing.T) {
	ctx := context.Background()
	store := newFailingStore()
	g := New(store, "")

	var sizes []int
	g.OnCommit(func(snap []models.Identity) { sizes = append(sizes, len(snap)) })

	require.NoError(t, g.Append(ctx, alice()))
	store.fail = true
	require.Error(t, g.Append(ctx, models.Identity{ID: "b2", Embedding: models.Embedding{0, 0, 0}}))
	store.fail = false
	require.NoError(t, g.Remove(ctx, "a1"))

	assert.Equal(t, []int{1, 0}, sizes, "failed writes are not reported")
}

func TestGallery_Clear(t *testing.T) {
	ctx := context.Background()
	store := newFailingStore()
	g := New(store, "")
	require.NoError(t, g.Append(ctx, alice()))

	var sizes []int
	g.OnCommit(func(snap []models.Identity) { sizes = append(sizes, len(snap)) })

	store.fail = true
	require.ErrorIs(t, g.Clear(ctx), models.ErrPersistence)
	assert.Equal(t, 1, g.Len(), "failed clear keeps the gallery")

	store.fail = false
	require.NoError(t, g.Clear(ctx))
	assert.Zero(t, g.Len())
	assert.Equal(t, []int{0}, sizes)

	found, err := New(store, "").Load(ctx)
	require.NoError(t, err)
	assert.False(t, found, "key is dropped")

	// a new dimension is accepted after clearing
	require.NoError(t, g.Append(ctx, models.Identity{ID: "b2", Embedding: models.Embedding{1, 2}}))
}

func TestGallery_ClearWithoutDeleter(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	g := New(setOnlyStore{inner: inner}, "")
	require.NoError(t, g.Append(ctx, alice()))

	require.NoError(t, g.Clear(ctx))
	assert.Zero(t, g.Len())

	blob, ok, err := inner.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[]`, string(blob))
}
