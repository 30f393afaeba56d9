package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"facegate/internal/core/gallery"
	"facegate/internal/core/models"
	"facegate/internal/core/recognition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEvents struct {
	mu     sync.Mutex
	events []models.RecognitionEvent
	err    error
}

func (m *memEvents) Save(_ context.Context, e *models.RecognitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e.ID = uint(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

func (m *memEvents) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type memPublisher struct {
	mu    sync.Mutex
	count []int
}

func (p *memPublisher) PublishRecognition(_ models.RecognitionEvent, identity models.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = append(p.count, identity.RecognitionCount)
	return nil
}

func matched(id, name string, conf float64) recognition.FaceResult {
	return recognition.FaceResult{Matched: true, IdentityID: id, IdentityName: name, Confidence: &conf, Label: name}
}

func newTestGallery(t *testing.T) *gallery.Gallery {
	t.Helper()
	g := gallery.New(gallery.NewMemoryStore(), "")
	require.NoError(t, g.Append(context.Background(), models.Identity{ID: "a1", Name: "Alice", Embedding: models.Embedding{0}}))
	require.NoError(t, g.Append(context.Background(), models.Identity{ID: "b2", Name: "Bob", Embedding: models.Embedding{1}}))
	return g
}

func TestRecorder_RecordsWithCooldown(t *testing.T) {
	store := &memEvents{}
	pub := &memPublisher{}
	g := newTestGallery(t)
	r := NewRecorder(store, g, pub, Options{Location: "Main Entrance", Cooldown: 30 * time.Second})

	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()
	r.handle(ctx, recognition.CycleResult{Timestamp: t0, Faces: []recognition.FaceResult{
		matched("a1", "Alice", 80), {Label: recognition.UnknownLabel}, matched("b2", "Bob", 70),
	}})
	r.handle(ctx, recognition.CycleResult{Timestamp: t0.Add(10 * time.Second), Faces: []recognition.FaceResult{matched("a1", "Alice", 85)}})
	r.handle(ctx, recognition.CycleResult{Timestamp: t0.Add(31 * time.Second), Faces: []recognition.FaceResult{matched("a1", "Alice", 90)}})

	require.Equal(t, 3, store.len())
	assert.Equal(t, "Main Entrance", store.events[0].Location)
	assert.Equal(t, 80.0, store.events[0].Confidence)
	assert.Equal(t, uint64(3), r.Recorded())

	alice, ok := g.Get("a1")
	require.True(t, ok)
	assert.Equal(t, 2, alice.RecognitionCount)
	require.NotNil(t, alice.LastSeen)
	assert.Equal(t, t0.Add(31*time.Second), *alice.LastSeen)

	assert.Equal(t, []int{1, 1, 2}, pub.count)
}

func TestRecorder_StoreFailureLeavesIdentity(t *testing.T) {
	store := &memEvents{err: errors.New("db locked")}
	g := newTestGallery(t)
	r := NewRecorder(store, g, nil, Options{})

	r.handle(context.Background(), recognition.CycleResult{Timestamp: time.Now(), Faces: []recognition.FaceResult{matched("a1", "Alice", 80)}})
	alice, _ := g.Get("a1")
	assert.Zero(t, alice.RecognitionCount)
	assert.Zero(t, r.Recorded())
}

func TestRecorder_RemovedIdentity(t *testing.T) {
	store := &memEvents{}
	g := newTestGallery(t)
	r := NewRecorder(store, g, nil, Options{})
	require.NoError(t, g.Remove(context.Background(), "a1"))

	r.handle(context.Background(), recognition.CycleResult{Timestamp: time.Now(), Faces: []recognition.FaceResult{matched("a1", "Alice", 80)}})
	assert.Zero(t, r.Recorded())
}

func TestRecorder_PublishNeverBlocks(t *testing.T) {
	r := NewRecorder(&memEvents{}, newTestGallery(t), nil, Options{QueueSize: 1})
	result := recognition.CycleResult{Timestamp: time.Now(), Faces: []recognition.FaceResult{matched("a1", "Alice", 80)}}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Publish(result)
		}
		r.Publish(recognition.CycleResult{}) // no matches, ignored
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Equal(t, uint64(9), r.Dropped())
}

func TestRecorder_Run(t *testing.T) {
	store := &memEvents{}
	r := NewRecorder(store, newTestGallery(t), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	r.Publish(recognition.CycleResult{Timestamp: time.Now(), Faces: []recognition.FaceResult{matched("b2", "Bob", 66)}})
	require.Eventually(t, func() bool { return store.len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
