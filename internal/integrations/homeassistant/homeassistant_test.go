package homeassistant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/core/recognition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	retained  map[string]interface{}
	order     []string
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{connected: true, retained: make(map[string]interface{})}
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }
func (f *fakeMQTT) PublishRetain(topic string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retained[topic] = payload
	f.order = append(f.order, topic)
	return nil
}

func (f *fakeMQTT) get(topic string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.retained[topic]
	return v, ok
}

func (f *fakeMQTT) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func TestDiscovery_SyncAddsAndRemoves(t *testing.T) {
	fake := newFakeMQTT()
	d := NewDiscovery(fake, "", "facegate")

	require.NoError(t, d.Sync([]models.Identity{{ID: "a1", Name: "Alice Smith"}}))

	_, ok := fake.get("homeassistant/switch/facegate/recognition/config")
	assert.True(t, ok)
	v, ok := fake.get("homeassistant/sensor/facegate/faces/config")
	require.True(t, ok)
	assert.Equal(t, "facegate/presence", v.(EntityConfig).StateTopic)

	v, ok = fake.get("homeassistant/sensor/facegate/a1/config")
	require.True(t, ok)
	sensor := v.(EntityConfig)
	assert.Equal(t, "facegate/identities/a1/last_seen", sensor.StateTopic)
	assert.Equal(t, "timestamp", sensor.DeviceClass)
	assert.Equal(t, "Alice Smith last seen", sensor.Name)

	// unverändert: keine weiteren Nachrichten
	n := fake.published()
	require.NoError(t, d.Sync([]models.Identity{{ID: "a1", Name: "Alice Smith"}}))
	assert.Equal(t, n, fake.published())

	require.NoError(t, d.Sync(nil))
	v, _ = fake.get("homeassistant/sensor/facegate/a1/config")
	assert.Equal(t, "", v)

	data, err := json.Marshal(sensor)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "command_topic")
}

func TestDiscovery_Disconnected(t *testing.T) {
	fake := newFakeMQTT()
	fake.connected = false
	d := NewDiscovery(fake, "ha", "facegate")
	require.NoError(t, d.Sync([]models.Identity{{ID: "a1", Name: "Alice"}}))
	assert.Zero(t, fake.published())
}

func TestDiscovery_ResetRepublishes(t *testing.T) {
	fake := newFakeMQTT()
	d := NewDiscovery(fake, "ha", "facegate")
	ids := []models.Identity{{ID: "a1", Name: "Alice"}}
	require.NoError(t, d.Sync(ids))
	n := fake.published()

	d.Reset()
	require.NoError(t, d.Sync(ids))
	assert.Equal(t, 2*n, fake.published())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "alice_smith", slug(" Alice Smith "))
	assert.Equal(t, "a1_b2", slug("a1-b2"))
}

func TestPublisher_PublishesChangesOnly(t *testing.T) {
	fake := newFakeMQTT()
	p := NewPublisher(fake, "facegate", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	cycle := recognition.CycleResult{Faces: []recognition.FaceResult{
		{Matched: true, IdentityName: "Bob"},
		{Matched: true, IdentityName: "Alice"},
		{Matched: false},
	}}
	p.Publish(cycle)
	p.Publish(cycle)

	require.Eventually(t, func() bool { return fake.published() == 1 }, time.Second, time.Millisecond)
	v, _ := fake.get("facegate/presence")
	assert.Equal(t, Presence{Faces: 3, Matched: 2, Unknown: 1, Names: []string{"Alice", "Bob"}}, v)

	p.Publish(recognition.CycleResult{})
	require.Eventually(t, func() bool { return fake.published() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, p.Current().Faces)
}

func TestPublisher_DroppedUpdateIsRetried(t *testing.T) {
	p := NewPublisher(newFakeMQTT(), "facegate", time.Hour)
	cycle := recognition.CycleResult{Faces: []recognition.FaceResult{{Matched: true, IdentityName: "Alice"}}}

	// no reader and no buffer: the update cannot be queued
	p.updates = make(chan Presence)
	p.Publish(cycle)
	assert.Equal(t, 0, p.Current().Faces, "dropped update must not advance state")

	p.updates = make(chan Presence, 1)
	p.Publish(cycle)
	require.Len(t, p.updates, 1)
	assert.Equal(t, Presence{Faces: 1, Matched: 1, Names: []string{"Alice"}}, <-p.updates)
	assert.Equal(t, 1, p.Current().Faces)
}

func TestPublisher_ResetsWhenIdle(t *testing.T) {
	fake := newFakeMQTT()
	p := NewPublisher(fake, "facegate", 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Publish(recognition.CycleResult{Faces: []recognition.FaceResult{{Matched: false}}})
	require.Eventually(t, func() bool {
		v, ok := fake.get("facegate/presence")
		return ok && v.(Presence).Faces == 0 && fake.published() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDiscovery_RunSyncsLatestSnapshot(t *testing.T) {
	fake := newFakeMQTT()
	d := NewDiscovery(fake, "", "facegate")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	ids := []models.Identity{{ID: "a1", Name: "Alice"}}
	go d.Run(ctx, func() []models.Identity {
		mu.Lock()
		defer mu.Unlock()
		return ids
	})

	d.Notify()
	d.Notify()
	require.Eventually(t, func() bool {
		_, ok := fake.get("homeassistant/sensor/facegate/a1/config")
		return ok
	}, time.Second, time.Millisecond)
}
