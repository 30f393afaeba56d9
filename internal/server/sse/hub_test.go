package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"facegate/internal/core/recognition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastsCycleResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	client := make(Client, 4)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, time.Millisecond)

	hub.Publish(recognition.CycleResult{Width: 640, Faces: []recognition.FaceResult{{Label: "Alice"}}})

	select {
	case msg := <-client:
		assert.Equal(t, EventCycle, msg.Event)
		var got recognition.CycleResult
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, 640, got.Width)
		assert.Equal(t, "Alice", got.Faces[0].Label)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	hub.Unregister(client)
	_, open := <-client
	assert.False(t, open)
}

func TestHub_SlowClientIsRemoved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	slow := make(Client) // unbuffered and never read
	hub.Register(slow)
	hub.Broadcast(EventCycle, []byte(`{}`))
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	client := make(Client, 1)
	hub.Register(client)
	cancel()
	<-done
	_, open := <-client
	assert.False(t, open)
}

func TestHub_RegisterAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	client := make(Client, 1)
	hub.Register(client)
	_, open := <-client
	assert.False(t, open, "late clients are closed immediately")
	hub.Unregister(client)
}
