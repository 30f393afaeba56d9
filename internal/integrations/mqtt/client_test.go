package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	messages   []published
	subscribed []string
}

func (f *fakeClient) IsConnected() bool      { return f.connected }
func (f *fakeClient) IsConnectionOpen() bool { return f.connected }
func (f *fakeClient) Connect() paho.Token {
	f.connected = true
	return &fakeToken{}
}
func (f *fakeClient) Disconnect(uint) { f.connected = false }
func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.messages = append(f.messages, published{topic: topic, retain: retained, payload: data})
	return &fakeToken{}
}
func (f *fakeClient) Subscribe(topic string, _ byte, _ paho.MessageHandler) paho.Token {
	f.subscribed = append(f.subscribed, topic)
	return &fakeToken{}
}
func (f *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &fakeToken{}
}
func (f *fakeClient) Unsubscribe(...string) paho.Token          { return &fakeToken{} }
func (f *fakeClient) AddRoute(string, paho.MessageHandler)      {}
func (f *fakeClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

type fakeController struct {
	mu            sync.Mutex
	starts, stops int
	gate          chan struct{} // blocks Start until closed, if set
	order         []string
}

func (c *fakeController) Start(context.Context) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	c.order = append(c.order, "start")
	return nil
}

func (c *fakeController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.order = append(c.order, "stop")
	return nil
}

func (c *fakeController) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestClient(t *testing.T) (*Client, *fakeClient) {
	t.Helper()
	fake := &fakeClient{}
	orig := NewClientFunc
	NewClientFunc = func(*paho.ClientOptions) paho.Client { return fake }
	t.Cleanup(func() { NewClientFunc = orig })

	c := NewClient(config.MQTTConfig{Enabled: true, Broker: "localhost", Port: 1883, ClientID: "facegate", Topic: "facegate"})
	require.NoError(t, c.Start())
	return c, fake
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(config.MQTTConfig{Enabled: false})
	require.NoError(t, c.Start())
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Publish("x", "y"))
}

func TestClient_PublishRecognition(t *testing.T) {
	c, fake := newTestClient(t)
	ts := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	err := c.PublishRecognition(
		models.RecognitionEvent{ID: 7, IdentityID: "a1", IdentityName: "Alice", Timestamp: ts, Confidence: 82.5, Location: "Main Entrance"},
		models.Identity{ID: "a1", RecognitionCount: 3},
	)
	require.NoError(t, err)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, "facegate/recognitions", fake.messages[0].topic)
	assert.False(t, fake.messages[0].retain)

	var msg RecognitionMessage
	require.NoError(t, json.Unmarshal(fake.messages[0].payload, &msg))
	assert.Equal(t, "Alice", msg.UserName)
	assert.Equal(t, 3, msg.Count)

	assert.Equal(t, "facegate/identities/a1/last_seen", fake.messages[1].topic)
	assert.True(t, fake.messages[1].retain)
	assert.Equal(t, "2024-06-01T09:30:00Z", string(fake.messages[1].payload))
}

func TestClient_Commands(t *testing.T) {
	c, fake := newTestClient(t)
	ctrl := &fakeController{}
	c.SetController(ctrl)
	c.onConnectHandler(fake)
	assert.Contains(t, fake.subscribed, "facegate/recognition/set")

	c.handleCommand("facegate/recognition/set", []byte(" START "))
	c.handleCommand("facegate/recognition/set", []byte("off"))
	c.handleCommand("facegate/recognition/set", []byte("reboot"))
	c.handleCommand("other/topic", []byte("start"))

	assert.Equal(t, 1, ctrl.starts)
	assert.Equal(t, 1, ctrl.stops)

	c.Stop()
	assert.False(t, c.IsConnected())
}

func TestClient_CommandsDoNotBlockRouter(t *testing.T) {
	c, fake := newTestClient(t)
	ctrl := &fakeController{gate: make(chan struct{})}
	c.SetController(ctrl)
	t.Cleanup(c.Stop)

	returned := make(chan struct{})
	go func() {
		c.messageHandler(fake, &fakeMessage{topic: "facegate/recognition/set", payload: []byte("start")})
		c.messageHandler(fake, &fakeMessage{topic: "facegate/recognition/set", payload: []byte("stop")})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("message handler blocked on a slow start")
	}
	assert.Empty(t, ctrl.calls())

	close(ctrl.gate)
	require.Eventually(t, func() bool { return len(ctrl.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"start", "stop"}, ctrl.calls())
}

func TestClient_CommandQueueFull(t *testing.T) {
	c, fake := newTestClient(t)
	ctrl := &fakeController{gate: make(chan struct{})}
	c.SetController(ctrl)
	t.Cleanup(c.Stop)

	msg := &fakeMessage{topic: "facegate/recognition/set", payload: []byte("start")}
	// one command is taken by the worker, the rest fill the queue
	for i := 0; i < commandQueueSize+5; i++ {
		c.messageHandler(fake, msg)
	}
	close(ctrl.gate)
	require.Eventually(t, func() bool { return len(ctrl.calls()) > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(ctrl.calls()), commandQueueSize+1)
}

func TestClient_OnConnectHooks(t *testing.T) {
	c, fake := newTestClient(t)
	called := make(chan struct{}, 1)
	c.OnConnect(func() { called <- struct{}{} })

	c.onConnectHandler(fake)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("hook not called")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotEmpty(t, fake.messages)
	assert.Equal(t, "facegate/availability", fake.messages[0].topic)
	assert.Equal(t, "online", string(fake.messages[0].payload))
	assert.True(t, fake.messages[0].retain)
}
