package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// NewClientFunc erzeugt den Paho-Client; in Tests ersetzbar
var NewClientFunc = mqtt.NewClient

// Controller wird über MQTT-Befehle gesteuert
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
}

// commandQueueSize begrenzt die wartenden Steuerbefehle
const commandQueueSize = 8

type command struct {
	topic   string
	payload []byte
}

// Client veröffentlicht Erkennungen und nimmt Steuerbefehle entgegen
type Client struct {
	config     config.MQTTConfig
	client     mqtt.Client
	controller Controller
	onConnect  []func()

	// Befehle laufen in eigener Goroutine, nicht im Paho-Router
	commands   chan command
	quit       chan struct{}
	workerOnce sync.Once
	stopOnce   sync.Once
}

// RecognitionMessage ist die Nutzlast unter <topic>/recognitions
type RecognitionMessage struct {
	ID         uint      `json:"id"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Location   string    `json:"location"`
	Count      int       `json:"recognitionCount"`
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{
		config:   cfg,
		commands: make(chan command, commandQueueSize),
		quit:     make(chan struct{}),
	}
}

// SetController registriert das Ziel für Befehle unter <topic>/recognition/set
func (c *Client) SetController(ctrl Controller) {
	c.controller = ctrl
}

// OnConnect registriert fn für jeden (Wieder-)Verbindungsaufbau
func (c *Client) OnConnect(fn func()) {
	c.onConnect = append(c.onConnect, fn)
}

// AvailabilityTopic gibt das Retained-Topic für online/offline zurück
func (c *Client) AvailabilityTopic() string {
	return c.config.Topic + "/availability"
}

// RecognitionsTopic gibt das Topic für Erkennungsereignisse zurück
func (c *Client) RecognitionsTopic() string {
	return c.config.Topic + "/recognitions"
}

// LastSeenTopic gibt das Retained-Topic für den letzten Zeitpunkt einer Identität zurück
func (c *Client) LastSeenTopic(identityID string) string {
	return fmt.Sprintf("%s/identities/%s/last_seen", c.config.Topic, identityID)
}

// CommandTopic gibt das Topic für Start/Stop-Befehle zurück
func (c *Client) CommandTopic() string {
	return c.config.Topic + "/recognition/set"
}

// Start startet den MQTT-Client und verbindet ihn mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	c.workerOnce.Do(func() { go c.runCommands() })

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	// Optionale Authentifizierung
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Verfügbarkeit über Last Will
	opts.SetWill(c.AvailabilityTopic(), "offline", 1, true)

	c.client = NewClientFunc(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop beendet den MQTT-Client
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		_ = c.PublishRetain(c.AvailabilityTopic(), "offline")
		c.client.Disconnect(250) // 250ms Wartezeit
		log.Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// onConnectHandler wird aufgerufen, wenn die Verbindung hergestellt wurde
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	if token := client.Publish(c.AvailabilityTopic(), 1, true, "online"); token.Wait() && token.Error() != nil {
		log.Warnf("Failed to publish availability: %v", token.Error())
	}
	for _, fn := range c.onConnect {
		go fn()
	}

	if c.controller == nil {
		return
	}
	topic := c.CommandTopic()
	log.Infof("Subscribing to MQTT topic: %s", topic)
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
	}
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// messageHandler reiht eingehende Befehle ein und kehrt sofort zurück
func (c *Client) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	select {
	case c.commands <- command{topic: msg.Topic(), payload: msg.Payload()}:
	default:
		log.WithField("topic", msg.Topic()).Warn("MQTT command queue full, dropping command")
	}
}

// runCommands führt Befehle nacheinander in Empfangsreihenfolge aus
func (c *Client) runCommands() {
	for {
		select {
		case <-c.quit:
			return
		case cmd := <-c.commands:
			c.handleCommand(cmd.topic, cmd.payload)
		}
	}
}

func (c *Client) handleCommand(topic string, payload []byte) {
	if c.controller == nil || topic != c.CommandTopic() {
		return
	}
	cmd := strings.ToLower(strings.TrimSpace(string(payload)))
	log.WithFields(log.Fields{"topic": topic, "command": cmd}).Info("Received MQTT command")

	var err error
	switch cmd {
	case "start", "on":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = c.controller.Start(ctx)
		cancel()
	case "stop", "off":
		err = c.controller.Stop()
	default:
		log.Warnf("Unknown MQTT command %q", cmd)
		return
	}
	if err != nil {
		log.WithError(err).WithField("reason", models.ReasonCode(err)).Warn("MQTT command failed")
	}
}

// PublishRecognition veröffentlicht ein Erkennungsereignis und den letzten Zeitpunkt der Identität
func (c *Client) PublishRecognition(event models.RecognitionEvent, identity models.Identity) error {
	msg := RecognitionMessage{
		ID:         event.ID,
		UserID:     event.IdentityID,
		UserName:   event.IdentityName,
		Timestamp:  event.Timestamp,
		Confidence: event.Confidence,
		Location:   event.Location,
		Count:      identity.RecognitionCount,
	}
	if err := c.Publish(c.RecognitionsTopic(), msg); err != nil {
		return err
	}
	return c.PublishRetain(c.LastSeenTopic(event.IdentityID), event.Timestamp.Format(time.RFC3339))
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	var payloadBytes []byte
	var err error

	switch p := payload.(type) {
	case string:
		payloadBytes = []byte(p)
	case []byte:
		payloadBytes = p
	default:
		payloadBytes, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}
