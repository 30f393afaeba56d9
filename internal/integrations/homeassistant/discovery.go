// Package homeassistant announces facegate entities over MQTT Discovery and
// publishes the current presence state for them.
package homeassistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Constants for Home Assistant MQTT Discovery
const (
	// Discovery-Präfix für Home Assistant (Standard ist "homeassistant")
	DefaultDiscoveryPrefix = "homeassistant"

	ComponentSensor = "sensor"
	ComponentSwitch = "switch"

	// Node-ID für facegate
	NodeID = "facegate"
)

// MessagePublisher ist der Teil des MQTT-Clients, den Discovery benötigt
type MessagePublisher interface {
	PublishRetain(topic string, payload interface{}) error
	IsConnected() bool
}

// EntityConfig repräsentiert die MQTT-Discovery-Konfiguration einer Entität
type EntityConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic,omitempty"`
	CommandTopic        string  `json:"command_topic,omitempty"`
	PayloadOn           string  `json:"payload_on,omitempty"`
	PayloadOff          string  `json:"payload_off,omitempty"`
	Optimistic          bool    `json:"optimistic,omitempty"`
	DeviceClass         string  `json:"device_class,omitempty"`
	Icon                string  `json:"icon,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// Discovery verwaltet die Home Assistant MQTT Discovery
type Discovery struct {
	client MessagePublisher
	prefix string
	topic  string
	device *Device

	changed chan struct{}

	mu         sync.Mutex
	base       bool              // Grund-Entitäten veröffentlicht
	identities map[string]string // ID -> Name der veröffentlichten Sensoren
}

// NewDiscovery erstellt einen Discovery-Manager. topic ist das facegate-Basistopic.
func NewDiscovery(client MessagePublisher, prefix, topic string) *Discovery {
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return &Discovery{
		client: client,
		prefix: prefix,
		topic:  topic,
		device: &Device{
			Identifiers:  []string{NodeID + "_" + slug(topic)},
			Name:         "facegate",
			Manufacturer: "facegate",
			Model:        "Face recognition",
		},
		identities: make(map[string]string),
		changed:    make(chan struct{}, 1),
	}
}

// Notify markiert die Galerie als geändert, ohne zu blockieren
func (d *Discovery) Notify() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Run synchronisiert nach jeder Benachrichtigung den aktuellen Stand von snapshot
func (d *Discovery) Run(ctx context.Context, snapshot func() []models.Identity) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.changed:
			if err := d.Sync(snapshot()); err != nil {
				log.WithError(err).Warn("Home Assistant discovery sync failed")
			}
		}
	}
}

// Reset vergisst den veröffentlichten Stand, z.B. nach einem Reconnect
func (d *Discovery) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.base = false
	d.identities = make(map[string]string)
}

// Sync gleicht die Discovery-Konfigurationen mit der Galerie ab.
// Neue Identitäten werden angekündigt, entfernte mit leerer Nutzlast gelöscht.
func (d *Discovery) Sync(identities []models.Identity) error {
	if !d.client.IsConnected() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.base {
		if err := d.publishBase(); err != nil {
			return err
		}
		d.base = true
	}

	current := make(map[string]bool, len(identities))
	for _, identity := range identities {
		current[identity.ID] = true
		if name, ok := d.identities[identity.ID]; ok && name == identity.Name {
			continue
		}
		if err := d.publish(d.configTopic(ComponentSensor, identity.ID), d.identitySensor(identity)); err != nil {
			return err
		}
		log.Infof("Registered Home Assistant sensor for identity: %s", identity.Name)
		d.identities[identity.ID] = identity.Name
	}

	for id := range d.identities {
		if current[id] {
			continue
		}
		// leere Retained-Nachricht entfernt die Entität
		if err := d.publish(d.configTopic(ComponentSensor, id), ""); err != nil {
			return err
		}
		log.Infof("Removed Home Assistant sensor for identity %s", id)
		delete(d.identities, id)
	}
	return nil
}

// publishBase kündigt Anwesenheitssensor und Erkennungsschalter an
func (d *Discovery) publishBase() error {
	availability := d.topic + "/availability"
	presence := EntityConfig{
		Name:                "facegate faces",
		UniqueID:            NodeID + "_" + slug(d.topic) + "_faces",
		StateTopic:          PresenceTopic(d.topic),
		ValueTemplate:       "{{ value_json.faces }}",
		JSONAttributesTopic: PresenceTopic(d.topic),
		Icon:                "mdi:face-recognition",
		AvailabilityTopic:   availability,
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              d.device,
	}
	if err := d.publish(d.configTopic(ComponentSensor, "faces"), presence); err != nil {
		return err
	}

	sw := EntityConfig{
		Name:                "facegate recognition",
		UniqueID:            NodeID + "_" + slug(d.topic) + "_recognition",
		CommandTopic:        d.topic + "/recognition/set",
		PayloadOn:           "on",
		PayloadOff:          "off",
		Optimistic:          true,
		Icon:                "mdi:cctv",
		AvailabilityTopic:   availability,
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              d.device,
	}
	return d.publish(d.configTopic(ComponentSwitch, "recognition"), sw)
}

func (d *Discovery) identitySensor(identity models.Identity) EntityConfig {
	return EntityConfig{
		Name:                fmt.Sprintf("%s last seen", identity.Name),
		UniqueID:            NodeID + "_" + slug(d.topic) + "_" + slug(identity.ID),
		StateTopic:          fmt.Sprintf("%s/identities/%s/last_seen", d.topic, identity.ID),
		DeviceClass:         "timestamp",
		Icon:                "mdi:account-clock",
		AvailabilityTopic:   d.topic + "/availability",
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              d.device,
	}
}

func (d *Discovery) configTopic(component, object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", d.prefix, component, NodeID, slug(object))
}

func (d *Discovery) publish(topic string, payload interface{}) error {
	if err := d.client.PublishRetain(topic, payload); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9_]+`)

// slug normalisiert s für Topics und unique_id (Kleinbuchstaben, Unterstriche)
func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
