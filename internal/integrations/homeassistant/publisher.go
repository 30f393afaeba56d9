package homeassistant

import (
	"context"
	"sort"
	"sync"
	"time"

	"facegate/internal/core/recognition"

	log "github.com/sirupsen/logrus"
)

// DefaultResetAfter ist die Zeit ohne Zyklus, nach der die Anwesenheit auf 0 fällt
const DefaultResetAfter = 30 * time.Second

// Presence ist der Zustand unter <topic>/presence
type Presence struct {
	Faces   int      `json:"faces"`
	Matched int      `json:"matched"`
	Unknown int      `json:"unknown"`
	Names   []string `json:"names"`
}

func (p Presence) equal(o Presence) bool {
	if p.Faces != o.Faces || p.Matched != o.Matched || p.Unknown != o.Unknown || len(p.Names) != len(o.Names) {
		return false
	}
	for i := range p.Names {
		if p.Names[i] != o.Names[i] {
			return false
		}
	}
	return true
}

// PresenceTopic gibt das Topic des Anwesenheitssensors zurück
func PresenceTopic(topic string) string {
	return topic + "/presence"
}

// Publisher ist ein recognition.Sink, der Änderungen der Anwesenheit veröffentlicht
type Publisher struct {
	client     MessagePublisher
	topic      string
	resetAfter time.Duration
	now        func() time.Time

	updates chan Presence

	mu         sync.Mutex
	last       Presence
	lastUpdate time.Time
}

// NewPublisher erstellt einen Publisher für das Basistopic topic
func NewPublisher(client MessagePublisher, topic string, resetAfter time.Duration) *Publisher {
	if resetAfter <= 0 {
		resetAfter = DefaultResetAfter
	}
	return &Publisher{
		client:     client,
		topic:      topic,
		resetAfter: resetAfter,
		now:        time.Now,
		updates:    make(chan Presence, 16),
		last:       Presence{Names: []string{}},
	}
}

// Publish implementiert recognition.Sink; nur Änderungen werden weitergegeben
func (p *Publisher) Publish(result recognition.CycleResult) {
	next := Presence{Faces: len(result.Faces), Names: []string{}}
	seen := make(map[string]bool)
	for _, f := range result.Faces {
		if !f.Matched {
			next.Unknown++
			continue
		}
		next.Matched++
		if !seen[f.IdentityName] {
			seen[f.IdentityName] = true
			next.Names = append(next.Names, f.IdentityName)
		}
	}
	sort.Strings(next.Names)
	p.update(next)
}

func (p *Publisher) update(next Presence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastUpdate = p.now()
	if p.last.equal(next) {
		return
	}
	// last folgt nur dem, was tatsächlich eingereiht wurde
	select {
	case p.updates <- next:
		p.last = next
	default:
		log.Debug("Presence update dropped, queue full")
	}
}

// Run veröffentlicht Änderungen und setzt die Anwesenheit nach resetAfter zurück
func (p *Publisher) Run(ctx context.Context) {
	check := p.resetAfter / 6
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case presence := <-p.updates:
			p.send(presence)
		case <-ticker.C:
			p.checkAndReset()
		}
	}
}

// checkAndReset fällt auf 0 zurück, wenn zu lange kein Zyklus kam (z.B. Loop gestoppt)
func (p *Publisher) checkAndReset() {
	p.mu.Lock()
	stale := p.last.Faces > 0 && p.now().Sub(p.lastUpdate) > p.resetAfter
	p.mu.Unlock()
	if stale {
		log.Debug("Resetting presence, no recent cycles")
		p.update(Presence{Names: []string{}})
	}
}

// Current gibt den zuletzt berechneten Zustand zurück
func (p *Publisher) Current() Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Republish sendet den aktuellen Zustand erneut, z.B. nach einem Reconnect
func (p *Publisher) Republish() {
	p.send(p.Current())
}

func (p *Publisher) send(presence Presence) {
	if !p.client.IsConnected() {
		return
	}
	if err := p.client.PublishRetain(PresenceTopic(p.topic), presence); err != nil {
		log.WithError(err).Warn("Failed to publish presence")
	}
}
