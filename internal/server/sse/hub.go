package sse

import (
	"context"
	"encoding/json"
	"sync"

	"facegate/internal/core/models"
	"facegate/internal/core/recognition"

	log "github.com/sirupsen/logrus"
)

// Ereignisnamen im SSE-Strom
const (
	EventCycle      = "cycle"
	EventIdentity   = "identity"
	EventLoopStatus = "status"
)

// Message ist ein einzelnes SSE-Ereignis
type Message struct {
	Event string
	Data  []byte
}

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan Message

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan Message

	// Registrierungsanfragen von Clients
	register chan Client

	// Abmeldeanfragen von Clients
	unregister chan Client

	// Wird geschlossen, sobald Run endet
	done chan struct{}

	// Mutex zum Schutz des simultanen Zugriffs auf die Clients-Map
	mu sync.Mutex
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// Run startet die Verarbeitungsschleife des Hubs, bis ctx beendet wird.
// Dies sollte in einer separaten Goroutine ausgeführt werden.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started and running")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Client-Kanal ist voll, Client wird entfernt
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register registriert einen neuen Client am Hub
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
		// Hub beendet, Stream sofort schließen
		close(client)
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount gibt die Anzahl verbundener Clients zurück
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(event string, data []byte) {
	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- Message{Event: event, Data: data}:
	default:
		log.Debug("SSE broadcast channel full, message dropped")
	}
}

// BroadcastJSON serialisiert v und sendet es als Ereignis
func (h *Hub) BroadcastJSON(event string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Failed to marshal %s event for SSE: %v", event, err)
		return
	}
	h.Broadcast(event, data)
}

// Publish implementiert recognition.Sink
func (h *Hub) Publish(result recognition.CycleResult) {
	h.BroadcastJSON(EventCycle, result)
}

// BroadcastIdentity meldet eine neu registrierte Identität ohne Einbettung
func (h *Hub) BroadcastIdentity(identity models.Identity) {
	h.BroadcastJSON(EventIdentity, map[string]interface{}{
		"id":           identity.ID,
		"name":         identity.Name,
		"registeredAt": identity.RegisteredAt,
	})
}

// BroadcastStatus meldet einen Zustandswechsel der Erkennungsschleife
func (h *Hub) BroadcastStatus(status recognition.Status) {
	h.BroadcastJSON(EventLoopStatus, status)
}
