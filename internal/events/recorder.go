// Package events turns matched faces into recognition events and keeps the
// identities' last-seen time and recognition counter up to date.
package events

import (
	"context"
	"sync/atomic"
	"time"

	"facegate/internal/core/gallery"
	"facegate/internal/core/models"
	"facegate/internal/core/recognition"

	log "github.com/sirupsen/logrus"
)

// DefaultQueueSize is the number of cycle results buffered for the recorder
const DefaultQueueSize = 64

// EventStore persists recognition events
type EventStore interface {
	Save(ctx context.Context, event *models.RecognitionEvent) error
}

// Publisher forwards recorded events, e.g. to MQTT
type Publisher interface {
	PublishRecognition(event models.RecognitionEvent, identity models.Identity) error
}

// Options configures a Recorder
type Options struct {
	Location  string
	Cooldown  time.Duration // minimum time between two events of one identity
	QueueSize int
}

// Recorder is a recognition.Sink that records matched faces
type Recorder struct {
	store     EventStore
	gallery   *gallery.Gallery
	publisher Publisher
	opts      Options

	queue    chan recognition.CycleResult
	lastSeen map[string]time.Time // owned by Run

	recorded atomic.Uint64
	dropped  atomic.Uint64
}

// NewRecorder creates a Recorder. publisher may be nil.
func NewRecorder(store EventStore, g *gallery.Gallery, publisher Publisher, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Recorder{
		store:     store,
		gallery:   g,
		publisher: publisher,
		opts:      opts,
		queue:     make(chan recognition.CycleResult, opts.QueueSize),
		lastSeen:  make(map[string]time.Time),
	}
}

// Publish implements recognition.Sink. Results without matches are ignored
// and a full queue drops the result.
func (r *Recorder) Publish(result recognition.CycleResult) {
	if len(result.Matches()) == 0 {
		return
	}
	select {
	case r.queue <- result:
	default:
		r.dropped.Add(1)
		log.Debug("Recorder queue full, dropping cycle result")
	}
}

// Recorded returns the number of events written
func (r *Recorder) Recorded() uint64 { return r.recorded.Load() }

// Dropped returns the number of cycle results dropped on a full queue
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run processes queued results until ctx is done
func (r *Recorder) Run(ctx context.Context) {
	log.WithFields(log.Fields{"location": r.opts.Location, "cooldown": r.opts.Cooldown}).Info("Recognition recorder started")
	for {
		select {
		case <-ctx.Done():
			log.Info("Recognition recorder stopped")
			return
		case result := <-r.queue:
			r.handle(ctx, result)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, result recognition.CycleResult) {
	for _, face := range result.Matches() {
		if last, ok := r.lastSeen[face.IdentityID]; ok && result.Timestamp.Sub(last) < r.opts.Cooldown {
			continue
		}
		r.lastSeen[face.IdentityID] = result.Timestamp

		var confidence float64
		if face.Confidence != nil {
			confidence = *face.Confidence
		}
		event := models.RecognitionEvent{
			IdentityID:   face.IdentityID,
			IdentityName: face.IdentityName,
			Timestamp:    result.Timestamp,
			Confidence:   confidence,
			Location:     r.opts.Location,
		}
		logger := log.WithFields(log.Fields{"identity": face.IdentityID, "name": face.IdentityName})

		if err := r.store.Save(ctx, &event); err != nil {
			logger.WithError(err).Error("Failed to save recognition event")
			continue
		}

		seen := result.Timestamp
		identity, err := r.gallery.Update(ctx, face.IdentityID, func(i *models.Identity) {
			i.LastSeen = &seen
			i.RecognitionCount++
		})
		if err != nil {
			// the identity may have been removed since the cycle matched it
			logger.WithError(err).Warn("Failed to update identity after recognition")
			continue
		}

		r.recorded.Add(1)
		logger.WithField("confidence", confidence).Info("Identity recognized")

		if r.publisher != nil {
			if err := r.publisher.PublishRecognition(event, identity); err != nil {
				logger.WithError(err).Debug("Failed to publish recognition event")
			}
		}
	}
}
