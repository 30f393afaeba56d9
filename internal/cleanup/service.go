package cleanup

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCheckInterval between two cleanup cycles
const DefaultCheckInterval = 24 * time.Hour

// EventPruner deletes recognition events older than a cutoff
type EventPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service handles the automatic cleanup of old recognition events.
type Service struct {
	events        EventPruner
	retentionDays int
	checkInterval time.Duration
	now           func() time.Time

	stopOnce sync.Once
	stopChan chan struct{} // Channel to signal stopping the background routine
	done     chan struct{}
}

// NewService creates a new cleanup Service. It returns nil if cleanup is disabled.
func NewService(events EventPruner, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if events == nil {
		log.Error("Cannot initialize cleanup service: event repository is nil")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		events:        events,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Run performs an initial cycle and then one per check interval until ctx
// is done or Stop is called.
func (s *Service) Run(ctx context.Context) {
	if s == nil {
		return
	}
	defer close(s.done)
	log.Info("Starting background cleanup routine...")

	s.RunCleanupCycle(ctx)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			log.Debug("Running scheduled cleanup cycle...")
			s.RunCleanupCycle(ctx)
		case <-ctx.Done():
			log.Info("Stopping background cleanup routine.")
			return
		case <-s.stopChan:
			log.Info("Stopping background cleanup routine.")
			return
		}
	}
}

// Stop signals the background routine to stop and waits for it
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

// RunCleanupCycle deletes events older than the retention period
func (s *Service) RunCleanupCycle(ctx context.Context) int64 {
	if s == nil {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Cleanup: failed to delete old recognition events")
		return 0
	}
	if deleted > 0 {
		log.WithFields(log.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Cleanup: deleted old recognition events")
	} else {
		log.Debug("Cleanup: no old recognition events found")
	}
	return deleted
}
