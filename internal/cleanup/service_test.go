package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	if p.err != nil {
		return 0, p.err
	}
	return 3, nil
}

func (p *fakePruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestNewService_Disabled(t *testing.T) {
	assert.Nil(t, NewService(&fakePruner{}, 0, time.Hour))
	assert.Nil(t, NewService(nil, 30, time.Hour))

	// nil service is safe to use
	var s *Service
	s.Run(context.Background())
	s.Stop()
	assert.Zero(t, s.RunCleanupCycle(context.Background()))
}

func TestRunCleanupCycle_Cutoff(t *testing.T) {
	p := &fakePruner{}
	s := NewService(p, 90, time.Hour)
	require.NotNil(t, s)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.Equal(t, int64(3), s.RunCleanupCycle(context.Background()))
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC), p.cutoffs[0])

	p.err = errors.New("locked")
	assert.Zero(t, s.RunCleanupCycle(context.Background()))
}

func TestRun_TicksUntilStopped(t *testing.T) {
	p := &fakePruner{}
	s := NewService(p, 7, 5*time.Millisecond)
	require.NotNil(t, s)

	go s.Run(context.Background())
	require.Eventually(t, func() bool { return p.calls() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	n := p.calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, p.calls())
}

func TestRun_StopsOnContext(t *testing.T) {
	s := NewService(&fakePruner{}, 7, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop on context cancel")
	}
}
