// Package recognition runs the periodic capture, detect and match cycle over a
// live camera stream.
//
// Cycles never overlap. A tick that fires while the previous cycle is still in
// flight is skipped, not queued. Once Stop returns, the camera stream has been
// released and no further results reach the renderer or the sinks.
package recognition

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"facegate/internal/core/gallery"
	"facegate/internal/core/matcher"
	"facegate/internal/core/models"
	"facegate/internal/integrations/facemodel"

	log "github.com/sirupsen/logrus"
)

// DefaultInterval between two cycles
const DefaultInterval = 100 * time.Millisecond

// Options configures a Loop
type Options struct {
	Interval       time.Duration
	Threshold      float64
	MaxFaces       int // 0 means unlimited
	ShowConfidence bool
	Width          int
	Height         int
	Renderer       Renderer // optional
	Sinks          []Sink
	Now            func() time.Time
}

// session holds the resources of one Running period
type session struct {
	cancel   context.CancelFunc
	stream   Stream
	wg       sync.WaitGroup // scheduler and cycle goroutines
	inFlight atomic.Bool
	done     chan struct{} // closed after the stream is released
}

// Loop is the recognition state machine
type Loop struct {
	model   facemodel.Service
	camera  Camera
	gallery *gallery.Gallery
	opts    Options

	threshold      atomic.Uint64 // math.Float64bits
	showConfidence atomic.Bool
	maxFaces       atomic.Int64

	mu      sync.Mutex
	state   State
	gen     uint64 // bumped by every Start attempt and Stop
	lastErr error
	current *session
	idle    chan struct{} // closed while no stream is held or pending

	cyclesRun    atomic.Uint64
	cyclesFailed atomic.Uint64
	ticksSkipped atomic.Uint64
	lastCycle    atomic.Pointer[time.Time]
	latest       atomic.Pointer[CycleResult]
}

// New creates a stopped Loop
func New(model facemodel.Service, camera Camera, g *gallery.Gallery, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = matcher.DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	idle := make(chan struct{})
	close(idle)
	l := &Loop{
		model:   model,
		camera:  camera,
		gallery: g,
		opts:    opts,
		state:   StateStopped,
		idle:    idle,
	}
	l.SetThreshold(opts.Threshold)
	l.SetShowConfidence(opts.ShowConfidence)
	l.SetMaxFaces(opts.MaxFaces)
	return l
}

// SetThreshold changes the match threshold for subsequent cycles
func (l *Loop) SetThreshold(t float64) {
	if t <= 0 {
		return
	}
	l.threshold.Store(math.Float64bits(t))
}

// Threshold returns the current match threshold
func (l *Loop) Threshold() float64 {
	return math.Float64frombits(l.threshold.Load())
}

// SetShowConfidence toggles confidence values in face labels
func (l *Loop) SetShowConfidence(show bool) {
	l.showConfidence.Store(show)
}

// SetMaxFaces caps the faces processed per frame, 0 for no cap
func (l *Loop) SetMaxFaces(n int) {
	if n < 0 {
		n = 0
	}
	l.maxFaces.Store(int64(n))
}

// State returns the current state
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start loads the models, acquires the camera and begins scheduling cycles.
// It is a no-op while the loop is Starting or Running. A Start right after
// Stop waits until the previous stream has been released. ctx bounds only the
// start-up work; the running loop lives until Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateRunning || l.state == StateStarting {
		l.mu.Unlock()
		return nil
	}
	l.gen++
	gen := l.gen
	l.state = StateStarting
	l.lastErr = nil
	prev := l.idle
	done := make(chan struct{})
	l.idle = done
	l.mu.Unlock()

	select {
	case <-prev:
	case <-ctx.Done():
		go func() {
			<-prev
			close(done)
		}()
		return l.fail(gen, ctx.Err())
	}
	if l.superseded(gen) {
		close(done)
		return models.ErrStartAborted
	}

	log.WithField("provider", l.model.Name()).Info("Starting recognition loop")

	if err := l.model.LoadModels(ctx); err != nil {
		close(done)
		return l.fail(gen, fmt.Errorf("%w: %v", models.ErrModelLoad, err))
	}

	stream, err := l.camera.Acquire(ctx, Constraints{Width: l.opts.Width, Height: l.opts.Height})
	if err != nil {
		close(done)
		return l.fail(gen, fmt.Errorf("%w: %v", models.ErrCameraAccess, err))
	}

	l.mu.Lock()
	if l.gen != gen {
		// stopped while starting
		l.mu.Unlock()
		if err := stream.Release(); err != nil {
			log.WithError(err).Warn("Failed to release camera after aborted start")
		}
		close(done)
		return models.ErrStartAborted
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, stream: stream, done: done}
	l.current = s
	l.state = StateRunning
	s.wg.Add(1)
	go l.schedule(runCtx, s)
	l.mu.Unlock()

	log.WithFields(log.Fields{
		"interval":  l.opts.Interval,
		"threshold": l.Threshold(),
	}).Info("Recognition loop running")
	return nil
}

func (l *Loop) superseded(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen != gen
}

// fail moves a start attempt into Error unless it was superseded
func (l *Loop) fail(gen uint64, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return models.ErrStartAborted
	}
	l.state = StateError
	l.lastErr = err
	log.WithError(err).WithField("reason", models.ReasonCode(err)).Error("Recognition loop failed to start")
	return err
}

// Stop cancels scheduling, waits for an in-flight cycle and releases the
// camera. Stopping a stopped loop is a no-op; stopping from Error clears it.
// Stop during start-up returns once the aborted Start has released whatever
// it acquired.
func (l *Loop) Stop() error {
	l.mu.Lock()
	wait := l.idle
	switch l.state {
	case StateStopped, StateError:
		l.state = StateStopped
		l.mu.Unlock()
		<-wait
		return nil
	}
	l.gen++
	l.state = StateStopped
	s := l.current
	l.current = nil
	l.mu.Unlock()

	if s == nil {
		log.Info("Recognition loop stopped during start-up")
		<-wait
		return nil
	}

	s.cancel()
	s.wg.Wait()
	err := s.stream.Release()
	close(s.done)
	if err != nil {
		log.WithError(err).Warn("Failed to release camera")
		return fmt.Errorf("failed to release camera: %w", err)
	}
	log.Info("Recognition loop stopped")
	return nil
}

// Status returns state, last error reason and counters
func (l *Loop) Status() Status {
	l.mu.Lock()
	st := Status{State: l.state}
	if l.state == StateError && l.lastErr != nil {
		st.Reason = models.ReasonCode(l.lastErr)
	}
	l.mu.Unlock()

	st.CyclesRun = l.cyclesRun.Load()
	st.CyclesFailed = l.cyclesFailed.Load()
	st.TicksSkipped = l.ticksSkipped.Load()
	st.LastCycle = l.lastCycle.Load()
	st.Threshold = l.Threshold()
	st.ShowConfidence = l.showConfidence.Load()
	st.Gallery = l.gallery.Len()
	return st
}

// Latest returns the most recent cycle result
func (l *Loop) Latest() (CycleResult, bool) {
	r := l.latest.Load()
	if r == nil {
		return CycleResult{}, false
	}
	return *r, true
}

func (l *Loop) schedule(ctx context.Context, s *session) {
	defer s.wg.Done()
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.inFlight.CompareAndSwap(false, true) {
				l.ticksSkipped.Add(1)
				log.Trace("Previous cycle still running, skipping tick")
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.inFlight.Store(false)
				l.runCycle(ctx, s.stream)
			}()
		}
	}
}

// runCycle executes one capture, detect, match and emit pass
func (l *Loop) runCycle(ctx context.Context, stream Stream) {
	result, frame, err := l.process(ctx, stream)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.cyclesFailed.Add(1)
		log.WithError(err).Warn("Recognition cycle failed")
		return
	}
	if ctx.Err() != nil {
		return
	}

	if l.opts.Renderer != nil {
		if err := l.opts.Renderer.Render(frame, result.Faces); err != nil {
			log.WithError(err).Debug("Failed to render overlay")
		}
	}

	l.latest.Store(&result)
	ts := result.Timestamp
	l.lastCycle.Store(&ts)
	l.cyclesRun.Add(1)

	for _, sink := range l.opts.Sinks {
		sink.Publish(result)
	}
}

func (l *Loop) process(ctx context.Context, stream Stream) (CycleResult, models.Frame, error) {
	frame, err := stream.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{}, frame, ctx.Err()
		}
		return CycleResult{}, frame, fmt.Errorf("capture: %w: %v", models.ErrFrameProcessing, err)
	}

	detections, err := l.model.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{}, frame, ctx.Err()
		}
		return CycleResult{}, frame, fmt.Errorf("detect: %w: %v", models.ErrFrameProcessing, err)
	}
	if limit := int(l.maxFaces.Load()); limit > 0 && len(detections) > limit {
		detections = detections[:limit]
	}

	m := matcher.Matcher{Threshold: l.Threshold(), Distance: l.model.Distance}
	snapshot := l.gallery.Snapshot()
	show := l.showConfidence.Load()

	faces := make([]FaceResult, len(detections))
	for i, d := range detections {
		faces[i] = newFaceResult(d, m.Classify(d.Embedding, snapshot), show)
	}

	ts := frame.CapturedAt
	if ts.IsZero() {
		ts = l.opts.Now()
	}
	return CycleResult{
		Timestamp: ts,
		Width:     frame.Width,
		Height:    frame.Height,
		Faces:     faces,
	}, frame, nil
}
