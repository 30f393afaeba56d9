package recognition

import (
	"context"
	"fmt"
	"math"
	"time"

	"facegate/internal/core/models"
)

// State is the lifecycle state of the recognition loop
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateError    State = "error"
)

// Constraints are the requested capture dimensions
type Constraints struct {
	Width  int
	Height int
}

// Camera opens video streams
type Camera interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired video stream. Release must be safe to call once
// after any number of Capture calls.
type Stream interface {
	Capture(ctx context.Context) (models.Frame, error)
	Release() error
}

// Renderer draws cycle results over the frame they were computed from
type Renderer interface {
	Render(frame models.Frame, faces []FaceResult) error
}

// Sink receives every completed cycle. Publish must not block.
type Sink interface {
	Publish(result CycleResult)
}

// FaceResult is the per-face outcome of one cycle
type FaceResult struct {
	Box          models.BoundingBox `json:"box"`
	Matched      bool               `json:"matched"`
	IdentityID   string             `json:"userId,omitempty"`
	IdentityName string             `json:"userName,omitempty"`
	Confidence   *float64           `json:"confidence,omitempty"`
	Distance     *float64           `json:"distance"` // nil for an empty gallery
	Label        string             `json:"label"`
}

// CycleResult is the ordered list of face results of one frame
type CycleResult struct {
	Timestamp time.Time    `json:"timestamp"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	Faces     []FaceResult `json:"faces"`
}

// Matches returns the faces that matched a registered identity
func (c CycleResult) Matches() []FaceResult {
	var out []FaceResult
	for _, f := range c.Faces {
		if f.Matched {
			out = append(out, f)
		}
	}
	return out
}

// Status is a point-in-time view of the loop
type Status struct {
	State          State      `json:"state"`
	Reason         string     `json:"reason,omitempty"`
	CyclesRun      uint64     `json:"cyclesRun"`
	CyclesFailed   uint64     `json:"cyclesFailed"`
	TicksSkipped   uint64     `json:"ticksSkipped"`
	LastCycle      *time.Time `json:"lastCycle,omitempty"`
	Threshold      float64    `json:"threshold"`
	ShowConfidence bool       `json:"showConfidence"`
	Gallery        int        `json:"gallerySize"`
}

// UnknownLabel is shown for faces without a match
const UnknownLabel = "Unknown"

func newFaceResult(d models.Detection, m *models.MatchResult, showConfidence bool) FaceResult {
	fr := FaceResult{Box: d.Box, Label: UnknownLabel}
	if !math.IsInf(m.Distance, 0) && !math.IsNaN(m.Distance) {
		dist := m.Distance
		fr.Distance = &dist
	}
	if m.IsMatch() {
		conf := *m.Confidence
		fr.Matched = true
		fr.IdentityID = m.Identity.ID
		fr.IdentityName = m.Identity.Name
		fr.Confidence = &conf
		fr.Label = m.Identity.Name
		if showConfidence {
			fr.Label = fmt.Sprintf("%s (%.0f%%)", m.Identity.Name, conf)
		}
	}
	return fr
}
