package models

import (
	"encoding/json"
	"math"
	"time"

	"gorm.io/datatypes"
)

// Embedding is the fixed-length face vector produced by the model service
type Embedding []float32

// Clone returns an independent copy of the embedding
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Identity is a registered person in the gallery.
// JSON tags define the persisted gallery layout.
type Identity struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Embedding        Embedding  `json:"descriptor"`         // plain numeric array
	ImageURL         string     `json:"imageUrl"`           // URI or inline data: URI
	RegisteredAt     time.Time  `json:"registeredAt"`       // ISO-8601
	LastSeen         *time.Time `json:"lastSeen,omitempty"` // ISO-8601
	RecognitionCount int        `json:"recognitionCount"`
}

// Clone returns a deep copy of the identity
func (i Identity) Clone() Identity {
	out := i
	out.Embedding = i.Embedding.Clone()
	if i.LastSeen != nil {
		ls := *i.LastSeen
		out.LastSeen = &ls
	}
	return out
}

// BoundingBox is a face rectangle in pixel space of the source image
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is a single face found in one frame or still image
type Detection struct {
	Box       BoundingBox `json:"box"`
	Embedding Embedding   `json:"-"`
	Score     float64     `json:"score,omitempty"` // detector confidence (0-1) if the provider reports one
}

// Frame is one encoded image captured from the camera or uploaded by a user
type Frame struct {
	Data       []byte    // JPEG encoded image
	Width      int       // pixel width
	Height     int       // pixel height
	CapturedAt time.Time // capture time
}

// MatchResult is the outcome of comparing one detection against the gallery.
// Confidence is set if and only if Identity is set; use Matched and Unknown
// to construct values.
type MatchResult struct {
	Identity   *Identity `json:"identity,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Distance   float64   `json:"distance"`
}

// Matched builds a result referencing an identity
func Matched(identity Identity, confidence, distance float64) *MatchResult {
	return &MatchResult{
		Identity:   &identity,
		Confidence: &confidence,
		Distance:   distance,
	}
}

// Unknown builds a result for a face without a gallery match
func Unknown(distance float64) *MatchResult {
	return &MatchResult{Distance: distance}
}

// IsMatch reports whether the result references an identity
func (r *MatchResult) IsMatch() bool {
	return r != nil && r.Identity != nil
}

// MarshalJSON writes a non-finite distance (empty gallery) as null
func (r MatchResult) MarshalJSON() ([]byte, error) {
	type plain struct {
		Identity   *Identity `json:"identity,omitempty"`
		Confidence *float64  `json:"confidence,omitempty"`
		Distance   *float64  `json:"distance"`
	}
	out := plain{Identity: r.Identity, Confidence: r.Confidence}
	if !math.IsInf(r.Distance, 0) && !math.IsNaN(r.Distance) {
		d := r.Distance
		out.Distance = &d
	}
	return json.Marshal(out)
}

// RecognitionEvent is a logged sighting of a registered identity
type RecognitionEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	IdentityID   string    `gorm:"index;not null" json:"userId"`
	IdentityName string    `json:"userName"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
	Confidence   float64   `json:"confidence"`
	Location     string    `gorm:"index" json:"location"`
}

// KVEntry is one row of the key-value gallery store
type KVEntry struct {
	Key       string         `gorm:"primaryKey"`
	Value     datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time
}

// Statistics summarises recognition activity for the dashboard
type Statistics struct {
	TotalUsers        int       `json:"totalUsers"`
	TotalRecognitions int64     `json:"totalRecognitions"`
	AverageConfidence float64   `json:"averageConfidence"`
	ActiveToday       int64     `json:"activeToday"`
	LatestRecognition time.Time `json:"latestRecognition,omitempty"`
}
