// Package matcher decides which registered identity, if any, a face embedding belongs to.
//
// The confidence reported for a match is max(0, (1-distance)*100). It is a
// display heuristic, not a calibrated probability.
package matcher

import (
	"math"

	"facegate/internal/core/models"
)

// DefaultThreshold is the maximum Euclidean distance accepted as the same person
const DefaultThreshold = 0.6

// DistanceFunc measures how far apart two embeddings are
type DistanceFunc func(a, b models.Embedding) float64

// Euclidean returns the Euclidean distance between a and b.
// Vectors of different length are infinitely far apart.
func Euclidean(a, b models.Embedding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence converts a distance into a 0-100 score
func Confidence(distance float64) float64 {
	return math.Max(0, (1-distance)*100)
}

// Matcher holds the threshold and distance function used for matching
type Matcher struct {
	Threshold float64
	Distance  DistanceFunc
}

// New creates a Matcher using Euclidean distance
func New(threshold float64) *Matcher {
	return &Matcher{Threshold: threshold, Distance: Euclidean}
}

// Nearest returns the index and distance of the closest gallery entry.
// Ties resolve to the first entry in gallery order. NaN distances are skipped;
// ok is false when no entry has a comparable distance.
func (m *Matcher) Nearest(query models.Embedding, gallery []models.Identity) (index int, distance float64, ok bool) {
	dist := m.Distance
	if dist == nil {
		dist = Euclidean
	}
	index = -1
	distance = math.Inf(1)
	for i := range gallery {
		d := dist(query, gallery[i].Embedding)
		if math.IsNaN(d) {
			continue
		}
		if index == -1 || d < distance {
			index, distance = i, d
		}
	}
	return index, distance, index >= 0
}

// Match returns the matched identity, or nil when the nearest entry is not
// strictly closer than the threshold or the gallery is empty.
func (m *Matcher) Match(query models.Embedding, gallery []models.Identity) *models.MatchResult {
	i, d, ok := m.Nearest(query, gallery)
	if !ok || !(d < m.Threshold) {
		return nil
	}
	return models.Matched(gallery[i].Clone(), Confidence(d), d)
}

// Classify always returns a result. Unknown faces carry the nearest distance,
// or +Inf when the gallery is empty.
func (m *Matcher) Classify(query models.Embedding, gallery []models.Identity) *models.MatchResult {
	i, d, ok := m.Nearest(query, gallery)
	if ok && d < m.Threshold {
		return models.Matched(gallery[i].Clone(), Confidence(d), d)
	}
	return models.Unknown(d)
}

// Match is the Euclidean form of Matcher.Match
func Match(query models.Embedding, gallery []models.Identity, threshold float64) *models.MatchResult {
	return New(threshold).Match(query, gallery)
}
