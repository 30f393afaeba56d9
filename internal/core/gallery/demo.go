package gallery

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"facegate/internal/core/models"
)

var (
	demoFirstNames = []string{"John", "Jane", "Michael", "Sarah", "David", "Emily", "Chris", "Lisa", "Robert", "Amy"}
	demoLastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	demoDomains    = []string{"gmail.com", "yahoo.com", "outlook.com", "company.com", "university.edu"}
)

// DemoIdentities generates n identities with random descriptors in [-1, 1).
// They exist to populate dashboards and will essentially never match a real face.
func DemoIdentities(r *rand.Rand, n, dim int, now time.Time) []models.Identity {
	out := make([]models.Identity, 0, n)
	for i := 0; i < n; i++ {
		first := demoFirstNames[r.Intn(len(demoFirstNames))]
		last := demoLastNames[r.Intn(len(demoLastNames))]

		descriptor := make(models.Embedding, dim)
		for j := range descriptor {
			descriptor[j] = r.Float32()*2 - 1
		}

		identity := models.Identity{
			ID:               fmt.Sprintf("user-%d", i+1),
			Name:             first + " " + last,
			Email:            fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), i, demoDomains[r.Intn(len(demoDomains))]),
			Embedding:        descriptor,
			RegisteredAt:     now.Add(-time.Duration(r.Int63n(int64(365 * 24 * time.Hour)))),
			RecognitionCount: r.Intn(100),
		}
		if r.Float64() > 0.3 {
			seen := now.Add(-time.Duration(r.Int63n(int64(30 * 24 * time.Hour))))
			identity.LastSeen = &seen
		}
		out = append(out, identity)
	}
	return out
}
