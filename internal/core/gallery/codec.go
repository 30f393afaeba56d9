package gallery

import (
	"encoding/json"
	"fmt"

	"facegate/internal/core/models"
)

// Encode serializes identities in gallery order as a JSON array.
// Embeddings are plain numeric arrays and timestamps ISO-8601 strings.
func Encode(identities []models.Identity) ([]byte, error) {
	if identities == nil {
		identities = []models.Identity{}
	}
	data, err := json.Marshal(identities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gallery: %w", err)
	}
	return data, nil
}

// Decode parses a blob written by Encode
func Decode(blob []byte) ([]models.Identity, error) {
	var identities []models.Identity
	if err := json.Unmarshal(blob, &identities); err != nil {
		return nil, fmt.Errorf("failed to decode gallery: %w", err)
	}
	if err := checkDimensions(identities); err != nil {
		return nil, err
	}
	return identities, nil
}

func checkDimensions(identities []models.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	dim := len(identities[0].Embedding)
	for _, id := range identities[1:] {
		if len(id.Embedding) != dim {
			return fmt.Errorf("identity %s has %d components, gallery has %d: %w",
				id.ID, len(id.Embedding), dim, models.ErrDimensionMismatch)
		}
	}
	return nil
}
