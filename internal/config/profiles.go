package config

import (
	"fmt"
	"strings"
)

// EmbeddingFamily selects the calibrated threshold profile. Distance scales
// differ between the ada generation and the v3 generation of embedding
// models, so the same numeric threshold cannot serve both.
type EmbeddingFamily string

const (
	FamilyAda EmbeddingFamily = "ada"
	FamilyV3  EmbeddingFamily = "v3"
)

// Thresholds holds the distance and score cutoffs resolved for one family.
type Thresholds struct {
	ChunkScoreLimit            float64
	SourceDistanceLimit        float64
	SourceDistanceNeighbor     float64
	HallucinationDistanceLimit float64
}

var profiles = map[EmbeddingFamily]Thresholds{
	FamilyAda: {
		ChunkScoreLimit:            0.75,
		SourceDistanceLimit:        0.25,
		SourceDistanceNeighbor:     0.05,
		HallucinationDistanceLimit: 0.40,
	},
	FamilyV3: {
		ChunkScoreLimit:            0.40,
		SourceDistanceLimit:        0.15,
		SourceDistanceNeighbor:     0.05,
		HallucinationDistanceLimit: 0.35,
	},
}

// ProfileFor returns the calibrated thresholds for a family.
func ProfileFor(f EmbeddingFamily) (Thresholds, error) {
	prof, ok := profiles[f]
	if !ok {
		return Thresholds{}, fmt.Errorf("unknown embedding family %q", f)
	}
	return prof, nil
}

// FamilyFromModel guesses the family from a model name. Used only when the
// family is not set explicitly.
func FamilyFromModel(model string) EmbeddingFamily {
	if strings.Contains(strings.ToLower(model), "ada") {
		return FamilyAda
	}
	return FamilyV3
}
