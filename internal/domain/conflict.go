package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConflictResolution string

const (
	ResolutionKeepFactA     ConflictResolution = "KEEP_FACT_A"
	ResolutionKeepFactB     ConflictResolution = "KEEP_FACT_B"
	ResolutionKeepBoth      ConflictResolution = "KEEP_BOTH"
	ResolutionDeprecateBoth ConflictResolution = "DEPRECATE_BOTH"
	ResolutionCreateNew     ConflictResolution = "CREATE_NEW"
)

func ValidConflictResolution(r string) bool {
	switch ConflictResolution(r) {
	case ResolutionKeepFactA, ResolutionKeepFactB, ResolutionKeepBoth, ResolutionDeprecateBoth, ResolutionCreateNew:
		return true
	}
	return false
}

// UncertaintyPenalty scales both confidences when a reviewer keeps two
// contradicting facts.
const UncertaintyPenalty = 0.85

// FactConflict records two validated facts sharing subject and relation but
// disagreeing on the object. Only a human resolves it.
type FactConflict struct {
	ID                   uuid.UUID           `json:"id"`
	Subject              string              `json:"subject"`
	Relation             string              `json:"relation"`
	FactAID              uuid.UUID           `json:"fact_a_id"`
	FactBID              uuid.UUID           `json:"fact_b_id"`
	ConfidenceDifference float64             `json:"confidence_difference"`
	DetectedAt           time.Time           `json:"detected_at"`
	IsResolved           bool                `json:"is_resolved"`
	ResolvedAt           *time.Time          `json:"resolved_at,omitempty"`
	Resolution           *ConflictResolution `json:"resolution,omitempty"`
	ResolutionNotes      *string             `json:"resolution_notes,omitempty"`

	// Hydrated on reads that need both sides.
	FactA *Fact `json:"fact_a,omitempty"`
	FactB *Fact `json:"fact_b,omitempty"`
}

// Involves reports whether the conflict is between a and b in either order.
func (c *FactConflict) Involves(a, b uuid.UUID) bool {
	return (c.FactAID == a && c.FactBID == b) || (c.FactAID == b && c.FactBID == a)
}
