package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// AssertionThreshold is the minimum confidence a validated fact needs
	// before it may be asserted as an answer.
	AssertionThreshold = 0.85
	// DefaultValidationConfidence is applied when a reviewer approves a
	// candidate without choosing a confidence.
	DefaultValidationConfidence = 0.90
)

// Column widths of the ledger schema, in characters. Both ledgers enforce
// them through the services so the backends accept the same inputs.
const (
	MaxSubjectLen          = 500
	MaxRelationLen         = 100
	MaxObjectLen           = 500
	MaxActorLen            = 100
	MaxReasonLen           = 1000
	MaxSourceIdentifierLen = 500
	MaxSourceURLLen        = 2000
	MaxRawContentLen       = 5000
	MaxResolutionNotesLen  = 2000
	MaxSessionQueryLen     = 200
)

var (
	ErrConfidenceOutOfRange = errors.New("confidence must be in [0, 1)")
	ErrFieldTooLong         = errors.New("field too long")
)

// CheckLength fails with ErrFieldTooLong when value has more than limit runes.
func CheckLength(field, value string, limit int) error {
	if n := utf8.RuneCountInString(value); n > limit {
		return fmt.Errorf("%w: %s has %d characters, limit is %d", ErrFieldTooLong, field, n, limit)
	}
	return nil
}

// CheckConfidence reports whether c is a legal fact confidence.
// NaN is rejected along with anything outside [0, 1).
func CheckConfidence(c float64) error {
	if !(c >= 0 && c < 1) {
		return fmt.Errorf("%w: got %v", ErrConfidenceOutOfRange, c)
	}
	return nil
}

type FactStatus string

const (
	FactStatusCandidate  FactStatus = "CANDIDATE"
	FactStatusValidated  FactStatus = "VALIDATED"
	FactStatusRejected   FactStatus = "REJECTED"
	FactStatusDeprecated FactStatus = "DEPRECATED"
)

func ValidFactStatus(s string) bool {
	switch FactStatus(s) {
	case FactStatusCandidate, FactStatusValidated, FactStatusRejected, FactStatusDeprecated:
		return true
	}
	return false
}

type SourceType string

const (
	SourceUser          SourceType = "USER"
	SourceWeb           SourceType = "WEB"
	SourceDocumentation SourceType = "DOCUMENTATION"
	SourceForum         SourceType = "FORUM"
	SourceCodebase      SourceType = "CODEBASE"
	SourceAcademic      SourceType = "ACADEMIC"
)

func ValidSourceType(s string) bool {
	switch SourceType(s) {
	case SourceUser, SourceWeb, SourceDocumentation, SourceForum, SourceCodebase, SourceAcademic:
		return true
	}
	return false
}

// TrustWeight is the advisory reliability of a source type. It is display
// metadata only and never promotes a fact's status or confidence.
func (t SourceType) TrustWeight() float64 {
	switch t {
	case SourceUser:
		return 0.95
	case SourceAcademic:
		return 0.85
	case SourceDocumentation:
		return 0.80
	case SourceCodebase:
		return 0.60
	case SourceWeb:
		return 0.50
	case SourceForum:
		return 0.40
	default:
		return 0.50
	}
}

// Triple is the Subject-Relation-Object content of a claim.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s", t.Subject, t.Relation, t.Object)
}

// Empty reports whether any part of the triple is blank.
func (t Triple) Empty() bool {
	return strings.TrimSpace(t.Subject) == "" ||
		strings.TrimSpace(t.Relation) == "" ||
		strings.TrimSpace(t.Object) == ""
}

// CheckLengths applies the schema widths to each part.
func (t Triple) CheckLengths() error {
	if err := CheckLength("subject", t.Subject, MaxSubjectLen); err != nil {
		return err
	}
	if err := CheckLength("relation", t.Relation, MaxRelationLen); err != nil {
		return err
	}
	return CheckLength("object", t.Object, MaxObjectLen)
}

type Fact struct {
	ID                uuid.UUID    `json:"id"`
	Subject           string       `json:"subject"`
	Relation          string       `json:"relation"`
	Object            string       `json:"object"`
	Confidence        float64      `json:"confidence"`
	Status            FactStatus   `json:"status"`
	Version           int          `json:"version"`
	ApprovedBy        *string      `json:"approved_by,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	ValidatedAt       *time.Time   `json:"validated_at,omitempty"`
	DeprecatedAt      *time.Time   `json:"deprecated_at,omitempty"`
	DeprecationReason *string      `json:"deprecation_reason,omitempty"`
	Sources           []FactSource `json:"sources,omitempty"`
}

func (f *Fact) Triple() Triple {
	return Triple{Subject: f.Subject, Relation: f.Relation, Object: f.Object}
}

// Trusted reports whether the fact may be asserted.
func (f *Fact) Trusted() bool {
	return f.Status == FactStatusValidated && f.Confidence >= AssertionThreshold
}

// Snapshot captures the history-relevant fields of the fact.
func (f *Fact) Snapshot() FactSnapshot {
	return FactSnapshot{
		Subject:    f.Subject,
		Relation:   f.Relation,
		Object:     f.Object,
		Confidence: f.Confidence,
		Status:     f.Status,
	}
}

// PrimarySource returns the first source attached to the fact, if any.
func (f *Fact) PrimarySource() *FactSource {
	if len(f.Sources) == 0 {
		return nil
	}
	return &f.Sources[0]
}

type FactSource struct {
	ID          uuid.UUID  `json:"id"`
	FactID      uuid.UUID  `json:"fact_id"`
	Type        SourceType `json:"type"`
	Identifier  string     `json:"identifier"`
	URL         *string    `json:"url,omitempty"`
	TrustWeight float64    `json:"trust_weight"`
	CollectedAt time.Time  `json:"collected_at"`
	RawContent  *string    `json:"raw_content,omitempty"`
}

// SourceRef describes where a not-yet-persisted candidate came from.
type SourceRef struct {
	Type       SourceType `json:"type"`
	Identifier string     `json:"identifier"`
	URL        string     `json:"url,omitempty"`
	RawContent string     `json:"raw_content,omitempty"`
}

// CandidateFact is an unpersisted claim proposed by a collaborator
// (investigation, teaching). It only enters the ledger through review.
type CandidateFact struct {
	Triple
	Source SourceRef `json:"source"`
}

type ChangeType string

const (
	ChangeCreated           ChangeType = "CREATED"
	ChangeValidated         ChangeType = "VALIDATED"
	ChangeRejected          ChangeType = "REJECTED"
	ChangeDeprecated        ChangeType = "DEPRECATED"
	ChangeConfidenceUpdated ChangeType = "CONFIDENCE_UPDATED"
	ChangeContentEdited     ChangeType = "CONTENT_EDITED"
)

type FactSnapshot struct {
	Subject    string     `json:"subject"`
	Relation   string     `json:"relation"`
	Object     string     `json:"object"`
	Confidence float64    `json:"confidence"`
	Status     FactStatus `json:"status"`
}

// FactHistory is one immutable row of the audit log. Version is the fact's
// version after the change was applied. Previous is nil for CREATED.
type FactHistory struct {
	ID         uuid.UUID     `json:"id"`
	FactID     uuid.UUID     `json:"fact_id"`
	Version    int           `json:"version"`
	Previous   *FactSnapshot `json:"previous,omitempty"`
	New        FactSnapshot  `json:"new"`
	ChangedBy  string        `json:"changed_by"`
	ChangedAt  time.Time     `json:"changed_at"`
	Reason     string        `json:"reason"`
	ChangeType ChangeType    `json:"change_type"`
}

// FactFilter narrows fact listings. Zero values mean "any".
type FactFilter struct {
	Status  *FactStatus
	Subject string
	Limit   int
}
