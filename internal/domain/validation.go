package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationSession is one batch review of candidates by a human.
type ValidationSession struct {
	ID                  uuid.UUID  `json:"id"`
	Query               string     `json:"query"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CandidatesPresented int        `json:"candidates_presented"`
	FactsApproved       int        `json:"facts_approved"`
	FactsRejected       int        `json:"facts_rejected"`
	FactsEdited         int        `json:"facts_edited"`
	WasCompleted        bool       `json:"was_completed"`
	UserID              *string    `json:"user_id,omitempty"`
}

type SessionState string

const (
	SessionOpen      SessionState = "open"
	SessionClosed    SessionState = "closed"
	SessionAbandoned SessionState = "abandoned"
)

func (s *ValidationSession) State() SessionState {
	switch {
	case s.CompletedAt == nil:
		return SessionOpen
	case s.WasCompleted:
		return SessionClosed
	default:
		return SessionAbandoned
	}
}

type DecisionAction string

const (
	DecisionApprove DecisionAction = "APPROVE"
	DecisionReject  DecisionAction = "REJECT"
	DecisionEdit    DecisionAction = "EDIT"
)

func ValidDecisionAction(a string) bool {
	switch DecisionAction(a) {
	case DecisionApprove, DecisionReject, DecisionEdit:
		return true
	}
	return false
}

// FactDecision is a reviewer's verdict on one candidate. FactID is nil when
// the candidate has not been persisted yet; Candidate then supplies content.
type FactDecision struct {
	FactID         *uuid.UUID     `json:"fact_id,omitempty"`
	Candidate      *CandidateFact `json:"candidate,omitempty"`
	Action         DecisionAction `json:"action"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	EditedSubject  *string        `json:"edited_subject,omitempty"`
	EditedRelation *string        `json:"edited_relation,omitempty"`
	EditedObject   *string        `json:"edited_object,omitempty"`
}

// Label names the decision's target for error reports.
func (d FactDecision) Label() string {
	if d.Candidate != nil && d.Candidate.Subject != "" {
		return d.Candidate.Subject
	}
	if d.FactID != nil {
		return d.FactID.String()
	}
	return "unknown"
}

type DecisionError struct {
	Index   int    `json:"index"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

type ValidationResult struct {
	SessionID   uuid.UUID       `json:"session_id"`
	ProcessedAt time.Time       `json:"processed_at"`
	Approved    []Fact          `json:"approved"`
	Rejected    []Fact          `json:"rejected"`
	Edited      []Fact          `json:"edited"`
	Errors      []DecisionError `json:"errors"`
}

// Summary renders the outcome of a review batch as plain text.
func (r *ValidationResult) Summary() string {
	var b strings.Builder
	b.WriteString("Validation complete\n\n")
	fmt.Fprintf(&b, "Approved: %d\n", len(r.Approved))
	fmt.Fprintf(&b, "Rejected: %d\n", len(r.Rejected))
	fmt.Fprintf(&b, "Edited: %d\n", len(r.Edited))
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\nErrors: %d\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s: %s\n", e.Target, e.Message)
		}
	}
	return b.String()
}

type ValidationStats struct {
	TotalSessions            int     `json:"total_sessions"`
	CompletedSessions        int     `json:"completed_sessions"`
	TotalCandidatesPresented int     `json:"total_candidates_presented"`
	TotalApproved            int     `json:"total_approved"`
	TotalRejected            int     `json:"total_rejected"`
	TotalEdited              int     `json:"total_edited"`
	ApprovalRate             float64 `json:"approval_rate"`
}
