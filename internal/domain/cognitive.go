package domain

import (
	"time"

	"github.com/google/uuid"
)

type IntentType string

const (
	IntentQuestion           IntentType = "QUESTION"
	IntentTeaching           IntentType = "TEACHING"
	IntentCodeRequest        IntentType = "CODE_REQUEST"
	IntentSearchRequest      IntentType = "SEARCH_REQUEST"
	IntentValidationResponse IntentType = "VALIDATION_RESPONSE"
	IntentUnknown            IntentType = "UNKNOWN"
)

// Intent is the classifier's guess about a user turn. Subject is trusted as
// a lookup key; Relation and Object only as a candidate triple.
type Intent struct {
	Type          IntentType `json:"type"`
	Subject       string     `json:"subject"`
	Relation      string     `json:"relation,omitempty"`
	Object        string     `json:"object,omitempty"`
	Confidence    float64    `json:"confidence"`
	OriginalInput string     `json:"original_input"`
}

type CognitiveMode string

const (
	ModeAnswer        CognitiveMode = "ANSWER"
	ModeInvestigation CognitiveMode = "INVESTIGATION"
	ModeValidation    CognitiveMode = "VALIDATION"
	ModeLearning      CognitiveMode = "LEARNING"
	ModeCodeAnalysis  CognitiveMode = "CODE_ANALYSIS"
)

func ValidCognitiveMode(m string) bool {
	switch CognitiveMode(m) {
	case ModeAnswer, ModeInvestigation, ModeValidation, ModeLearning, ModeCodeAnalysis:
		return true
	}
	return false
}

func AllModes() []CognitiveMode {
	return []CognitiveMode{ModeAnswer, ModeInvestigation, ModeValidation, ModeLearning, ModeCodeAnalysis}
}

type InsightSeverity string

const (
	SeverityInfo    InsightSeverity = "INFO"
	SeverityWarning InsightSeverity = "WARNING"
)

// CodeInsight is a non-epistemic annotation about a code snippet. It never
// becomes a Fact.
type CodeInsight struct {
	ID          uuid.UUID       `json:"id"`
	Language    string          `json:"language"`
	Complexity  int             `json:"complexity"`
	Context     string          `json:"context"`
	Observation string          `json:"observation"`
	Issues      []string        `json:"issues,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Severity    InsightSeverity `json:"severity"`
	CodeSnippet string          `json:"code_snippet"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SearchResult is what the web-search collaborator hands back.
type SearchResult struct {
	Query       string    `json:"query"`
	Success     bool      `json:"success"`
	Summary     string    `json:"summary,omitempty"`
	Definition  string    `json:"definition,omitempty"`
	Title       string    `json:"title,omitempty"`
	SourceName  string    `json:"source_name,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	RelatedInfo []string  `json:"related_info,omitempty"`
	Error       string    `json:"error,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// InvestigationResult holds unpersisted candidates gathered externally.
type InvestigationResult struct {
	Query          string          `json:"query"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	RawText        string          `json:"raw_text,omitempty"`
	SourceName     string          `json:"source_name"`
	SourceURL      string          `json:"source_url,omitempty"`
	CandidateFacts []CandidateFact `json:"candidate_facts"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Response is what the engine hands the presentation layer for one turn.
type Response struct {
	Text           string               `json:"text"`
	Mode           CognitiveMode        `json:"mode"`
	Success        bool                 `json:"success"`
	Confidence     float64              `json:"confidence"`
	RequiresAction bool                 `json:"requires_action"`
	SuggestedMode  *CognitiveMode       `json:"suggested_mode,omitempty"`
	Facts          []Fact               `json:"facts,omitempty"`
	CandidateFacts []CandidateFact      `json:"candidate_facts,omitempty"`
	CodeInsight    *CodeInsight         `json:"code_insight,omitempty"`
	Investigation  *InvestigationResult `json:"investigation,omitempty"`
	SessionID      *uuid.UUID           `json:"session_id,omitempty"`
	Intent         *Intent              `json:"intent,omitempty"`
}
