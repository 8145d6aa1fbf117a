package domain

import (
	"context"

	"github.com/google/uuid"
)

// FactStore persists facts, their sources and their history.
// Fact rows are never deleted.
type FactStore interface {
	CreateFact(ctx context.Context, f *Fact) error
	GetFact(ctx context.Context, id uuid.UUID) (*Fact, error)
	// GetFactForUpdate locks the row for the rest of the enclosing transaction.
	GetFactForUpdate(ctx context.Context, id uuid.UUID) (*Fact, error)
	// UpdateFact writes every mutable column. It fails with a version
	// conflict unless the stored version equals expectedVersion.
	UpdateFact(ctx context.Context, f *Fact, expectedVersion int) error
	ListFacts(ctx context.Context, filter FactFilter) ([]Fact, error)
	// FindTrusted matches subject case-insensitively and orders by
	// confidence descending.
	FindTrusted(ctx context.Context, subject string, threshold float64) ([]Fact, error)
	HasTrusted(ctx context.Context, subject string, threshold float64) (bool, error)

	AddSource(ctx context.Context, s *FactSource) error
	ListSources(ctx context.Context, factID uuid.UUID) ([]FactSource, error)

	// AppendHistory inserts one immutable row; (fact_id, version) is unique.
	AppendHistory(ctx context.Context, h *FactHistory) error
	ListHistory(ctx context.Context, factID uuid.UUID) ([]FactHistory, error)
}

type ConflictStore interface {
	CreateConflict(ctx context.Context, c *FactConflict) error
	GetConflict(ctx context.Context, id uuid.UUID) (*FactConflict, error)
	GetConflictForUpdate(ctx context.Context, id uuid.UUID) (*FactConflict, error)
	// ConflictExists checks for any record, resolved or not, between a and b
	// in either order.
	ConflictExists(ctx context.Context, a, b uuid.UUID) (bool, error)
	UpdateConflict(ctx context.Context, c *FactConflict) error
	ListConflicts(ctx context.Context, unresolvedOnly bool) ([]FactConflict, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *ValidationSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*ValidationSession, error)
	GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*ValidationSession, error)
	UpdateSession(ctx context.Context, s *ValidationSession) error
	ListSessions(ctx context.Context, userID *string) ([]ValidationSession, error)
}

// Ledger is the transactional store behind the engine.
type Ledger interface {
	FactStore
	ConflictStore
	SessionStore
	// InTx runs fn inside one transaction. fn's error rolls everything back.
	// Calling InTx on a ledger already bound to a transaction runs fn inline.
	InTx(ctx context.Context, fn func(tx Ledger) error) error
}

// IntentDetector classifies a raw user turn.
type IntentDetector interface {
	Detect(input string) Intent
}

// WebSearcher fetches raw text about a query from outside sources.
type WebSearcher interface {
	Search(ctx context.Context, query string) (*SearchResult, error)
}

// Investigator turns an external search into unpersisted candidates.
type Investigator interface {
	Investigate(ctx context.Context, query string) (*InvestigationResult, error)
}

// CodeAnalyzer annotates code snippets. It never produces facts.
type CodeAnalyzer interface {
	Analyze(code string) *CodeInsight
}
