package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValidationService runs human review sessions over candidate facts.
type ValidationService struct {
	ledger domain.Ledger
	facts  *FactService
	logger *zap.Logger

	DefaultConfidence float64
}

func NewValidationService(ledger domain.Ledger, facts *FactService, logger *zap.Logger) *ValidationService {
	return &ValidationService{
		ledger:            ledger,
		facts:             facts,
		logger:            logger,
		DefaultConfidence: domain.DefaultValidationConfidence,
	}
}

// StartSession opens a review batch for the given candidates. Nothing about
// the candidates themselves is persisted here. Long queries are cut to the
// session's query width.
func (s *ValidationService) StartSession(ctx context.Context, query string, candidates []domain.CandidateFact) (*domain.ValidationSession, error) {
	session := &domain.ValidationSession{
		Query:               domain.TruncateRunes(strings.TrimSpace(query), domain.MaxSessionQueryLen),
		CandidatesPresented: len(candidates),
	}
	if err := s.ledger.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("validation session started",
		zap.String("session_id", session.ID.String()),
		zap.Int("candidates", session.CandidatesPresented))
	return session, nil
}

func (s *ValidationService) GetSession(ctx context.Context, id uuid.UUID) (*domain.ValidationSession, error) {
	session, err := s.ledger.GetSession(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrSessionNotFound)
	}
	return session, nil
}

func (s *ValidationService) ListSessions(ctx context.Context, userID *string) ([]domain.ValidationSession, error) {
	return s.ledger.ListSessions(ctx, userID)
}

// ProcessDecisions applies each decision in its own transaction. A failing
// decision is reported in the result and does not stop the batch. The
// session is closed once every decision has been attempted. If closing the
// session fails, the result is still returned next to the error because the
// decisions have already been committed.
func (s *ValidationService) ProcessDecisions(ctx context.Context, sessionID uuid.UUID, decisions []domain.FactDecision, userID string) (*domain.ValidationResult, error) {
	userID = domain.TruncateRunes(userID, domain.MaxActorLen)
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State() != domain.SessionOpen {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, session.State())
	}

	result := &domain.ValidationResult{
		SessionID:   sessionID,
		ProcessedAt: time.Now().UTC(),
		Approved:    []domain.Fact{},
		Rejected:    []domain.Fact{},
		Edited:      []domain.Fact{},
		Errors:      []domain.DecisionError{},
	}

	for i, d := range decisions {
		fact, err := s.applyDecision(ctx, d, userID)
		if err != nil {
			s.logger.Warn("decision failed",
				zap.String("session_id", sessionID.String()),
				zap.Int("index", i),
				zap.String("action", string(d.Action)),
				zap.Error(err))
			result.Errors = append(result.Errors, domain.DecisionError{
				Index:   i,
				Target:  d.Label(),
				Message: err.Error(),
			})
			continue
		}
		switch d.Action {
		case domain.DecisionApprove:
			result.Approved = append(result.Approved, *fact)
		case domain.DecisionReject:
			result.Rejected = append(result.Rejected, *fact)
		case domain.DecisionEdit:
			result.Edited = append(result.Edited, *fact)
		}
	}

	err = s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		current, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return storeErr(err, ErrSessionNotFound)
		}
		if current.State() != domain.SessionOpen {
			return fmt.Errorf("%w: session is %s", ErrInvalidState, current.State())
		}
		now := time.Now().UTC()
		user := userID
		current.FactsApproved += len(result.Approved)
		current.FactsRejected += len(result.Rejected)
		current.FactsEdited += len(result.Edited)
		current.CompletedAt = &now
		current.WasCompleted = true
		current.UserID = &user
		return tx.UpdateSession(ctx, current)
	})
	if err != nil {
		s.logger.Warn("decisions committed but session not closed",
			zap.String("session_id", sessionID.String()),
			zap.Int("approved", len(result.Approved)),
			zap.Int("rejected", len(result.Rejected)),
			zap.Int("edited", len(result.Edited)),
			zap.Error(err))
		return result, err
	}

	s.logger.Info("validation session completed",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", userID),
		zap.Int("approved", len(result.Approved)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("edited", len(result.Edited)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// applyDecision runs one decision atomically and returns the fact's final
// state.
func (s *ValidationService) applyDecision(ctx context.Context, d domain.FactDecision, userID string) (*domain.Fact, error) {
	if !domain.ValidDecisionAction(string(d.Action)) {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
	}
	if d.FactID == nil && d.Candidate == nil {
		return nil, fmt.Errorf("%w: decision names neither a fact nor a candidate", ErrInvalidDecision)
	}
	confidence := s.DefaultConfidence
	if d.Confidence != nil {
		confidence = *d.Confidence
	}
	if d.Action != domain.DecisionReject {
		if err := domain.CheckConfidence(confidence); err != nil {
			return nil, err
		}
	}

	var out *domain.Fact
	err := s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		facts := s.facts.bind(tx)

		var target uuid.UUID
		if d.FactID != nil {
			target = *d.FactID
		} else {
			candidate := *d.Candidate
			if d.Action == domain.DecisionEdit {
				candidate.Triple = applyEdits(candidate.Triple, d)
			}
			created, err := facts.CreateCandidate(ctx, candidate)
			if err != nil {
				return err
			}
			target = created.ID
		}

		var err error
		switch d.Action {
		case domain.DecisionApprove:
			out, err = facts.Validate(ctx, target, userID, confidence)
		case domain.DecisionReject:
			out, err = facts.Reject(ctx, target, userID, d.Reason)
		case domain.DecisionEdit:
			if d.FactID != nil {
				edit := ContentEdit{Subject: d.EditedSubject, Relation: d.EditedRelation, Object: d.EditedObject}
				if _, err = facts.EditCandidate(ctx, target, edit, userID); err != nil {
					return err
				}
			}
			out, err = facts.Validate(ctx, target, userID, confidence)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyEdits(t domain.Triple, d domain.FactDecision) domain.Triple {
	if d.EditedSubject != nil {
		t.Subject = *d.EditedSubject
	}
	if d.EditedRelation != nil {
		t.Relation = *d.EditedRelation
	}
	if d.EditedObject != nil {
		t.Object = *d.EditedObject
	}
	return t
}

// AbandonSession closes an open session without recording decisions.
func (s *ValidationService) AbandonSession(ctx context.Context, sessionID uuid.UUID, userID string) (*domain.ValidationSession, error) {
	var out *domain.ValidationSession
	err := s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return storeErr(err, ErrSessionNotFound)
		}
		if session.State() != domain.SessionOpen {
			return fmt.Errorf("%w: session is %s", ErrInvalidState, session.State())
		}
		now := time.Now().UTC()
		session.CompletedAt = &now
		session.WasCompleted = false
		if userID != "" {
			user := userID
			session.UserID = &user
		}
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		out = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("validation session abandoned", zap.String("session_id", sessionID.String()))
	return out, nil
}

// GetStats aggregates every session, or only those of userID when set.
// ApprovalRate is approvals over candidates presented.
func (s *ValidationService) GetStats(ctx context.Context, userID *string) (*domain.ValidationStats, error) {
	sessions, err := s.ledger.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &domain.ValidationStats{TotalSessions: len(sessions)}
	for _, session := range sessions {
		if session.WasCompleted {
			stats.CompletedSessions++
		}
		stats.TotalCandidatesPresented += session.CandidatesPresented
		stats.TotalApproved += session.FactsApproved
		stats.TotalRejected += session.FactsRejected
		stats.TotalEdited += session.FactsEdited
	}
	if stats.TotalCandidatesPresented > 0 {
		stats.ApprovalRate = float64(stats.TotalApproved) / float64(stats.TotalCandidatesPresented)
	}
	return stats, nil
}
