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

const systemActor = "system"

// FactService applies the lifecycle rules to facts. Every mutation runs in
// one ledger transaction together with exactly one history row.
type FactService struct {
	ledger domain.Ledger
	logger *zap.Logger

	AssertionThreshold float64
}

func NewFactService(ledger domain.Ledger, logger *zap.Logger) *FactService {
	return &FactService{
		ledger:             ledger,
		logger:             logger,
		AssertionThreshold: domain.AssertionThreshold,
	}
}

// bind returns a copy of the service that works on tx.
func (s *FactService) bind(tx domain.Ledger) *FactService {
	cp := *s
	cp.ledger = tx
	return &cp
}

// CreateCandidate persists a new CANDIDATE fact with confidence 0, its
// single source and the CREATED history row.
func (s *FactService) CreateCandidate(ctx context.Context, c domain.CandidateFact) (*domain.Fact, error) {
	triple := domain.Triple{
		Subject:  strings.TrimSpace(c.Subject),
		Relation: strings.TrimSpace(c.Relation),
		Object:   strings.TrimSpace(c.Object),
	}
	if triple.Empty() {
		return nil, ErrEmptyTriple
	}
	if err := triple.CheckLengths(); err != nil {
		return nil, err
	}
	if !domain.ValidSourceType(string(c.Source.Type)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceType, c.Source.Type)
	}
	if err := domain.CheckLength("source url", c.Source.URL, domain.MaxSourceURLLen); err != nil {
		return nil, err
	}

	fact := &domain.Fact{
		Subject:    triple.Subject,
		Relation:   triple.Relation,
		Object:     triple.Object,
		Confidence: 0,
		Status:     domain.FactStatusCandidate,
		Version:    1,
	}

	identifier := domain.TruncateRunes(c.Source.Identifier, domain.MaxSourceIdentifierLen)
	if identifier == "" {
		identifier = strings.ToLower(string(c.Source.Type))
	}
	source := &domain.FactSource{
		Type:        c.Source.Type,
		Identifier:  identifier,
		TrustWeight: c.Source.Type.TrustWeight(),
	}
	if c.Source.URL != "" {
		url := c.Source.URL
		source.URL = &url
	}
	if c.Source.RawContent != "" {
		raw := domain.TruncateRunes(c.Source.RawContent, domain.MaxRawContentLen)
		source.RawContent = &raw
	}

	err := s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		if err := tx.CreateFact(ctx, fact); err != nil {
			return fmt.Errorf("create fact: %w", err)
		}
		source.FactID = fact.ID
		if err := tx.AddSource(ctx, source); err != nil {
			return fmt.Errorf("add source: %w", err)
		}
		return tx.AppendHistory(ctx, &domain.FactHistory{
			FactID:     fact.ID,
			Version:    fact.Version,
			New:        fact.Snapshot(),
			ChangedBy:  systemActor,
			Reason:     "Candidate fact created",
			ChangeType: domain.ChangeCreated,
		})
	})
	if err != nil {
		return nil, err
	}
	fact.Sources = []domain.FactSource{*source}

	s.logger.Info("candidate created",
		zap.String("fact_id", fact.ID.String()),
		zap.String("triple", fact.Triple().String()),
		zap.String("source_type", string(source.Type)))
	return fact, nil
}

// transition is one lifecycle change applied by mutate.
type transition struct {
	changeType domain.ChangeType
	changedBy  string
	reason     string
	apply      func(f *domain.Fact) error
}

// mutate locks the fact, applies t, bumps the version and appends the paired
// history row. Nothing is written when apply fails.
func (s *FactService) mutate(ctx context.Context, id uuid.UUID, t transition) (*domain.Fact, error) {
	if err := domain.CheckLength("reason", t.reason, domain.MaxReasonLen); err != nil {
		return nil, err
	}
	t.changedBy = domain.TruncateRunes(t.changedBy, domain.MaxActorLen)

	var out *domain.Fact
	err := s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		fact, err := tx.GetFactForUpdate(ctx, id)
		if err != nil {
			return storeErr(err, ErrFactNotFound)
		}

		previous := fact.Snapshot()
		expected := fact.Version
		if err := t.apply(fact); err != nil {
			return err
		}
		fact.Version = expected + 1

		if err := tx.UpdateFact(ctx, fact, expected); err != nil {
			return storeErr(err, ErrFactNotFound)
		}
		if err := tx.AppendHistory(ctx, &domain.FactHistory{
			FactID:     fact.ID,
			Version:    fact.Version,
			Previous:   &previous,
			New:        fact.Snapshot(),
			ChangedBy:  t.changedBy,
			Reason:     t.reason,
			ChangeType: t.changeType,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		out = fact
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fact transition",
		zap.String("fact_id", out.ID.String()),
		zap.String("change", string(t.changeType)),
		zap.String("status", string(out.Status)),
		zap.Int("version", out.Version),
		zap.Float64("confidence", out.Confidence),
		zap.String("changed_by", t.changedBy))
	return out, nil
}

// Validate promotes a CANDIDATE to VALIDATED. It is the only way a fact
// becomes trusted.
func (s *FactService) Validate(ctx context.Context, id uuid.UUID, approvedBy string, confidence float64) (*domain.Fact, error) {
	approvedBy = domain.TruncateRunes(approvedBy, domain.MaxActorLen)
	return s.mutate(ctx, id, transition{
		changeType: domain.ChangeValidated,
		changedBy:  approvedBy,
		reason:     "Fact validated by user",
		apply: func(f *domain.Fact) error {
			if f.Status != domain.FactStatusCandidate {
				return fmt.Errorf("%w: only CANDIDATE facts can be validated, fact is %s", ErrInvalidState, f.Status)
			}
			if err := domain.CheckConfidence(confidence); err != nil {
				return err
			}
			now := time.Now().UTC()
			approver := approvedBy
			f.Status = domain.FactStatusValidated
			f.Confidence = confidence
			f.ApprovedBy = &approver
			f.ValidatedAt = &now
			return nil
		},
	})
}

func (s *FactService) Reject(ctx context.Context, id uuid.UUID, rejectedBy, reason string) (*domain.Fact, error) {
	if reason == "" {
		reason = "Fact rejected by user"
	}
	return s.mutate(ctx, id, transition{
		changeType: domain.ChangeRejected,
		changedBy:  rejectedBy,
		reason:     reason,
		apply: func(f *domain.Fact) error {
			f.Status = domain.FactStatusRejected
			return nil
		},
	})
}

// Deprecate retires a fact from any status and zeroes its confidence.
func (s *FactService) Deprecate(ctx context.Context, id uuid.UUID, deprecatedBy, reason string) (*domain.Fact, error) {
	if reason == "" {
		reason = "Fact deprecated"
	}
	return s.mutate(ctx, id, transition{
		changeType: domain.ChangeDeprecated,
		changedBy:  deprecatedBy,
		reason:     reason,
		apply: func(f *domain.Fact) error {
			now := time.Now().UTC()
			why := reason
			f.Status = domain.FactStatusDeprecated
			f.Confidence = 0
			f.DeprecatedAt = &now
			f.DeprecationReason = &why
			return nil
		},
	})
}

func (s *FactService) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64, updatedBy, reason string) (*domain.Fact, error) {
	if err := domain.CheckConfidence(confidence); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "Confidence updated"
	}
	return s.mutate(ctx, id, transition{
		changeType: domain.ChangeConfidenceUpdated,
		changedBy:  updatedBy,
		reason:     reason,
		apply: func(f *domain.Fact) error {
			f.Confidence = confidence
			return nil
		},
	})
}

// ContentEdit carries the optional replacement parts of a triple.
type ContentEdit struct {
	Subject  *string
	Relation *string
	Object   *string
}

// EditCandidate rewrites a candidate's content. Validated content is
// immutable.
func (s *FactService) EditCandidate(ctx context.Context, id uuid.UUID, edit ContentEdit, editedBy string) (*domain.Fact, error) {
	return s.mutate(ctx, id, transition{
		changeType: domain.ChangeContentEdited,
		changedBy:  editedBy,
		reason:     "Fact edited before validation",
		apply: func(f *domain.Fact) error {
			if f.Status != domain.FactStatusCandidate {
				return fmt.Errorf("%w: only CANDIDATE facts can be edited, fact is %s", ErrInvalidState, f.Status)
			}
			next := f.Triple()
			if edit.Subject != nil {
				next.Subject = strings.TrimSpace(*edit.Subject)
			}
			if edit.Relation != nil {
				next.Relation = strings.TrimSpace(*edit.Relation)
			}
			if edit.Object != nil {
				next.Object = strings.TrimSpace(*edit.Object)
			}
			if next.Empty() {
				return ErrEmptyTriple
			}
			if err := next.CheckLengths(); err != nil {
				return err
			}
			f.Subject, f.Relation, f.Object = next.Subject, next.Relation, next.Object
			return nil
		},
	})
}

// FindTrusted returns validated facts about subject at or above the
// assertion threshold, most confident first.
func (s *FactService) FindTrusted(ctx context.Context, subject string) ([]domain.Fact, error) {
	return s.ledger.FindTrusted(ctx, strings.TrimSpace(subject), s.AssertionThreshold)
}

func (s *FactService) HasTrustedKnowledge(ctx context.Context, subject string) (bool, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false, nil
	}
	return s.ledger.HasTrusted(ctx, subject, s.AssertionThreshold)
}

// ListCandidates returns every CANDIDATE fact, newest first.
func (s *FactService) ListCandidates(ctx context.Context) ([]domain.Fact, error) {
	status := domain.FactStatusCandidate
	return s.ledger.ListFacts(ctx, domain.FactFilter{Status: &status})
}

func (s *FactService) ListFacts(ctx context.Context, filter domain.FactFilter) ([]domain.Fact, error) {
	return s.ledger.ListFacts(ctx, filter)
}

func (s *FactService) GetFact(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	f, err := s.ledger.GetFact(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrFactNotFound)
	}
	return f, nil
}

// History returns the fact's audit rows ordered by version.
func (s *FactService) History(ctx context.Context, id uuid.UUID) ([]domain.FactHistory, error) {
	if _, err := s.GetFact(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListHistory(ctx, id)
}
