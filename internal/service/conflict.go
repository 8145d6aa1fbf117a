package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConflictService finds contradicting validated facts and applies the
// resolutions a human picks. It never resolves anything on its own.
type ConflictService struct {
	ledger domain.Ledger
	facts  *FactService
	logger *zap.Logger

	UncertaintyPenalty float64
}

func NewConflictService(ledger domain.Ledger, facts *FactService, logger *zap.Logger) *ConflictService {
	return &ConflictService{
		ledger:             ledger,
		facts:              facts,
		logger:             logger,
		UncertaintyPenalty: domain.UncertaintyPenalty,
	}
}

func groupKey(f *domain.Fact) string {
	return strings.ToLower(f.Subject) + "\x00" + strings.ToLower(f.Relation)
}

// DetectConflicts registers every new contradiction among VALIDATED facts
// and returns all conflicts still awaiting resolution. A pair is registered
// at most once, whatever its later resolution.
func (s *ConflictService) DetectConflicts(ctx context.Context) ([]domain.FactConflict, error) {
	var created int
	err := s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		status := domain.FactStatusValidated
		validated, err := tx.ListFacts(ctx, domain.FactFilter{Status: &status})
		if err != nil {
			return err
		}

		groups := make(map[string][]*domain.Fact)
		var keys []string
		for i := range validated {
			f := &validated[i]
			k := groupKey(f)
			if _, ok := groups[k]; !ok {
				keys = append(keys, k)
			}
			groups[k] = append(groups[k], f)
		}
		sort.Strings(keys)

		for _, k := range keys {
			group := groups[k]
			if len(group) < 2 {
				continue
			}
			sort.SliceStable(group, func(i, j int) bool {
				a, b := group[i], group[j]
				if a.Confidence != b.Confidence {
					return a.Confidence > b.Confidence
				}
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.Before(b.CreatedAt)
				}
				return a.ID.String() < b.ID.String()
			})

			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					a, b := group[i], group[j]
					if strings.EqualFold(a.Object, b.Object) {
						continue
					}
					exists, err := tx.ConflictExists(ctx, a.ID, b.ID)
					if err != nil {
						return err
					}
					if exists {
						continue
					}
					c := &domain.FactConflict{
						Subject:              a.Subject,
						Relation:             a.Relation,
						FactAID:              a.ID,
						FactBID:              b.ID,
						ConfidenceDifference: math.Abs(a.Confidence - b.Confidence),
					}
					if err := tx.CreateConflict(ctx, c); err != nil {
						return fmt.Errorf("create conflict: %w", err)
					}
					created++
					s.logger.Info("conflict detected",
						zap.String("conflict_id", c.ID.String()),
						zap.String("subject", c.Subject),
						zap.String("relation", c.Relation),
						zap.String("fact_a", a.ID.String()),
						zap.String("fact_b", b.ID.String()),
						zap.Float64("confidence_difference", c.ConfidenceDifference))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	open, err := s.ListConflicts(ctx, true)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("conflict scan finished", zap.Int("new", created), zap.Int("open", len(open)))
	return open, nil
}

// ResolveConflict applies resolution to both facts and closes the conflict
// in one transaction. Any failure leaves facts and conflict untouched.
func (s *ConflictService) ResolveConflict(ctx context.Context, id uuid.UUID, resolution domain.ConflictResolution, resolvedBy, notes string) (*domain.FactConflict, error) {
	if !domain.ValidConflictResolution(string(resolution)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	if err := domain.CheckLength("resolution notes", notes, domain.MaxResolutionNotesLen); err != nil {
		return nil, err
	}

	var out *domain.FactConflict
	err := s.ledger.InTx(ctx, func(tx domain.Ledger) error {
		c, err := tx.GetConflictForUpdate(ctx, id)
		if err != nil {
			return storeErr(err, ErrConflictNotFound)
		}
		if c.IsResolved {
			return ErrAlreadyResolved
		}

		facts := s.facts.bind(tx)
		deprecate := func(factID uuid.UUID, reason string) error {
			_, err := facts.Deprecate(ctx, factID, resolvedBy, reason)
			return err
		}

		switch resolution {
		case domain.ResolutionKeepFactA:
			err = deprecate(c.FactBID, fmt.Sprintf("Conflict %s resolved: fact %s kept", c.ID, c.FactAID))
		case domain.ResolutionKeepFactB:
			err = deprecate(c.FactAID, fmt.Sprintf("Conflict %s resolved: fact %s kept", c.ID, c.FactBID))
		case domain.ResolutionKeepBoth:
			reason := fmt.Sprintf("Conflict %s resolved: both kept with uncertainty penalty", c.ID)
			for _, factID := range []uuid.UUID{c.FactAID, c.FactBID} {
				f, getErr := tx.GetFactForUpdate(ctx, factID)
				if getErr != nil {
					return storeErr(getErr, ErrFactNotFound)
				}
				if _, err = facts.UpdateConfidence(ctx, factID, f.Confidence*s.UncertaintyPenalty, resolvedBy, reason); err != nil {
					break
				}
			}
		case domain.ResolutionDeprecateBoth:
			reason := fmt.Sprintf("Conflict %s resolved: both deprecated", c.ID)
			if err = deprecate(c.FactAID, reason); err == nil {
				err = deprecate(c.FactBID, reason)
			}
		case domain.ResolutionCreateNew:
			reason := fmt.Sprintf("Conflict %s resolved: replaced by a new fact", c.ID)
			if err = deprecate(c.FactAID, reason); err == nil {
				err = deprecate(c.FactBID, reason)
			}
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		r := resolution
		c.IsResolved = true
		c.ResolvedAt = &now
		c.Resolution = &r
		if notes != "" {
			n := notes
			c.ResolutionNotes = &n
		}
		if err := tx.UpdateConflict(ctx, c); err != nil {
			return storeErr(err, ErrConflictNotFound)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("conflict resolved",
		zap.String("conflict_id", out.ID.String()),
		zap.String("resolution", string(resolution)),
		zap.String("resolved_by", resolvedBy))

	if err := s.hydrate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConflictService) hydrate(ctx context.Context, c *domain.FactConflict) error {
	a, err := s.ledger.GetFact(ctx, c.FactAID)
	if err != nil {
		return storeErr(err, ErrFactNotFound)
	}
	b, err := s.ledger.GetFact(ctx, c.FactBID)
	if err != nil {
		return storeErr(err, ErrFactNotFound)
	}
	c.FactA, c.FactB = a, b
	return nil
}

// GetConflict returns the conflict with both facts attached.
func (s *ConflictService) GetConflict(ctx context.Context, id uuid.UUID) (*domain.FactConflict, error) {
	c, err := s.ledger.GetConflict(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrConflictNotFound)
	}
	if err := s.hydrate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ConflictService) ListConflicts(ctx context.Context, unresolvedOnly bool) ([]domain.FactConflict, error) {
	conflicts, err := s.ledger.ListConflicts(ctx, unresolvedOnly)
	if err != nil {
		return nil, err
	}
	for i := range conflicts {
		if err := s.hydrate(ctx, &conflicts[i]); err != nil {
			return nil, err
		}
	}
	return conflicts, nil
}

// FormatConflict renders a conflict for a reviewer as plain text.
func FormatConflict(c *domain.FactConflict) string {
	var b strings.Builder
	b.WriteString("CONFLICT DETECTED\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", c.Subject)
	fmt.Fprintf(&b, "Relation: %s\n\n", c.Relation)

	writeSide := func(label string, id uuid.UUID, f *domain.Fact) {
		fmt.Fprintf(&b, "VERSION %s (ID: %s)\n", label, id)
		if f == nil {
			b.WriteString("(fact not loaded)\n\n")
			return
		}
		fmt.Fprintf(&b, "Value: %s\n", f.Object)
		fmt.Fprintf(&b, "Confidence: %.2f%%\n", f.Confidence*100)
		if src := f.PrimarySource(); src != nil {
			fmt.Fprintf(&b, "Source: %s\n", src.Type)
		}
		if f.ValidatedAt != nil {
			fmt.Fprintf(&b, "Validated at: %s\n", f.ValidatedAt.Format("02/01/2006 15:04"))
		}
		if f.ApprovedBy != nil {
			fmt.Fprintf(&b, "Approved by: %s\n", *f.ApprovedBy)
		}
		b.WriteString("\n")
	}
	writeSide("A", c.FactAID, c.FactA)
	writeSide("B", c.FactBID, c.FactB)

	fmt.Fprintf(&b, "Confidence difference: %.2f%%\n\n", c.ConfidenceDifference*100)
	b.WriteString("RESOLUTION OPTIONS:\n")
	fmt.Fprintf(&b, "1. %s: keep only version A\n", domain.ResolutionKeepFactA)
	fmt.Fprintf(&b, "2. %s: keep only version B\n", domain.ResolutionKeepFactB)
	fmt.Fprintf(&b, "3. %s: keep both (different contexts)\n", domain.ResolutionKeepBoth)
	fmt.Fprintf(&b, "4. %s: deprecate both\n", domain.ResolutionDeprecateBoth)
	fmt.Fprintf(&b, "5. %s: deprecate both and submit a new fact\n", domain.ResolutionCreateNew)
	return b.String()
}
