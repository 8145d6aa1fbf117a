package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected store failure")

// failingLedger wraps a ledger and fails UpdateConflict, including inside
// transactions.
type failingLedger struct {
	domain.Ledger
}

func (f *failingLedger) InTx(ctx context.Context, fn func(tx domain.Ledger) error) error {
	return f.Ledger.InTx(ctx, func(tx domain.Ledger) error {
		return fn(&failingLedger{Ledger: tx})
	})
}

func (f *failingLedger) UpdateConflict(ctx context.Context, c *domain.FactConflict) error {
	return errInjected
}

type conflictFixture struct {
	ledger    *store.MemoryLedger
	facts     *FactService
	conflicts *ConflictService
}

func newConflictFixture(t *testing.T) *conflictFixture {
	t.Helper()
	ledger := store.NewMemoryLedger()
	facts := NewFactService(ledger, testLogger())
	return &conflictFixture{
		ledger:    ledger,
		facts:     facts,
		conflicts: NewConflictService(ledger, facts, testLogger()),
	}
}

func (fx *conflictFixture) validated(t *testing.T, subject, relation, object string, confidence float64) *domain.Fact {
	t.Helper()
	ctx := context.Background()
	f, err := fx.facts.CreateCandidate(ctx, userCandidate(subject, relation, object))
	require.NoError(t, err)
	f, err = fx.facts.Validate(ctx, f.ID, "alice", confidence)
	require.NoError(t, err)
	return f
}

// pythonConflict sets up the 1991 vs 1989 disagreement and detects it.
func (fx *conflictFixture) pythonConflict(t *testing.T) (domain.FactConflict, *domain.Fact, *domain.Fact) {
	t.Helper()
	f1991 := fx.validated(t, "Python", "foi criado em", "1991", 0.95)
	f1989 := fx.validated(t, "Python", "foi criado em", "1989", 0.88)

	conflicts, err := fx.conflicts.DetectConflicts(context.Background())
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	return conflicts[0], f1991, f1989
}

func TestConflictService_DetectScenario(t *testing.T) {
	fx := newConflictFixture(t)
	c, f1991, f1989 := fx.pythonConflict(t)

	assert.Equal(t, f1991.ID, c.FactAID)
	assert.Equal(t, f1989.ID, c.FactBID)
	assert.InDelta(t, 0.07, c.ConfidenceDifference, 1e-9)
	assert.False(t, c.IsResolved)
	assert.Equal(t, "Python", c.Subject)
	require.NotNil(t, c.FactA)
	assert.Equal(t, "1991", c.FactA.Object)
}

func TestConflictService_DetectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	fx.validated(t, "Python", "foi criado em", "1991", 0.95)
	fx.validated(t, "Python", "foi criado em", "1989", 0.88)
	fx.validated(t, "python", "FOI CRIADO EM", "1990", 0.70)

	first, err := fx.conflicts.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := fx.conflicts.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Len(t, second, len(first))

	all, err := fx.ledger.ListConflicts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConflictService_DetectIgnoresAgreementAndCandidates(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	fx.validated(t, "Python", "é", "Linguagem", 0.9)
	fx.validated(t, "python", "é", "linguagem", 0.91)
	fx.validated(t, "Python", "tem", "tipagem dinâmica", 0.9)
	_, err := fx.facts.CreateCandidate(ctx, userCandidate("Python", "é", "cobra"))
	require.NoError(t, err)

	conflicts, err := fx.conflicts.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflictService_ResolvedPairIsNotRedetected(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, _, _ := fx.pythonConflict(t)

	_, err := fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionKeepBoth, "alice", "")
	require.NoError(t, err)

	open, err := fx.conflicts.DetectConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := fx.ledger.ListConflicts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConflictService_ResolveKeepFactA(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, f1991, f1989 := fx.pythonConflict(t)

	resolved, err := fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionKeepFactA, "alice", "1991 is correct")
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, domain.ResolutionKeepFactA, *resolved.Resolution)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "1991 is correct", *resolved.ResolutionNotes)
	assert.NotNil(t, resolved.ResolvedAt)

	loser, err := fx.facts.GetFact(ctx, f1989.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FactStatusDeprecated, loser.Status)
	assert.Equal(t, 0.0, loser.Confidence)
	require.NotNil(t, loser.DeprecationReason)
	assert.Contains(t, *loser.DeprecationReason, f1991.ID.String())

	winner, err := fx.facts.GetFact(ctx, f1991.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FactStatusValidated, winner.Status)
	assert.Equal(t, 0.95, winner.Confidence)
	assertHistoryContiguous(t, fx.facts, f1989.ID)
}

func TestConflictService_ResolveKeepFactB(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, f1991, f1989 := fx.pythonConflict(t)

	_, err := fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionKeepFactB, "alice", "")
	require.NoError(t, err)

	a, err := fx.facts.GetFact(ctx, f1991.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FactStatusDeprecated, a.Status)

	b, err := fx.facts.GetFact(ctx, f1989.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FactStatusValidated, b.Status)
}

func TestConflictService_ResolveKeepBoth(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, f1991, f1989 := fx.pythonConflict(t)

	_, err := fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionKeepBoth, "alice", "different contexts")
	require.NoError(t, err)

	a, err := fx.facts.GetFact(ctx, f1991.ID)
	require.NoError(t, err)
	b, err := fx.facts.GetFact(ctx, f1989.ID)
	require.NoError(t, err)

	assert.Equal(t, 0.95*domain.UncertaintyPenalty, a.Confidence)
	assert.Equal(t, 0.88*domain.UncertaintyPenalty, b.Confidence)
	assert.Equal(t, domain.FactStatusValidated, a.Status)
	assert.Equal(t, domain.FactStatusValidated, b.Status)

	history, err := fx.facts.History(ctx, f1991.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeConfidenceUpdated, history[len(history)-1].ChangeType)
}

func TestConflictService_ResolveDeprecateBothAndCreateNew(t *testing.T) {
	for _, resolution := range []domain.ConflictResolution{domain.ResolutionDeprecateBoth, domain.ResolutionCreateNew} {
		t.Run(string(resolution), func(t *testing.T) {
			ctx := context.Background()
			fx := newConflictFixture(t)
			c, f1991, f1989 := fx.pythonConflict(t)

			_, err := fx.conflicts.ResolveConflict(ctx, c.ID, resolution, "alice", "")
			require.NoError(t, err)

			for _, id := range []uuid.UUID{f1991.ID, f1989.ID} {
				f, err := fx.facts.GetFact(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, domain.FactStatusDeprecated, f.Status)
				assert.Equal(t, 0.0, f.Confidence)
			}
		})
	}
}

func TestConflictService_ResolveTwiceIsAlreadyResolved(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, f1991, f1989 := fx.pythonConflict(t)

	_, err := fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionKeepBoth, "alice", "")
	require.NoError(t, err)

	a, err := fx.facts.GetFact(ctx, f1991.ID)
	require.NoError(t, err)
	b, err := fx.facts.GetFact(ctx, f1989.ID)
	require.NoError(t, err)

	_, err = fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionDeprecateBoth, "bob", "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	a2, err := fx.facts.GetFact(ctx, f1991.ID)
	require.NoError(t, err)
	b2, err := fx.facts.GetFact(ctx, f1989.ID)
	require.NoError(t, err)
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)
}

func TestConflictService_ResolveErrors(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, _, _ := fx.pythonConflict(t)

	_, err := fx.conflicts.ResolveConflict(ctx, uuid.New(), domain.ResolutionKeepFactA, "alice", "")
	assert.ErrorIs(t, err, ErrConflictNotFound)

	_, err = fx.conflicts.ResolveConflict(ctx, c.ID, "FLIP_A_COIN", "alice", "")
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = fx.conflicts.ResolveConflict(ctx, c.ID, domain.ResolutionKeepFactA, "alice",
		strings.Repeat("n", domain.MaxResolutionNotesLen+1))
	assert.ErrorIs(t, err, ErrFieldTooLong)
	stored, err := fx.conflicts.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsResolved)
}

func TestConflictService_ResolveRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	fx := newConflictFixture(t)
	c, f1991, f1989 := fx.pythonConflict(t)

	broken := NewConflictService(&failingLedger{Ledger: fx.ledger}, fx.facts, testLogger())
	_, err := broken.ResolveConflict(ctx, c.ID, domain.ResolutionDeprecateBoth, "alice", "")
	assert.ErrorIs(t, err, errInjected)

	for _, id := range []uuid.UUID{f1991.ID, f1989.ID} {
		f, err := fx.facts.GetFact(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.FactStatusValidated, f.Status)
		history, err := fx.facts.History(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	}

	stored, err := fx.conflicts.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsResolved)
}

func TestFormatConflict(t *testing.T) {
	fx := newConflictFixture(t)
	c, _, _ := fx.pythonConflict(t)

	text := FormatConflict(&c)
	assert.Contains(t, text, "Subject: Python")
	assert.Contains(t, text, "Value: 1991")
	assert.Contains(t, text, "Value: 1989")
	assert.Contains(t, text, "Confidence: 95.00%")
	assert.Contains(t, text, "Source: USER")
	assert.Contains(t, text, "Approved by: alice")
	assert.Contains(t, text, "Confidence difference: 7.00%")
	assert.Equal(t, 5, strings.Count(text, ": keep")+strings.Count(text, ": deprecate"))
}
