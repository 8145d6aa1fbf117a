package store

import (
	"context"
	"testing"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	f := seedFact(t, l, "Python", "linguagem", domain.FactStatusCandidate, 0)

	got, err := l.GetFact(ctx, f.ID)
	require.NoError(t, err)
	got.Object = "cobra"

	again, err := l.GetFact(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "linguagem", again.Object)
}
