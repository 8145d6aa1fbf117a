package main

import (
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var idPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

type harness struct {
	t      *testing.T
	ledger *store.MemoryLedger
}

// run executes one ledgerctl invocation against the shared in-memory ledger.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	c := &cli{
		out:    &out,
		logger: zap.NewNop(),
		open: func(context.Context) (domain.Ledger, func(), error) {
			return h.ledger, func() {}, nil
		},
	}
	root := newRootCmd(c)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, ledger: store.NewMemoryLedger()}
}

func (h *harness) candidate(subject, relation, object string) string {
	h.t.Helper()
	out, err := h.run("facts", "candidate", subject, relation, object, "--source-type", "documentation", "--source", "docs")
	require.NoError(h.t, err)
	id := idPattern.FindString(out)
	require.NotEmpty(h.t, id, out)
	return id
}

func TestFactsCommands(t *testing.T) {
	h := newHarness(t)
	id := h.candidate("Python", "foi criado em", "1991")

	out, err := h.run("facts", "list", "--status", "candidate")
	require.NoError(t, err)
	assert.Contains(t, out, "CANDIDATE")
	assert.Contains(t, out, "1991")

	out, err = h.run("--reviewer", "bob", "facts", "validate", id, "--confidence", "0.95")
	require.NoError(t, err)
	assert.Contains(t, out, "validated at 0.95 (trusted, confidence >= 0.85)")

	other := h.candidate("Python", "é", "interpretada")
	_, err = h.run("facts", "validate", other, "--confidence", "0.75")
	require.NoError(t, err)

	out, err = h.run("facts", "list", "--band", "Probable")
	require.NoError(t, err)
	assert.Contains(t, out, "interpretada")
	assert.NotContains(t, out, "1991")

	out, err = h.run("facts", "list", "--band", "unrated")
	require.NoError(t, err)
	assert.Contains(t, out, "no facts")

	_, err = h.run("facts", "list", "--band", "certain")
	assert.ErrorContains(t, err, "invalid band")

	out, err = h.run("facts", "history", id)
	require.NoError(t, err)
	assert.Contains(t, out, "CREATED")
	assert.Contains(t, out, "VALIDATED")
	assert.Contains(t, out, "bob")

	_, err = h.run("facts", "validate", id)
	assert.ErrorContains(t, err, "not allowed")

	_, err = h.run("facts", "reject", "nope")
	assert.ErrorContains(t, err, "invalid id")

	_, err = h.run("facts", "list", "--status", "maybe")
	assert.Error(t, err)

	out, err = h.run("facts", "reject", id, "--reason", "wrong year")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
}

func TestConflictsCommands(t *testing.T) {
	h := newHarness(t)
	a := h.candidate("Python", "foi criado em", "1991")
	b := h.candidate("Python", "foi criado em", "1989")
	_, err := h.run("facts", "validate", a, "--confidence", "0.95")
	require.NoError(t, err)
	_, err = h.run("facts", "validate", b, "--confidence", "0.88")
	require.NoError(t, err)

	out, err := h.run("conflicts", "detect")
	require.NoError(t, err)
	assert.Contains(t, out, "1991")
	assert.Contains(t, out, "1989")
	conflictID := idPattern.FindString(out)
	require.NotEmpty(t, conflictID)

	out, err = h.run("conflicts", "show", conflictID)
	require.NoError(t, err)
	assert.Contains(t, out, "RESOLUTION OPTIONS")

	out, err = h.run("conflicts", "resolve", conflictID, "keep_fact_a", "--notes", "per docs")
	require.NoError(t, err)
	assert.Contains(t, out, "KEEP_FACT_A")

	out, err = h.run("conflicts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no conflicts")

	out, err = h.run("conflicts", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "KEEP_FACT_A")

	_, err = h.run("conflicts", "resolve", conflictID, "KEEP_FACT_B")
	assert.ErrorContains(t, err, "already resolved")
}

func TestStatsCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions:            0 (0 completed)")
	assert.Contains(t, out, "Approval rate:       0.0%")
}

func TestVersionFlag(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("--version")
	require.NoError(t, err)
	assert.Contains(t, out, "factledger")
}
