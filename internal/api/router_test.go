package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anacreon-labs/factledger/internal/cognitive"
	"github.com/anacreon-labs/factledger/internal/codeinsight"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/investigation"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/anacreon-labs/factledger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unavailableInvestigator struct{}

func (unavailableInvestigator) Investigate(context.Context, string) (*domain.InvestigationResult, error) {
	return nil, investigation.ErrInvestigationUnavailable
}

type testServer struct {
	t      *testing.T
	app    *App
	ledger *store.MemoryLedger
}

func newTestServer(t *testing.T, perms cognitive.PermissionTable) *testServer {
	t.Helper()
	logger := zap.NewNop()
	ledger := store.NewMemoryLedger()
	facts := service.NewFactService(ledger, logger)
	conflicts := service.NewConflictService(ledger, facts, logger)
	validation := service.NewValidationService(ledger, facts, logger)
	engine := cognitive.NewEngine(cognitive.NewIntentDetector(), facts, validation,
		unavailableInvestigator{}, codeinsight.NewAnalyzer(), perms, logger)

	app := NewApp(Services{
		Ledger:     ledger,
		Facts:      facts,
		Conflicts:  conflicts,
		Validation: validation,
		Engine:     engine,
	}, Options{RateLimitRPS: 1000, RateLimitBurst: 1000, DefaultReviewer: "user"}, logger)

	return &testServer{t: t, app: app, ledger: ledger}
}

func (s *testServer) do(method, path string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reviewer", "alice")
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (s *testServer) trusted(subject, relation, object string, confidence float64) domain.Fact {
	s.t.Helper()
	var created domain.Fact
	code := s.do(http.MethodPost, "/v1/facts", map[string]any{
		"subject": subject, "relation": relation, "object": object,
		"source": map[string]string{"type": "DOCUMENTATION", "identifier": "docs.python.org"},
	}, &created)
	require.Equal(s.t, http.StatusCreated, code)

	var validated domain.Fact
	code = s.do(http.MethodPost, "/v1/facts/"+created.ID.String()+"/validate",
		map[string]float64{"confidence": confidence}, &validated)
	require.Equal(s.t, http.StatusOK, code)
	return validated
}

func TestHealthVersionMetrics(t *testing.T) {
	s := newTestServer(t, cognitive.DefaultPermissions())

	var health map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var version map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/version", nil, &version))
	assert.Contains(t, version, "version")

	var metrics map[string]any
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", nil, &metrics))
	assert.EqualValues(t, 3, metrics["request_count"])
}

func TestFactLifecycle(t *testing.T) {
	s := newTestServer(t, cognitive.DefaultPermissions())

	var created domain.Fact
	code := s.do(http.MethodPost, "/v1/facts", map[string]string{
		"subject": "Python", "relation": "foi criado em", "object": "1991",
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.FactStatusCandidate, created.Status)

	var list struct {
		Facts []domain.Fact `json:"facts"`
		Count int           `json:"count"`
	}
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/facts/candidates", nil, &list))
	assert.Equal(t, 1, list.Count)

	id := created.ID.String()
	var validated domain.Fact
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/facts/"+id+"/validate", nil, &validated))
	assert.Equal(t, domain.FactStatusValidated, validated.Status)
	assert.InDelta(t, domain.DefaultValidationConfidence, validated.Confidence, 1e-9)
	require.NotNil(t, validated.ApprovedBy)
	assert.Equal(t, "alice", *validated.ApprovedBy)

	var apiErr map[string]string
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/v1/facts/"+id+"/validate", nil, &apiErr))
	assert.NotEmpty(t, apiErr["error"])

	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPut, "/v1/facts/"+id+"/confidence", map[string]float64{"confidence": 1.0}, nil))
	assert.Equal(t, http.StatusOK,
		s.do(http.MethodPut, "/v1/facts/"+id+"/confidence", map[string]any{"confidence": 0.95, "reason": "second source"}, nil))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/facts/trusted?subject=python", nil, &list))
	assert.Equal(t, 1, list.Count)

	var history struct {
		History []domain.FactHistory `json:"history"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/facts/"+id+"/history", nil, &history))
	require.Len(t, history.History, 3)
	assert.Equal(t, domain.ChangeCreated, history.History[0].ChangeType)
	assert.Equal(t, 3, history.History[2].Version)
	assert.Equal(t, "alice", history.History[2].ChangedBy)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/facts/"+id+"/deprecate", map[string]string{"reason": "superseded"}, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/facts?status=deprecated", nil, &list))
	assert.Equal(t, 1, list.Count)
}

func TestFactErrors(t *testing.T) {
	s := newTestServer(t, cognitive.DefaultPermissions())

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/facts/not-a-uuid", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/facts/"+uuid.NewString(), nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/facts?status=MAYBE", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/facts", map[string]string{"subject": "Go"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/facts", map[string]any{"unknown": 1}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/facts/trusted", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/facts", map[string]any{
		"subject": strings.Repeat("G", domain.MaxSubjectLen+1), "relation": "is", "object": "compiled",
		"source": map[string]string{"type": "DOCUMENTATION", "identifier": "go.dev"},
	}, nil))
}

func TestConflictFlow(t *testing.T) {
	s := newTestServer(t, cognitive.DefaultPermissions())
	a := s.trusted("Python", "foi criado em", "1991", 0.95)
	b := s.trusted("python", "Foi criado em", "1989", 0.88)

	var detected struct {
		Conflicts []domain.FactConflict `json:"conflicts"`
		Count     int                   `json:"count"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/conflicts/detect", nil, &detected))
	require.Equal(t, 1, detected.Count)
	c := detected.Conflicts[0]
	assert.Equal(t, a.ID, c.FactAID)
	assert.Equal(t, b.ID, c.FactBID)

	req := httptest.NewRequest(http.MethodGet, "/v1/conflicts/"+c.ID.String()+"?format=text", nil)
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFLICT DETECTED")

	path := "/v1/conflicts/" + c.ID.String() + "/resolve"
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, path, map[string]string{"resolution": "FLIP_A_COIN"}, nil))

	var resolved domain.FactConflict
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, path, map[string]string{"resolution": "KEEP_FACT_A", "notes": "per docs"}, &resolved))
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.FactB)
	assert.Equal(t, domain.FactStatusDeprecated, resolved.FactB.Status)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path, map[string]string{"resolution": "KEEP_FACT_B"}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/conflicts/"+uuid.NewString()+"/resolve",
		map[string]string{"resolution": "KEEP_BOTH"}, nil))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/conflicts", nil, &detected))
	assert.Equal(t, 0, detected.Count)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/conflicts?unresolved=false", nil, &detected))
	assert.Equal(t, 1, detected.Count)
}

func TestTurnAndReviewFlow(t *testing.T) {
	s := newTestServer(t, cognitive.DefaultPermissions())

	var resp domain.Response
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/turns", map[string]string{"input": "Python é uma linguagem de programação"}, &resp))
	assert.Equal(t, domain.ModeValidation, resp.Mode)
	require.NotNil(t, resp.SessionID)
	require.Len(t, resp.CandidateFacts, 1)

	var result struct {
		Approved []domain.Fact `json:"approved"`
		Summary  string        `json:"summary"`
	}
	path := "/v1/sessions/" + resp.SessionID.String() + "/decisions"
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, path, map[string]any{
		"decisions": []domain.FactDecision{{Candidate: &resp.CandidateFacts[0], Action: domain.DecisionApprove}},
	}, &result))
	require.Len(t, result.Approved, 1)
	assert.Contains(t, result.Summary, "Approved: 1")

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path, map[string]any{"decisions": []any{}}, nil))

	var session struct {
		State  domain.SessionState `json:"state"`
		UserID *string             `json:"user_id"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/sessions/"+resp.SessionID.String(), nil, &session))
	assert.Equal(t, domain.SessionClosed, session.State)
	require.NotNil(t, session.UserID)
	assert.Equal(t, "alice", *session.UserID)

	var stats domain.ValidationStats
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/stats?user_id=alice", nil, &stats))
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.InDelta(t, 1.0, stats.ApprovalRate, 1e-9)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/turns", map[string]string{"input": "O que é Python?"}, &resp))
	assert.Equal(t, domain.ModeAnswer, resp.Mode)
	assert.True(t, resp.Success)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/turns", map[string]string{"input": "O que é Haskell?"}, &resp))
	assert.Equal(t, domain.ModeInvestigation, resp.Mode)
	assert.False(t, resp.Success)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/turns", map[string]string{"input": "  "}, nil))
}

func TestAbandonSession(t *testing.T) {
	s := newTestServer(t, cognitive.DefaultPermissions())

	var session domain.ValidationSession
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/sessions", map[string]any{"query": "Rust"}, &session))

	path := "/v1/sessions/" + session.ID.String() + "/abandon"
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, path, nil, &session))
	assert.False(t, session.WasCompleted)
	assert.NotNil(t, session.CompletedAt)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path, nil, nil))
}

func TestDecisionsForbiddenWithoutLearnPermission(t *testing.T) {
	perms, err := cognitive.ParsePermissions([]byte(`
modes:
  ANSWER: {assert: true}
  INVESTIGATION: {search_web: true}
  VALIDATION: {}
  LEARNING: {learn: false}
  CODE_ANALYSIS: {}
`))
	require.NoError(t, err)
	s := newTestServer(t, perms)

	var session domain.ValidationSession
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/sessions", map[string]any{"query": "q"}, &session))
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPost, "/v1/sessions/"+session.ID.String()+"/decisions", map[string]any{"decisions": []any{}}, nil))

	var table map[string]map[string]cognitive.ModePermissions
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/permissions", nil, &table))
	assert.False(t, table["modes"]["LEARNING"].Learn)
}

func TestFactWritesForbiddenWithoutLearnPermission(t *testing.T) {
	perms, err := cognitive.ParsePermissions([]byte(`
modes:
  ANSWER: {assert: true}
  INVESTIGATION: {search_web: true}
  VALIDATION: {}
  LEARNING: {learn: false}
  CODE_ANALYSIS: {}
`))
	require.NoError(t, err)
	s := newTestServer(t, perms)

	ctx := context.Background()
	facts := service.NewFactService(s.ledger, zap.NewNop())
	candidate, err := facts.CreateCandidate(ctx, domain.CandidateFact{
		Triple: domain.Triple{Subject: "Python", Relation: "foi criado em", Object: "1991"},
		Source: domain.SourceRef{Type: domain.SourceUser, Identifier: "alice"},
	})
	require.NoError(t, err)
	a, err := facts.CreateCandidate(ctx, domain.CandidateFact{
		Triple: domain.Triple{Subject: "Go", Relation: "é", Object: "compilada"},
		Source: domain.SourceRef{Type: domain.SourceUser, Identifier: "alice"},
	})
	require.NoError(t, err)
	b, err := facts.CreateCandidate(ctx, domain.CandidateFact{
		Triple: domain.Triple{Subject: "Go", Relation: "é", Object: "interpretada"},
		Source: domain.SourceRef{Type: domain.SourceUser, Identifier: "alice"},
	})
	require.NoError(t, err)
	_, err = facts.Validate(ctx, a.ID, "alice", 0.95)
	require.NoError(t, err)
	_, err = facts.Validate(ctx, b.ID, "alice", 0.90)
	require.NoError(t, err)

	id := candidate.ID.String()
	writes := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/v1/facts", map[string]string{"subject": "Rust", "relation": "tem", "object": "traits"}},
		{http.MethodPost, "/v1/facts/" + id + "/validate", map[string]float64{"confidence": 0.95}},
		{http.MethodPost, "/v1/facts/" + id + "/reject", map[string]string{"reason": "no"}},
		{http.MethodPost, "/v1/facts/" + id + "/deprecate", map[string]string{"reason": "no"}},
		{http.MethodPut, "/v1/facts/" + id + "/confidence", map[string]any{"confidence": 0.5}},
		{http.MethodPatch, "/v1/facts/" + id, map[string]string{"object": "1989"}},
	}
	for _, w := range writes {
		assert.Equal(t, http.StatusForbidden, s.do(w.method, w.path, w.body, nil), "%s %s", w.method, w.path)
	}

	var got domain.Fact
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/facts/"+id, nil, &got))
	assert.Equal(t, domain.FactStatusCandidate, got.Status)
	assert.Equal(t, "1991", got.Object)
	assert.Equal(t, 1, got.Version)

	var detected struct {
		Conflicts []domain.FactConflict `json:"conflicts"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/conflicts/detect", nil, &detected))
	require.Len(t, detected.Conflicts, 1)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost,
		"/v1/conflicts/"+detected.Conflicts[0].ID.String()+"/resolve", map[string]string{"resolution": "KEEP_FACT_A"}, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/facts/"+b.ID.String(), nil, &got))
	assert.Equal(t, domain.FactStatusValidated, got.Status)
}
