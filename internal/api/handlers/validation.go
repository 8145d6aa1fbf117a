package handlers

import (
	"net/http"

	"github.com/anacreon-labs/factledger/internal/api/middleware"
	"github.com/anacreon-labs/factledger/internal/cognitive"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"go.uber.org/zap"
)

// ValidationHandler serves review sessions. Decisions go through the engine
// so the LEARNING permission is enforced.
type ValidationHandler struct {
	svc    *service.ValidationService
	engine *cognitive.Engine
	logger *zap.Logger
}

func NewValidationHandler(svc *service.ValidationService, engine *cognitive.Engine, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{svc: svc, engine: engine, logger: logger}
}

type startSessionRequest struct {
	Query      string                 `json:"query"`
	Candidates []domain.CandidateFact `json:"candidates"`
}

type decisionsRequest struct {
	Decisions []domain.FactDecision `json:"decisions"`
}

type decisionsResponse struct {
	*domain.ValidationResult
	Summary string `json:"summary"`
}

type partialDecisionsResponse struct {
	Error  string            `json:"error"`
	Result decisionsResponse `json:"result"`
}

func (h *ValidationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "start session")
		return
	}
	session, err := h.svc.StartSession(r.Context(), req.Query, req.Candidates)
	if err != nil {
		writeServiceError(w, h.logger, err, "start session")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// List accepts ?user_id= to narrow to one reviewer.
func (h *ValidationHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), optionalString(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "list sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.ValidationSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (h *ValidationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "get session")
		return
	}
	session, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get session")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*domain.ValidationSession
		State domain.SessionState `json:"state"`
	}{session, session.State()})
}

// Decide commits a batch of decisions. Per-decision failures come back in
// the result's errors list with a 200.
func (h *ValidationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "process decisions")
		return
	}
	var req decisionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "process decisions")
		return
	}

	result, err := h.engine.CommitDecisions(r.Context(), id, req.Decisions, middleware.ReviewerFromContext(r.Context()))
	if err != nil && result != nil {
		// The decisions are committed; only closing the session failed.
		writeJSON(w, statusFor(err), partialDecisionsResponse{
			Error:  err.Error(),
			Result: decisionsResponse{ValidationResult: result, Summary: result.Summary()},
		})
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "process decisions")
		return
	}
	writeJSON(w, http.StatusOK, decisionsResponse{ValidationResult: result, Summary: result.Summary()})
}

func (h *ValidationHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "abandon session")
		return
	}
	session, err := h.svc.AbandonSession(r.Context(), id, middleware.ReviewerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "abandon session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Stats aggregates over all sessions, or one reviewer's with ?user_id=.
func (h *ValidationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context(), optionalString(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "validation stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
