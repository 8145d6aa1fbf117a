package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anacreon-labs/factledger/internal/api/middleware"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FactHandler serves /v1/facts. Every mutation passes the learn gate first.
type FactHandler struct {
	svc    *service.FactService
	gate   learnGate
	logger *zap.Logger
}

func NewFactHandler(svc *service.FactService, gate learnGate, logger *zap.Logger) *FactHandler {
	return &FactHandler{svc: svc, gate: gate, logger: logger}
}

// allowed writes the 403 itself when learning is switched off.
func (h *FactHandler) allowed(w http.ResponseWriter, op string) bool {
	if err := h.gate.CanLearn(); err != nil {
		writeServiceError(w, h.logger, err, op)
		return false
	}
	return true
}

type createCandidateRequest struct {
	Subject  string           `json:"subject"`
	Relation string           `json:"relation"`
	Object   string           `json:"object"`
	Source   domain.SourceRef `json:"source"`
}

type validateRequest struct {
	Confidence *float64 `json:"confidence,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type confidenceRequest struct {
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

type editRequest struct {
	Subject  *string `json:"subject,omitempty"`
	Relation *string `json:"relation,omitempty"`
	Object   *string `json:"object,omitempty"`
}

type listFactsResponse struct {
	Facts []domain.Fact `json:"facts"`
	Count int           `json:"count"`
}

// Create stores a CANDIDATE. It never validates.
func (h *FactHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, "create candidate") {
		return
	}
	var req createCandidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "create candidate")
		return
	}
	if req.Source.Type == "" {
		req.Source.Type = domain.SourceUser
	}

	fact, err := h.svc.CreateCandidate(r.Context(), domain.CandidateFact{
		Triple: domain.Triple{Subject: req.Subject, Relation: req.Relation, Object: req.Object},
		Source: req.Source,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "create candidate")
		return
	}
	writeJSON(w, http.StatusCreated, fact)
}

// List accepts ?status=, ?subject= and ?limit=.
func (h *FactHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter domain.FactFilter
	if s := strings.ToUpper(r.URL.Query().Get("status")); s != "" {
		if !domain.ValidFactStatus(s) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", s))
			return
		}
		status := domain.FactStatus(s)
		filter.Status = &status
	}
	filter.Subject = r.URL.Query().Get("subject")
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		writeServiceError(w, h.logger, err, "list facts")
		return
	}
	filter.Limit = limit

	facts, err := h.svc.ListFacts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "list facts")
		return
	}
	writeJSON(w, http.StatusOK, listFactsResponse{Facts: nonNil(facts), Count: len(facts)})
}

func (h *FactHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	facts, err := h.svc.ListCandidates(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list candidates")
		return
	}
	writeJSON(w, http.StatusOK, listFactsResponse{Facts: nonNil(facts), Count: len(facts)})
}

// Trusted returns the facts the engine may assert about ?subject=.
func (h *FactHandler) Trusted(w http.ResponseWriter, r *http.Request) {
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	facts, err := h.svc.FindTrusted(r.Context(), subject)
	if err != nil {
		writeServiceError(w, h.logger, err, "find trusted")
		return
	}
	writeJSON(w, http.StatusOK, listFactsResponse{Facts: nonNil(facts), Count: len(facts)})
}

func (h *FactHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "get fact")
		return
	}
	fact, err := h.svc.GetFact(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get fact")
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (h *FactHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "fact history")
		return
	}
	history, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "fact history")
		return
	}
	if history == nil {
		history = []domain.FactHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fact_id": id, "history": history})
}

func (h *FactHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, "validate fact") {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "validate fact")
		return
	}
	var req validateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, h.logger, err, "validate fact")
			return
		}
	}
	confidence := domain.DefaultValidationConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	fact, err := h.svc.Validate(r.Context(), id, middleware.ReviewerFromContext(r.Context()), confidence)
	if err != nil {
		writeServiceError(w, h.logger, err, "validate fact")
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (h *FactHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, "reject fact", h.svc.Reject)
}

func (h *FactHandler) Deprecate(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, "deprecate fact", h.svc.Deprecate)
}

func (h *FactHandler) withReason(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, id uuid.UUID, by, reason string) (*domain.Fact, error),
) {
	if !h.allowed(w, op) {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, op)
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, h.logger, err, op)
			return
		}
	}
	fact, err := apply(r.Context(), id, middleware.ReviewerFromContext(r.Context()), req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err, op)
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (h *FactHandler) UpdateConfidence(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, "update confidence") {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "update confidence")
		return
	}
	var req confidenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "update confidence")
		return
	}
	fact, err := h.svc.UpdateConfidence(r.Context(), id, req.Confidence, middleware.ReviewerFromContext(r.Context()), req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err, "update confidence")
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

// Edit changes the content of a CANDIDATE.
func (h *FactHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, "edit candidate") {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "edit candidate")
		return
	}
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "edit candidate")
		return
	}
	fact, err := h.svc.EditCandidate(r.Context(), id, service.ContentEdit{
		Subject:  req.Subject,
		Relation: req.Relation,
		Object:   req.Object,
	}, middleware.ReviewerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "edit candidate")
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func nonNil(facts []domain.Fact) []domain.Fact {
	if facts == nil {
		return []domain.Fact{}
	}
	return facts
}
