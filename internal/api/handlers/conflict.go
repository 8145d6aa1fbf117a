package handlers

import (
	"fmt"
	"net/http"

	"github.com/anacreon-labs/factledger/internal/api/middleware"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"go.uber.org/zap"
)

type ConflictHandler struct {
	svc    *service.ConflictService
	gate   learnGate
	logger *zap.Logger
}

func NewConflictHandler(svc *service.ConflictService, gate learnGate, logger *zap.Logger) *ConflictHandler {
	return &ConflictHandler{svc: svc, gate: gate, logger: logger}
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	Notes      string `json:"notes,omitempty"`
}

type listConflictsResponse struct {
	Conflicts []domain.FactConflict `json:"conflicts"`
	Count     int                   `json:"count"`
}

func conflictList(cs []domain.FactConflict) listConflictsResponse {
	if cs == nil {
		cs = []domain.FactConflict{}
	}
	return listConflictsResponse{Conflicts: cs, Count: len(cs)}
}

// Detect scans validated facts and returns every unresolved conflict.
func (h *ConflictHandler) Detect(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.svc.DetectConflicts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "detect conflicts")
		return
	}
	writeJSON(w, http.StatusOK, conflictList(conflicts))
}

// List returns unresolved conflicts unless ?unresolved=false.
func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	unresolved, err := boolQuery(r, "unresolved", true)
	if err != nil {
		writeServiceError(w, h.logger, err, "list conflicts")
		return
	}
	conflicts, err := h.svc.ListConflicts(r.Context(), unresolved)
	if err != nil {
		writeServiceError(w, h.logger, err, "list conflicts")
		return
	}
	writeJSON(w, http.StatusOK, conflictList(conflicts))
}

// GetByID answers JSON, or the plain-text review card with ?format=text.
func (h *ConflictHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "get conflict")
		return
	}
	c, err := h.svc.GetConflict(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get conflict")
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, service.FormatConflict(c))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Resolve rewrites fact statuses, so it needs the learn permission.
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.CanLearn(); err != nil {
		writeServiceError(w, h.logger, err, "resolve conflict")
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err, "resolve conflict")
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "resolve conflict")
		return
	}

	c, err := h.svc.ResolveConflict(r.Context(), id, domain.ConflictResolution(req.Resolution),
		middleware.ReviewerFromContext(r.Context()), req.Notes)
	if err != nil {
		writeServiceError(w, h.logger, err, "resolve conflict")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
