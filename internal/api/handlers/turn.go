package handlers

import (
	"net/http"
	"strings"

	"github.com/anacreon-labs/factledger/internal/cognitive"
	"go.uber.org/zap"
)

type TurnHandler struct {
	engine *cognitive.Engine
	logger *zap.Logger
}

func NewTurnHandler(engine *cognitive.Engine, logger *zap.Logger) *TurnHandler {
	return &TurnHandler{engine: engine, logger: logger}
}

type turnRequest struct {
	Input string `json:"input"`
}

// Process runs one conversational turn. Engine failures are part of the
// response body, so any decoded request gets a 200.
func (h *TurnHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "process turn")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Process(r.Context(), req.Input))
}

// Permissions exposes the active permission table.
func (h *TurnHandler) Permissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": h.engine.Permissions().Modes()})
}
