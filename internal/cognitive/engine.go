package cognitive

import (
	"context"
	"fmt"
	"strings"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine runs one user turn through detection, mode selection and the
// selected mode's handler.
type Engine struct {
	detector   domain.IntentDetector
	facts      *service.FactService
	validation *service.ValidationService
	perms      PermissionTable
	handlers   map[domain.CognitiveMode]ModeHandler
	logger     *zap.Logger
}

func NewEngine(
	detector domain.IntentDetector,
	facts *service.FactService,
	validation *service.ValidationService,
	investigator domain.Investigator,
	analyzer domain.CodeAnalyzer,
	perms PermissionTable,
	logger *zap.Logger,
) *Engine {
	e := &Engine{
		detector:   detector,
		facts:      facts,
		validation: validation,
		perms:      perms,
		handlers:   make(map[domain.CognitiveMode]ModeHandler),
		logger:     logger,
	}
	for _, h := range []ModeHandler{
		&answerHandler{facts: facts, perms: perms},
		&investigationHandler{investigator: investigator, perms: perms},
		&validationHandler{facts: facts, validation: validation},
		&codeAnalysisHandler{analyzer: analyzer},
	} {
		e.handlers[h.Mode()] = h
	}
	return e
}

func (e *Engine) Permissions() PermissionTable {
	return e.perms
}

// Process handles one turn. Failures come back as a plain-text response
// carrying the concrete reason; Process itself never fails.
func (e *Engine) Process(ctx context.Context, input string) *domain.Response {
	if strings.TrimSpace(input) == "" {
		return &domain.Response{
			Text:    "Please send a non-empty message.",
			Mode:    domain.ModeAnswer,
			Success: false,
		}
	}

	intent := e.detector.Detect(input)

	hasTrusted, err := e.facts.HasTrustedKnowledge(ctx, intent.Subject)
	if err != nil {
		e.logger.Error("trusted knowledge check failed", zap.Error(err))
		return e.failure(domain.ModeAnswer, &intent, err)
	}

	mode := SelectMode(intent.Type, hasTrusted)
	e.logger.Debug("mode selected",
		zap.String("intent", string(intent.Type)),
		zap.String("subject", intent.Subject),
		zap.Bool("has_trusted", hasTrusted),
		zap.String("mode", string(mode)))

	handler, ok := e.handlers[mode]
	if !ok {
		return e.failure(mode, &intent, fmt.Errorf("no handler for mode %s", mode))
	}

	resp, err := handler.Handle(ctx, Turn{Intent: intent, HasTrusted: hasTrusted})
	if err != nil {
		e.logger.Warn("mode handler failed", zap.String("mode", string(mode)), zap.Error(err))
		return e.failure(mode, &intent, err)
	}
	resp.Intent = &intent
	return resp
}

func (e *Engine) failure(mode domain.CognitiveMode, intent *domain.Intent, err error) *domain.Response {
	return &domain.Response{
		Text:    fmt.Sprintf("Could not process the request: %v", err),
		Mode:    mode,
		Success: false,
		Intent:  intent,
	}
}

// CanLearn is the gate every reviewer-driven ledger write passes through,
// whether it arrives as a review batch or as a direct fact mutation.
func (e *Engine) CanLearn() error {
	return e.perms.Check(domain.ModeLearning, ActionLearn)
}

// CommitDecisions persists a reviewer's decisions. It runs in LEARNING mode
// and fails with ErrActionNotPermitted unless that mode may learn.
func (e *Engine) CommitDecisions(ctx context.Context, sessionID uuid.UUID, decisions []domain.FactDecision, userID string) (*domain.ValidationResult, error) {
	if err := e.CanLearn(); err != nil {
		return nil, err
	}
	return e.validation.ProcessDecisions(ctx, sessionID, decisions, userID)
}
