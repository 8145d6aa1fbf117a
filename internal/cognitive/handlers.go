package cognitive

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
)

const maxAnswerFacts = 5

// Turn is everything a mode handler knows about the current user turn.
type Turn struct {
	Intent     domain.Intent
	HasTrusted bool
}

// ModeHandler executes one cognitive mode. Handlers check their own
// permissions before acting.
type ModeHandler interface {
	Mode() domain.CognitiveMode
	Handle(ctx context.Context, turn Turn) (*domain.Response, error)
}

func modePtr(m domain.CognitiveMode) *domain.CognitiveMode {
	return &m
}

// answerHandler asserts trusted knowledge and nothing else.
type answerHandler struct {
	facts *service.FactService
	perms PermissionTable
}

func (h *answerHandler) Mode() domain.CognitiveMode { return domain.ModeAnswer }

func (h *answerHandler) Handle(ctx context.Context, turn Turn) (*domain.Response, error) {
	if err := h.perms.Check(domain.ModeAnswer, ActionAssert); err != nil {
		return nil, err
	}
	subject := turn.Intent.Subject
	if subject == "" {
		return &domain.Response{
			Text:    "I did not understand the request. Could you rephrase it?",
			Mode:    domain.ModeAnswer,
			Success: false,
		}, nil
	}

	if !turn.HasTrusted {
		return &domain.Response{
			Text: fmt.Sprintf("I have no trusted knowledge about '%s'.\n\n"+
				"Options:\n1. I can investigate it on the web\n2. You can teach me directly\n", subject),
			Mode:           domain.ModeAnswer,
			Success:        true,
			RequiresAction: true,
			SuggestedMode:  modePtr(domain.ModeInvestigation),
		}, nil
	}

	var facts []domain.Fact
	var err error
	if h.perms.For(domain.ModeAnswer).RequiresHighConfidence {
		facts, err = h.facts.FindTrusted(ctx, subject)
	} else {
		status := domain.FactStatusValidated
		facts, err = h.facts.ListFacts(ctx, domain.FactFilter{Status: &status, Subject: subject})
	}
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return &domain.Response{
			Text:    fmt.Sprintf("I found no validated facts about '%s'.", subject),
			Mode:    domain.ModeAnswer,
			Success: false,
		}, nil
	}

	var sum float64
	for _, f := range facts {
		sum += f.Confidence
	}
	avg := sum / float64(len(facts))

	var b strings.Builder
	fmt.Fprintf(&b, "%s (average confidence: %.0f%%)\n\n", subject, avg*100)
	shown := facts
	if len(shown) > maxAnswerFacts {
		shown = shown[:maxAnswerFacts]
	}
	for _, f := range shown {
		fmt.Fprintf(&b, "- %s: %s\n", f.Relation, f.Object)
		fmt.Fprintf(&b, "  confidence %.0f%%", f.Confidence*100)
		if src := f.PrimarySource(); src != nil {
			fmt.Fprintf(&b, " | source %s", src.Type)
		}
		if f.ValidatedAt != nil {
			fmt.Fprintf(&b, " | validated %s", f.ValidatedAt.Format("02/01/2006"))
		}
		b.WriteString("\n")
	}

	return &domain.Response{
		Text:       b.String(),
		Mode:       domain.ModeAnswer,
		Success:    true,
		Confidence: avg,
		Facts:      facts,
	}, nil
}

// investigationHandler gathers external candidates. It never persists them.
type investigationHandler struct {
	investigator domain.Investigator
	perms        PermissionTable
}

func (h *investigationHandler) Mode() domain.CognitiveMode { return domain.ModeInvestigation }

func (h *investigationHandler) Handle(ctx context.Context, turn Turn) (*domain.Response, error) {
	if err := h.perms.Check(domain.ModeInvestigation, ActionSearchWeb); err != nil {
		return nil, err
	}
	query := turn.Intent.Subject
	if query == "" {
		query = turn.Intent.OriginalInput
	}

	result, err := h.investigator.Investigate(ctx, query)
	if err != nil {
		return &domain.Response{
			Text:    fmt.Sprintf("Investigation unavailable: %v", err),
			Mode:    domain.ModeInvestigation,
			Success: false,
		}, nil
	}
	if !result.Success {
		return &domain.Response{
			Text:          fmt.Sprintf("Investigation failed: %s", result.Error),
			Mode:          domain.ModeInvestigation,
			Success:       false,
			Investigation: result,
		}, nil
	}

	if len(result.CandidateFacts) == 0 {
		return &domain.Response{
			Text: fmt.Sprintf("I investigated '%s' but found no structured facts.\n\nSummary:\n%s\n\nSource: %s",
				query, result.RawText, result.SourceName),
			Mode:          domain.ModeInvestigation,
			Success:       true,
			Investigation: result,
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Investigation complete\n\nFound %d possible facts about '%s':\n\n", len(result.CandidateFacts), query)
	for i, c := range result.CandidateFacts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Triple)
	}
	fmt.Fprintf(&b, "\nSource: %s\n", result.SourceName)
	if result.SourceURL != "" {
		fmt.Fprintf(&b, "%s\n", result.SourceURL)
	}
	b.WriteString("\nThese are CANDIDATES, not validated facts. Review them before they are learned.")

	return &domain.Response{
		Text:           b.String(),
		Mode:           domain.ModeInvestigation,
		Success:        true,
		RequiresAction: true,
		SuggestedMode:  modePtr(domain.ModeValidation),
		CandidateFacts: result.CandidateFacts,
		Investigation:  result,
	}, nil
}

// validationHandler routes teaching statements into review. A taught
// triple becomes an unpersisted USER candidate inside a new session.
type validationHandler struct {
	facts      *service.FactService
	validation *service.ValidationService
}

func (h *validationHandler) Mode() domain.CognitiveMode { return domain.ModeValidation }

func (h *validationHandler) Handle(ctx context.Context, turn Turn) (*domain.Response, error) {
	in := turn.Intent
	triple := domain.Triple{Subject: in.Subject, Relation: in.Relation, Object: in.Object}

	if in.Type != domain.IntentTeaching || triple.Empty() {
		pending, err := h.facts.ListCandidates(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.Response{
			Text:           fmt.Sprintf("%d candidate facts are waiting for review. Submit decisions to a validation session to commit them.", len(pending)),
			Mode:           domain.ModeValidation,
			Success:        true,
			RequiresAction: len(pending) > 0,
			Facts:          pending,
		}, nil
	}

	candidate := domain.CandidateFact{
		Triple: triple,
		Source: domain.SourceRef{Type: domain.SourceUser, Identifier: "chat", RawContent: in.OriginalInput},
	}
	session, err := h.validation.StartSession(ctx, in.OriginalInput, []domain.CandidateFact{candidate})
	if err != nil {
		return nil, err
	}

	return &domain.Response{
		Text: fmt.Sprintf("Understood: %s\n\nThis is a CANDIDATE. Approve, reject or edit it to commit it to the knowledge base.",
			triple),
		Mode:           domain.ModeValidation,
		Success:        true,
		Confidence:     in.Confidence,
		RequiresAction: true,
		SuggestedMode:  modePtr(domain.ModeLearning),
		CandidateFacts: []domain.CandidateFact{candidate},
		SessionID:      &session.ID,
	}, nil
}

var codeBlock = regexp.MustCompile("```[\\w+#-]*\\s*([\\s\\S]*?)\\s*```")

const maxSnippet = 1000

// codeAnalysisHandler annotates code. Its output is a CodeInsight, never a
// Fact.
type codeAnalysisHandler struct {
	analyzer domain.CodeAnalyzer
}

func (h *codeAnalysisHandler) Mode() domain.CognitiveMode { return domain.ModeCodeAnalysis }

func (h *codeAnalysisHandler) Handle(ctx context.Context, turn Turn) (*domain.Response, error) {
	m := codeBlock.FindStringSubmatch(turn.Intent.OriginalInput)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return &domain.Response{
			Text:    "I found no code to analyze. Wrap it in ``` fences.",
			Mode:    domain.ModeCodeAnalysis,
			Success: false,
		}, nil
	}
	code := m[1]

	insight := h.analyzer.Analyze(code)
	insight.CodeSnippet = domain.TruncateRunes(insight.CodeSnippet, maxSnippet)

	var b strings.Builder
	b.WriteString("Code analysis\n\n")
	fmt.Fprintf(&b, "Language: %s\n", insight.Language)
	fmt.Fprintf(&b, "Complexity: %d\n\n", insight.Complexity)
	if len(insight.Issues) > 0 {
		fmt.Fprintf(&b, "Issues (%d):\n", len(insight.Issues))
		for _, issue := range insight.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		b.WriteString("\n")
	}
	if len(insight.Suggestions) > 0 {
		fmt.Fprintf(&b, "Suggestions (%d):\n", len(insight.Suggestions))
		for i, s := range insight.Suggestions {
			if i == maxAnswerFacts {
				break
			}
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return &domain.Response{
		Text:        b.String(),
		Mode:        domain.ModeCodeAnalysis,
		Success:     true,
		CodeInsight: insight,
	}, nil
}
