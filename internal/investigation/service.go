package investigation

import (
	"context"
	"strings"
	"time"

	"github.com/anacreon-labs/factledger/internal/domain"
	"go.uber.org/zap"
)

// Service turns a web search into unpersisted WEB candidates. Nothing it
// produces reaches the ledger without review.
type Service struct {
	searcher domain.WebSearcher
	logger   *zap.Logger
}

func NewService(searcher domain.WebSearcher, logger *zap.Logger) *Service {
	return &Service{searcher: searcher, logger: logger}
}

func (s *Service) Investigate(ctx context.Context, query string) (*domain.InvestigationResult, error) {
	result := &domain.InvestigationResult{
		Query:     query,
		StartedAt: time.Now().UTC(),
	}

	found, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	completed := time.Now().UTC()
	result.CompletedAt = &completed

	if !found.Success {
		result.Error = found.Error
		if result.Error == "" {
			result.Error = "no information found"
		}
		return result, nil
	}

	result.Success = true
	result.SourceName = found.SourceName
	result.SourceURL = found.SourceURL
	result.RawText = rawText(found)

	for _, sentence := range ExtractFactSentences(result.RawText) {
		triple, ok := ParseTriple(sentence)
		if !ok {
			continue
		}
		result.CandidateFacts = append(result.CandidateFacts, domain.CandidateFact{
			Triple: triple,
			Source: domain.SourceRef{
				Type:       domain.SourceWeb,
				Identifier: found.SourceName,
				URL:        found.SourceURL,
				RawContent: sentence,
			},
		})
	}

	s.logger.Info("investigation complete",
		zap.String("query", query),
		zap.String("source", found.SourceName),
		zap.Int("candidates", len(result.CandidateFacts)))

	return result, nil
}

func rawText(r *domain.SearchResult) string {
	parts := make([]string, 0, 2+len(r.RelatedInfo))
	if r.Summary != "" {
		parts = append(parts, ensurePeriod(r.Summary))
	}
	if r.Definition != "" {
		parts = append(parts, ensurePeriod(r.Definition))
	}
	for _, info := range r.RelatedInfo {
		parts = append(parts, ensurePeriod(info))
	}
	return strings.Join(parts, " ")
}

func ensurePeriod(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}
