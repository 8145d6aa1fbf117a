package investigation

import (
	"context"
	"fmt"
	"testing"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockWebSearcher struct {
	mock.Mock
}

func (m *MockWebSearcher) Search(ctx context.Context, query string) (*domain.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchResult), args.Error(1)
}

func TestService_InvestigateBuildsWebCandidates(t *testing.T) {
	searcher := new(MockWebSearcher)
	searcher.On("Search", mock.Anything, "Python").Return(&domain.SearchResult{
		Query:      "Python",
		Success:    true,
		Summary:    "Python é uma linguagem de programação de alto nível. Criada nos anos noventa",
		SourceName: "Wikipedia",
		SourceURL:  "https://pt.wikipedia.org/wiki/Python",
		RelatedInfo: []string{
			"Python tem tipagem dinâmica e forte",
			"curto",
		},
	}, nil)

	svc := NewService(searcher, zap.NewNop())
	result, err := svc.Investigate(context.Background(), "Python")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotNil(t, result.CompletedAt)
	require.Len(t, result.CandidateFacts, 2)

	first := result.CandidateFacts[0]
	assert.Equal(t, domain.Triple{Subject: "Python", Relation: "é", Object: "Uma linguagem de programação de alto nível"}, first.Triple)
	assert.Equal(t, domain.SourceWeb, first.Source.Type)
	assert.Equal(t, "Wikipedia", first.Source.Identifier)
	assert.Equal(t, "https://pt.wikipedia.org/wiki/Python", first.Source.URL)
	assert.Equal(t, "Python é uma linguagem de programação de alto nível.", first.Source.RawContent)

	second := result.CandidateFacts[1]
	assert.Equal(t, "tem", second.Relation)
	assert.Equal(t, "Tipagem dinâmica e forte", second.Object)
	searcher.AssertExpectations(t)
}

func TestService_InvestigateNothingFound(t *testing.T) {
	searcher := new(MockWebSearcher)
	searcher.On("Search", mock.Anything, "xyzzy").Return(&domain.SearchResult{Query: "xyzzy"}, nil)

	result, err := NewService(searcher, zap.NewNop()).Investigate(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no information found", result.Error)
	assert.Empty(t, result.CandidateFacts)
}

func TestService_InvestigatePropagatesUnavailable(t *testing.T) {
	searcher := new(MockWebSearcher)
	searcher.On("Search", mock.Anything, "Python").
		Return(nil, fmt.Errorf("%w: timeout", ErrInvestigationUnavailable))

	_, err := NewService(searcher, zap.NewNop()).Investigate(context.Background(), "Python")
	assert.ErrorIs(t, err, ErrInvestigationUnavailable)
}
