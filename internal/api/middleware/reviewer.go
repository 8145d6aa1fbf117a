package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/anacreon-labs/factledger/internal/domain"
)

type contextKey string

const (
	// ReviewerHeader names the human behind a request. Every ledger
	// mutation records it as changed_by.
	ReviewerHeader = "X-Reviewer"
	reviewerKey    = contextKey("reviewer")
)

// ReviewerFromContext returns the reviewer set by Reviewer, or "".
func ReviewerFromContext(ctx context.Context) string {
	r, _ := ctx.Value(reviewerKey).(string)
	return r
}

// Reviewer stores the X-Reviewer header in the request context, falling
// back to defaultReviewer when it is absent.
func Reviewer(defaultReviewer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reviewer := strings.TrimSpace(r.Header.Get(ReviewerHeader))
			if reviewer == "" {
				reviewer = defaultReviewer
			}
			reviewer = domain.TruncateRunes(reviewer, domain.MaxActorLen)
			ctx := context.WithValue(r.Context(), reviewerKey, reviewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
