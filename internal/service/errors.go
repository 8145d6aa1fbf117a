package service

import (
	"errors"
	"fmt"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/store"
)

var (
	ErrInvalidConfidence = domain.ErrConfidenceOutOfRange
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrNotFound          = errors.New("not found")
	ErrFactNotFound      = fmt.Errorf("fact %w", ErrNotFound)
	ErrConflictNotFound  = fmt.Errorf("conflict %w", ErrNotFound)
	ErrSessionNotFound   = fmt.Errorf("validation session %w", ErrNotFound)
	ErrAlreadyResolved   = errors.New("conflict already resolved")
	ErrInvalidResolution = errors.New("invalid conflict resolution")
	ErrInvalidSourceType = errors.New("invalid source type")
	ErrInvalidDecision   = errors.New("invalid decision")
	ErrEmptyTriple       = errors.New("subject, relation and object are required")
	ErrConcurrentUpdate  = errors.New("record was modified concurrently")
	ErrFieldTooLong      = domain.ErrFieldTooLong
)

// storeErr translates store sentinels into service errors. notFound is the
// specific not-found error for the entity being read.
func storeErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFound
	case errors.Is(err, store.ErrVersionConflict):
		return ErrConcurrentUpdate
	default:
		return err
	}
}
