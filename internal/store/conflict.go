package store

import (
	"context"
	"fmt"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const conflictColumns = `id, subject, relation, fact_a_id, fact_b_id, confidence_difference, detected_at, is_resolved, resolved_at, resolution, resolution_notes`

func scanConflict(row pgx.Row, c *domain.FactConflict) error {
	var resolution *string
	err := row.Scan(&c.ID, &c.Subject, &c.Relation, &c.FactAID, &c.FactBID, &c.ConfidenceDifference,
		&c.DetectedAt, &c.IsResolved, &c.ResolvedAt, &resolution, &c.ResolutionNotes)
	if err != nil {
		return err
	}
	if resolution != nil {
		r := domain.ConflictResolution(*resolution)
		c.Resolution = &r
	}
	return nil
}

func (l *PostgresLedger) CreateConflict(ctx context.Context, c *domain.FactConflict) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := l.db.QueryRow(ctx,
		`INSERT INTO fact_conflicts (id, subject, relation, fact_a_id, fact_b_id, confidence_difference, is_resolved)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		 RETURNING detected_at`,
		c.ID, c.Subject, c.Relation, c.FactAID, c.FactBID, c.ConfidenceDifference,
	).Scan(&c.DetectedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: conflict between %s and %s", ErrDuplicate, c.FactAID, c.FactBID)
		}
		return fmt.Errorf("create conflict: %w", err)
	}
	return nil
}

func (l *PostgresLedger) GetConflict(ctx context.Context, id uuid.UUID) (*domain.FactConflict, error) {
	return l.getConflict(ctx, id, false)
}

func (l *PostgresLedger) GetConflictForUpdate(ctx context.Context, id uuid.UUID) (*domain.FactConflict, error) {
	return l.getConflict(ctx, id, true)
}

func (l *PostgresLedger) getConflict(ctx context.Context, id uuid.UUID, lock bool) (*domain.FactConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM fact_conflicts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c := &domain.FactConflict{}
	if err := scanConflict(l.db.QueryRow(ctx, query, id), c); err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}

func (l *PostgresLedger) ConflictExists(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM fact_conflicts
		   WHERE (fact_a_id = $1 AND fact_b_id = $2) OR (fact_a_id = $2 AND fact_b_id = $1)
		 )`,
		a, b,
	).Scan(&exists)
	return exists, err
}

func (l *PostgresLedger) UpdateConflict(ctx context.Context, c *domain.FactConflict) error {
	var resolution *string
	if c.Resolution != nil {
		r := string(*c.Resolution)
		resolution = &r
	}
	tag, err := l.db.Exec(ctx,
		`UPDATE fact_conflicts
		 SET is_resolved = $1, resolved_at = $2, resolution = $3, resolution_notes = $4
		 WHERE id = $5`,
		c.IsResolved, c.ResolvedAt, resolution, c.ResolutionNotes, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) ListConflicts(ctx context.Context, unresolvedOnly bool) ([]domain.FactConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM fact_conflicts`
	if unresolvedOnly {
		query += ` WHERE is_resolved = FALSE`
	}
	query += ` ORDER BY detected_at DESC, id`

	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []domain.FactConflict
	for rows.Next() {
		var c domain.FactConflict
		if err := scanConflict(rows, &c); err != nil {
			return nil, fmt.Errorf("scan conflict row: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}
