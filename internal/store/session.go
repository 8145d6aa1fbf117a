package store

import (
	"context"
	"fmt"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, query, started_at, completed_at, candidates_presented, facts_approved, facts_rejected, facts_edited, was_completed, user_id`

func scanSession(row pgx.Row, s *domain.ValidationSession) error {
	return row.Scan(&s.ID, &s.Query, &s.StartedAt, &s.CompletedAt, &s.CandidatesPresented,
		&s.FactsApproved, &s.FactsRejected, &s.FactsEdited, &s.WasCompleted, &s.UserID)
}

func (l *PostgresLedger) CreateSession(ctx context.Context, s *domain.ValidationSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return l.db.QueryRow(ctx,
		`INSERT INTO validation_sessions (id, query, candidates_presented, was_completed, user_id)
		 VALUES ($1, $2, $3, FALSE, $4)
		 RETURNING started_at`,
		s.ID, s.Query, s.CandidatesPresented, s.UserID,
	).Scan(&s.StartedAt)
}

func (l *PostgresLedger) GetSession(ctx context.Context, id uuid.UUID) (*domain.ValidationSession, error) {
	return l.getSession(ctx, id, false)
}

func (l *PostgresLedger) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*domain.ValidationSession, error) {
	return l.getSession(ctx, id, true)
}

func (l *PostgresLedger) getSession(ctx context.Context, id uuid.UUID, lock bool) (*domain.ValidationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM validation_sessions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	s := &domain.ValidationSession{}
	if err := scanSession(l.db.QueryRow(ctx, query, id), s); err != nil {
		return nil, mapNoRows(err)
	}
	return s, nil
}

func (l *PostgresLedger) UpdateSession(ctx context.Context, s *domain.ValidationSession) error {
	tag, err := l.db.Exec(ctx,
		`UPDATE validation_sessions
		 SET completed_at = $1, facts_approved = $2, facts_rejected = $3, facts_edited = $4,
		     was_completed = $5, user_id = $6
		 WHERE id = $7`,
		s.CompletedAt, s.FactsApproved, s.FactsRejected, s.FactsEdited, s.WasCompleted, s.UserID, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) ListSessions(ctx context.Context, userID *string) ([]domain.ValidationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM validation_sessions`
	var args []any
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ValidationSession
	for rows.Next() {
		var s domain.ValidationSession
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
