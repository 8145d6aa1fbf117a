package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const factColumns = `id, subject, relation, object, confidence, status, version, approved_by, created_at, validated_at, deprecated_at, deprecation_reason`

func scanFact(row pgx.Row, f *domain.Fact) error {
	return row.Scan(&f.ID, &f.Subject, &f.Relation, &f.Object, &f.Confidence, &f.Status, &f.Version,
		&f.ApprovedBy, &f.CreatedAt, &f.ValidatedAt, &f.DeprecatedAt, &f.DeprecationReason)
}

func (l *PostgresLedger) CreateFact(ctx context.Context, f *domain.Fact) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return l.db.QueryRow(ctx,
		`INSERT INTO facts (id, subject, relation, object, confidence, status, version, approved_by, validated_at, deprecated_at, deprecation_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		f.ID, f.Subject, f.Relation, f.Object, f.Confidence, f.Status, f.Version, f.ApprovedBy, f.ValidatedAt, f.DeprecatedAt, f.DeprecationReason,
	).Scan(&f.CreatedAt)
}

func (l *PostgresLedger) GetFact(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return l.getFact(ctx, id, false)
}

func (l *PostgresLedger) GetFactForUpdate(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return l.getFact(ctx, id, true)
}

func (l *PostgresLedger) getFact(ctx context.Context, id uuid.UUID, lock bool) (*domain.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	f := &domain.Fact{}
	if err := scanFact(l.db.QueryRow(ctx, query, id), f); err != nil {
		return nil, mapNoRows(err)
	}

	sources, err := l.ListSources(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Sources = sources
	return f, nil
}

func (l *PostgresLedger) UpdateFact(ctx context.Context, f *domain.Fact, expectedVersion int) error {
	tag, err := l.db.Exec(ctx,
		`UPDATE facts
		 SET subject = $1, relation = $2, object = $3, confidence = $4, status = $5, version = $6,
		     approved_by = $7, validated_at = $8, deprecated_at = $9, deprecation_reason = $10
		 WHERE id = $11 AND version = $12`,
		f.Subject, f.Relation, f.Object, f.Confidence, f.Status, f.Version,
		f.ApprovedBy, f.ValidatedAt, f.DeprecatedAt, f.DeprecationReason,
		f.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update fact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM facts WHERE id = $1)`, f.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (l *PostgresLedger) ListFacts(ctx context.Context, filter domain.FactFilter) ([]domain.Fact, error) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("lower(subject) = lower($%d)", len(args)+1))
		args = append(args, filter.Subject)
	}

	query := `SELECT ` + factColumns + ` FROM facts`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, filter.Limit)
	}

	return l.queryFacts(ctx, query, args...)
}

func (l *PostgresLedger) FindTrusted(ctx context.Context, subject string, threshold float64) ([]domain.Fact, error) {
	return l.queryFacts(ctx,
		`SELECT `+factColumns+` FROM facts
		 WHERE lower(subject) = lower($1) AND status = $2 AND confidence >= $3
		 ORDER BY confidence DESC, validated_at DESC`,
		subject, string(domain.FactStatusValidated), threshold,
	)
}

func (l *PostgresLedger) HasTrusted(ctx context.Context, subject string, threshold float64) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM facts WHERE lower(subject) = lower($1) AND status = $2 AND confidence >= $3
		 )`,
		subject, string(domain.FactStatusValidated), threshold,
	).Scan(&exists)
	return exists, err
}

func (l *PostgresLedger) queryFacts(ctx context.Context, query string, args ...any) ([]domain.Fact, error) {
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []domain.Fact
	for rows.Next() {
		var f domain.Fact
		if err := scanFact(rows, &f); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fact rows: %w", err)
	}

	if err := l.attachSources(ctx, facts); err != nil {
		return nil, err
	}
	return facts, nil
}

// attachSources loads sources for all facts in one query.
func (l *PostgresLedger) attachSources(ctx context.Context, facts []domain.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	ids := make([]string, len(facts))
	index := make(map[uuid.UUID]int, len(facts))
	for i := range facts {
		ids[i] = facts[i].ID.String()
		index[facts[i].ID] = i
	}

	rows, err := l.db.Query(ctx,
		`SELECT `+sourceColumns+` FROM fact_sources
		 WHERE fact_id = ANY($1::uuid[])
		 ORDER BY collected_at, id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.FactSource
		if err := scanSource(rows, &s); err != nil {
			return fmt.Errorf("scan source row: %w", err)
		}
		if i, ok := index[s.FactID]; ok {
			facts[i].Sources = append(facts[i].Sources, s)
		}
	}
	return rows.Err()
}

const sourceColumns = `id, fact_id, type, identifier, url, trust_weight, collected_at, raw_content`

func scanSource(row pgx.Row, s *domain.FactSource) error {
	return row.Scan(&s.ID, &s.FactID, &s.Type, &s.Identifier, &s.URL, &s.TrustWeight, &s.CollectedAt, &s.RawContent)
}

func (l *PostgresLedger) AddSource(ctx context.Context, s *domain.FactSource) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := l.db.QueryRow(ctx,
		`INSERT INTO fact_sources (id, fact_id, type, identifier, url, trust_weight, raw_content)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING collected_at`,
		s.ID, s.FactID, s.Type, s.Identifier, s.URL, s.TrustWeight, s.RawContent,
	).Scan(&s.CollectedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: fact %s", ErrNotFound, s.FactID)
	}
	return err
}

func (l *PostgresLedger) ListSources(ctx context.Context, factID uuid.UUID) ([]domain.FactSource, error) {
	rows, err := l.db.Query(ctx,
		`SELECT `+sourceColumns+` FROM fact_sources WHERE fact_id = $1 ORDER BY collected_at, id`,
		factID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.FactSource
	for rows.Next() {
		var s domain.FactSource
		if err := scanSource(rows, &s); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (l *PostgresLedger) AppendHistory(ctx context.Context, h *domain.FactHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}

	var prevSubject, prevRelation, prevObject, prevStatus *string
	var prevConfidence *float64
	if p := h.Previous; p != nil {
		status := string(p.Status)
		prevSubject, prevRelation, prevObject = &p.Subject, &p.Relation, &p.Object
		prevConfidence, prevStatus = &p.Confidence, &status
	}

	err := l.db.QueryRow(ctx,
		`INSERT INTO fact_history (id, fact_id, version,
		   prev_subject, prev_relation, prev_object, prev_confidence, prev_status,
		   new_subject, new_relation, new_object, new_confidence, new_status,
		   changed_by, reason, change_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING changed_at`,
		h.ID, h.FactID, h.Version,
		prevSubject, prevRelation, prevObject, prevConfidence, prevStatus,
		h.New.Subject, h.New.Relation, h.New.Object, h.New.Confidence, string(h.New.Status),
		h.ChangedBy, h.Reason, string(h.ChangeType),
	).Scan(&h.ChangedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: history for fact %s version %d", ErrDuplicate, h.FactID, h.Version)
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (l *PostgresLedger) ListHistory(ctx context.Context, factID uuid.UUID) ([]domain.FactHistory, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id, fact_id, version,
		        prev_subject, prev_relation, prev_object, prev_confidence, prev_status,
		        new_subject, new_relation, new_object, new_confidence, new_status,
		        changed_by, changed_at, reason, change_type
		 FROM fact_history WHERE fact_id = $1
		 ORDER BY version`,
		factID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []domain.FactHistory
	for rows.Next() {
		var h domain.FactHistory
		var prevSubject, prevRelation, prevObject, prevStatus *string
		var prevConfidence *float64
		var newStatus, changeType string
		err := rows.Scan(&h.ID, &h.FactID, &h.Version,
			&prevSubject, &prevRelation, &prevObject, &prevConfidence, &prevStatus,
			&h.New.Subject, &h.New.Relation, &h.New.Object, &h.New.Confidence, &newStatus,
			&h.ChangedBy, &h.ChangedAt, &h.Reason, &changeType)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		h.New.Status = domain.FactStatus(newStatus)
		h.ChangeType = domain.ChangeType(changeType)
		if prevStatus != nil {
			h.Previous = &domain.FactSnapshot{
				Subject:    deref(prevSubject),
				Relation:   deref(prevRelation),
				Object:     deref(prevObject),
				Confidence: derefFloat(prevConfidence),
				Status:     domain.FactStatus(*prevStatus),
			}
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
