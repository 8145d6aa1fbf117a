package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
)

// MemoryLedger is an in-process domain.Ledger. Transactions snapshot the
// whole dataset and restore it when fn fails, so atomicity matches the
// Postgres ledger. Nothing survives a restart.
type MemoryLedger struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{data: newMemData()}
}

type memData struct {
	facts         map[uuid.UUID]domain.Fact
	factOrder     []uuid.UUID
	sources       map[uuid.UUID][]domain.FactSource
	history       map[uuid.UUID][]domain.FactHistory
	conflicts     map[uuid.UUID]domain.FactConflict
	conflictOrder []uuid.UUID
	sessions      map[uuid.UUID]domain.ValidationSession
	sessionOrder  []uuid.UUID
}

func newMemData() *memData {
	return &memData{
		facts:     make(map[uuid.UUID]domain.Fact),
		sources:   make(map[uuid.UUID][]domain.FactSource),
		history:   make(map[uuid.UUID][]domain.FactHistory),
		conflicts: make(map[uuid.UUID]domain.FactConflict),
		sessions:  make(map[uuid.UUID]domain.ValidationSession),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for id, f := range d.facts {
		c.facts[id] = copyFact(f)
	}
	c.factOrder = append([]uuid.UUID(nil), d.factOrder...)
	for id, s := range d.sources {
		c.sources[id] = append([]domain.FactSource(nil), s...)
	}
	for id, h := range d.history {
		c.history[id] = append([]domain.FactHistory(nil), h...)
	}
	for id, cf := range d.conflicts {
		c.conflicts[id] = cf
	}
	c.conflictOrder = append([]uuid.UUID(nil), d.conflictOrder...)
	for id, s := range d.sessions {
		c.sessions[id] = s
	}
	c.sessionOrder = append([]uuid.UUID(nil), d.sessionOrder...)
	return c
}

// copyFact detaches the pointer fields so callers cannot reach into the store.
func copyFact(f domain.Fact) domain.Fact {
	if f.ApprovedBy != nil {
		v := *f.ApprovedBy
		f.ApprovedBy = &v
	}
	if f.ValidatedAt != nil {
		v := *f.ValidatedAt
		f.ValidatedAt = &v
	}
	if f.DeprecatedAt != nil {
		v := *f.DeprecatedAt
		f.DeprecatedAt = &v
	}
	if f.DeprecationReason != nil {
		v := *f.DeprecationReason
		f.DeprecationReason = &v
	}
	f.Sources = nil
	return f
}

func now() time.Time {
	return time.Now().UTC()
}

func (l *MemoryLedger) InTx(ctx context.Context, fn func(tx domain.Ledger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.data.clone()
	if err := fn(&memTx{d: l.data}); err != nil {
		l.data = snapshot
		return err
	}
	return nil
}

// with runs a single operation under the lock.
func (l *MemoryLedger) with(fn func(t *memTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&memTx{d: l.data})
}

func (l *MemoryLedger) CreateFact(ctx context.Context, f *domain.Fact) error {
	return l.with(func(t *memTx) error { return t.CreateFact(ctx, f) })
}

func (l *MemoryLedger) GetFact(ctx context.Context, id uuid.UUID) (f *domain.Fact, err error) {
	err = l.with(func(t *memTx) error { f, err = t.GetFact(ctx, id); return err })
	return f, err
}

func (l *MemoryLedger) GetFactForUpdate(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return l.GetFact(ctx, id)
}

func (l *MemoryLedger) UpdateFact(ctx context.Context, f *domain.Fact, expectedVersion int) error {
	return l.with(func(t *memTx) error { return t.UpdateFact(ctx, f, expectedVersion) })
}

func (l *MemoryLedger) ListFacts(ctx context.Context, filter domain.FactFilter) (facts []domain.Fact, err error) {
	err = l.with(func(t *memTx) error { facts, err = t.ListFacts(ctx, filter); return err })
	return facts, err
}

func (l *MemoryLedger) FindTrusted(ctx context.Context, subject string, threshold float64) (facts []domain.Fact, err error) {
	err = l.with(func(t *memTx) error { facts, err = t.FindTrusted(ctx, subject, threshold); return err })
	return facts, err
}

func (l *MemoryLedger) HasTrusted(ctx context.Context, subject string, threshold float64) (ok bool, err error) {
	err = l.with(func(t *memTx) error { ok, err = t.HasTrusted(ctx, subject, threshold); return err })
	return ok, err
}

func (l *MemoryLedger) AddSource(ctx context.Context, s *domain.FactSource) error {
	return l.with(func(t *memTx) error { return t.AddSource(ctx, s) })
}

func (l *MemoryLedger) ListSources(ctx context.Context, factID uuid.UUID) (sources []domain.FactSource, err error) {
	err = l.with(func(t *memTx) error { sources, err = t.ListSources(ctx, factID); return err })
	return sources, err
}

func (l *MemoryLedger) AppendHistory(ctx context.Context, h *domain.FactHistory) error {
	return l.with(func(t *memTx) error { return t.AppendHistory(ctx, h) })
}

func (l *MemoryLedger) ListHistory(ctx context.Context, factID uuid.UUID) (history []domain.FactHistory, err error) {
	err = l.with(func(t *memTx) error { history, err = t.ListHistory(ctx, factID); return err })
	return history, err
}

func (l *MemoryLedger) CreateConflict(ctx context.Context, c *domain.FactConflict) error {
	return l.with(func(t *memTx) error { return t.CreateConflict(ctx, c) })
}

func (l *MemoryLedger) GetConflict(ctx context.Context, id uuid.UUID) (c *domain.FactConflict, err error) {
	err = l.with(func(t *memTx) error { c, err = t.GetConflict(ctx, id); return err })
	return c, err
}

func (l *MemoryLedger) GetConflictForUpdate(ctx context.Context, id uuid.UUID) (*domain.FactConflict, error) {
	return l.GetConflict(ctx, id)
}

func (l *MemoryLedger) ConflictExists(ctx context.Context, a, b uuid.UUID) (ok bool, err error) {
	err = l.with(func(t *memTx) error { ok, err = t.ConflictExists(ctx, a, b); return err })
	return ok, err
}

func (l *MemoryLedger) UpdateConflict(ctx context.Context, c *domain.FactConflict) error {
	return l.with(func(t *memTx) error { return t.UpdateConflict(ctx, c) })
}

func (l *MemoryLedger) ListConflicts(ctx context.Context, unresolvedOnly bool) (conflicts []domain.FactConflict, err error) {
	err = l.with(func(t *memTx) error { conflicts, err = t.ListConflicts(ctx, unresolvedOnly); return err })
	return conflicts, err
}

func (l *MemoryLedger) CreateSession(ctx context.Context, s *domain.ValidationSession) error {
	return l.with(func(t *memTx) error { return t.CreateSession(ctx, s) })
}

func (l *MemoryLedger) GetSession(ctx context.Context, id uuid.UUID) (s *domain.ValidationSession, err error) {
	err = l.with(func(t *memTx) error { s, err = t.GetSession(ctx, id); return err })
	return s, err
}

func (l *MemoryLedger) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*domain.ValidationSession, error) {
	return l.GetSession(ctx, id)
}

func (l *MemoryLedger) UpdateSession(ctx context.Context, s *domain.ValidationSession) error {
	return l.with(func(t *memTx) error { return t.UpdateSession(ctx, s) })
}

func (l *MemoryLedger) ListSessions(ctx context.Context, userID *string) (sessions []domain.ValidationSession, err error) {
	err = l.with(func(t *memTx) error { sessions, err = t.ListSessions(ctx, userID); return err })
	return sessions, err
}

// memTx operates on the dataset without locking; the owning MemoryLedger
// holds the lock for its lifetime.
type memTx struct {
	d *memData
}

func (t *memTx) InTx(ctx context.Context, fn func(tx domain.Ledger) error) error {
	return fn(t)
}

func (t *memTx) CreateFact(ctx context.Context, f *domain.Fact) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if _, ok := t.d.facts[f.ID]; ok {
		return ErrDuplicate
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now()
	}
	t.d.facts[f.ID] = copyFact(*f)
	t.d.factOrder = append(t.d.factOrder, f.ID)
	return nil
}

func (t *memTx) GetFact(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	f, ok := t.d.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyFact(f)
	out.Sources = t.sourcesOf(id)
	return &out, nil
}

func (t *memTx) GetFactForUpdate(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return t.GetFact(ctx, id)
}

func (t *memTx) UpdateFact(ctx context.Context, f *domain.Fact, expectedVersion int) error {
	cur, ok := t.d.facts[f.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	updated := copyFact(*f)
	updated.CreatedAt = cur.CreatedAt
	t.d.facts[f.ID] = updated
	return nil
}

// newestFirst returns facts in reverse insertion order.
func (t *memTx) newestFirst(keep func(domain.Fact) bool) []domain.Fact {
	var out []domain.Fact
	for i := len(t.d.factOrder) - 1; i >= 0; i-- {
		f := t.d.facts[t.d.factOrder[i]]
		if keep(f) {
			cp := copyFact(f)
			cp.Sources = t.sourcesOf(f.ID)
			out = append(out, cp)
		}
	}
	return out
}

func (t *memTx) ListFacts(ctx context.Context, filter domain.FactFilter) ([]domain.Fact, error) {
	facts := t.newestFirst(func(f domain.Fact) bool {
		if filter.Status != nil && f.Status != *filter.Status {
			return false
		}
		if filter.Subject != "" && !strings.EqualFold(f.Subject, filter.Subject) {
			return false
		}
		return true
	})
	if filter.Limit > 0 && len(facts) > filter.Limit {
		facts = facts[:filter.Limit]
	}
	return facts, nil
}

func trustedPredicate(subject string, threshold float64) func(domain.Fact) bool {
	return func(f domain.Fact) bool {
		return strings.EqualFold(f.Subject, subject) &&
			f.Status == domain.FactStatusValidated &&
			f.Confidence >= threshold
	}
}

func (t *memTx) FindTrusted(ctx context.Context, subject string, threshold float64) ([]domain.Fact, error) {
	facts := t.newestFirst(trustedPredicate(subject, threshold))
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Confidence > facts[j].Confidence
	})
	return facts, nil
}

func (t *memTx) HasTrusted(ctx context.Context, subject string, threshold float64) (bool, error) {
	keep := trustedPredicate(subject, threshold)
	for _, f := range t.d.facts {
		if keep(f) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) sourcesOf(factID uuid.UUID) []domain.FactSource {
	src := t.d.sources[factID]
	if len(src) == 0 {
		return nil
	}
	return append([]domain.FactSource(nil), src...)
}

func (t *memTx) AddSource(ctx context.Context, s *domain.FactSource) error {
	if _, ok := t.d.facts[s.FactID]; !ok {
		return ErrNotFound
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CollectedAt.IsZero() {
		s.CollectedAt = now()
	}
	t.d.sources[s.FactID] = append(t.d.sources[s.FactID], *s)
	return nil
}

func (t *memTx) ListSources(ctx context.Context, factID uuid.UUID) ([]domain.FactSource, error) {
	return t.sourcesOf(factID), nil
}

func (t *memTx) AppendHistory(ctx context.Context, h *domain.FactHistory) error {
	if _, ok := t.d.facts[h.FactID]; !ok {
		return ErrNotFound
	}
	for _, existing := range t.d.history[h.FactID] {
		if existing.Version == h.Version {
			return ErrDuplicate
		}
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.ChangedAt.IsZero() {
		h.ChangedAt = now()
	}
	row := *h
	if h.Previous != nil {
		prev := *h.Previous
		row.Previous = &prev
	}
	t.d.history[h.FactID] = append(t.d.history[h.FactID], row)
	return nil
}

func (t *memTx) ListHistory(ctx context.Context, factID uuid.UUID) ([]domain.FactHistory, error) {
	history := append([]domain.FactHistory(nil), t.d.history[factID]...)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Version < history[j].Version })
	return history, nil
}

func (t *memTx) CreateConflict(ctx context.Context, c *domain.FactConflict) error {
	_, okA := t.d.facts[c.FactAID]
	_, okB := t.d.facts[c.FactBID]
	if !okA || !okB {
		return ErrNotFound
	}
	if exists, _ := t.ConflictExists(ctx, c.FactAID, c.FactBID); exists {
		return ErrDuplicate
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = now()
	}
	row := *c
	row.FactA, row.FactB = nil, nil
	t.d.conflicts[c.ID] = row
	t.d.conflictOrder = append(t.d.conflictOrder, c.ID)
	return nil
}

func (t *memTx) GetConflict(ctx context.Context, id uuid.UUID) (*domain.FactConflict, error) {
	c, ok := t.d.conflicts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (t *memTx) GetConflictForUpdate(ctx context.Context, id uuid.UUID) (*domain.FactConflict, error) {
	return t.GetConflict(ctx, id)
}

func (t *memTx) ConflictExists(ctx context.Context, a, b uuid.UUID) (bool, error) {
	for _, c := range t.d.conflicts {
		if c.Involves(a, b) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpdateConflict(ctx context.Context, c *domain.FactConflict) error {
	cur, ok := t.d.conflicts[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.IsResolved = c.IsResolved
	cur.ResolvedAt = c.ResolvedAt
	cur.Resolution = c.Resolution
	cur.ResolutionNotes = c.ResolutionNotes
	t.d.conflicts[c.ID] = cur
	return nil
}

func (t *memTx) ListConflicts(ctx context.Context, unresolvedOnly bool) ([]domain.FactConflict, error) {
	var out []domain.FactConflict
	for i := len(t.d.conflictOrder) - 1; i >= 0; i-- {
		c := t.d.conflicts[t.d.conflictOrder[i]]
		if unresolvedOnly && c.IsResolved {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *memTx) CreateSession(ctx context.Context, s *domain.ValidationSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = now()
	}
	t.d.sessions[s.ID] = *s
	t.d.sessionOrder = append(t.d.sessionOrder, s.ID)
	return nil
}

func (t *memTx) GetSession(ctx context.Context, id uuid.UUID) (*domain.ValidationSession, error) {
	s, ok := t.d.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) GetSessionForUpdate(ctx context.Context, id uuid.UUID) (*domain.ValidationSession, error) {
	return t.GetSession(ctx, id)
}

func (t *memTx) UpdateSession(ctx context.Context, s *domain.ValidationSession) error {
	cur, ok := t.d.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	cur.CompletedAt = s.CompletedAt
	cur.FactsApproved = s.FactsApproved
	cur.FactsRejected = s.FactsRejected
	cur.FactsEdited = s.FactsEdited
	cur.WasCompleted = s.WasCompleted
	cur.UserID = s.UserID
	t.d.sessions[s.ID] = cur
	return nil
}

func (t *memTx) ListSessions(ctx context.Context, userID *string) ([]domain.ValidationSession, error) {
	var out []domain.ValidationSession
	for i := len(t.d.sessionOrder) - 1; i >= 0; i-- {
		s := t.d.sessions[t.d.sessionOrder[i]]
		if userID != nil && (s.UserID == nil || *s.UserID != *userID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
