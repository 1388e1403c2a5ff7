package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"road-report-service/internal/domain"
	"road-report-service/internal/repository"
)

// memoryStore is an in-memory ReportRepository and AuditLog. WithinTx stages
// writes and only applies them when fn succeeds.
type memoryStore struct {
	mu              sync.Mutex
	reports         map[string]*domain.DamageReport
	audit           []domain.AuditEntry
	classifications []domain.ClassificationRecord

	auditErr  error
	updateErr error
}

func newMemoryStore(reports ...*domain.DamageReport) *memoryStore {
	m := &memoryStore{reports: map[string]*domain.DamageReport{}}
	for _, r := range reports {
		m.reports[r.ID] = r.Clone()
	}
	return m
}

func (m *memoryStore) Create(_ context.Context, report *domain.DamageReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = report.Clone()
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*domain.DamageReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	return r.Clone(), nil
}

func (m *memoryStore) List(_ context.Context, filter domain.ReportFilter) ([]domain.DamageReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.DamageReport{}
	for _, r := range m.reports {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, *r.Clone())
	}
	return out, nil
}

func (m *memoryStore) ListClassifications(_ context.Context, reportID string) ([]domain.ClassificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ClassificationRecord{}
	for _, c := range m.classifications {
		if c.ReportID == reportID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryStore) CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error) {
	r, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.CreationEvent{CreatedAt: r.CreatedAt, CreatedBy: r.ReportedBy}, nil
}

func (m *memoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.ReportTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, staged: map[string]*domain.DamageReport{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, r := range tx.staged {
		m.reports[id] = r
	}
	m.audit = append(m.audit, tx.audit...)
	m.classifications = append(m.classifications, tx.classifications...)
	return nil
}

func (m *memoryStore) Append(_ context.Context, entries []domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i := range entries {
		entries[i].CreatedAt = now
	}
	m.audit = append(m.audit, entries...)
	return nil
}

func (m *memoryStore) Query(_ context.Context, targetType domain.TargetType, targetID string, order domain.AuditOrder) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.AuditEntry{}
	for _, e := range m.audit {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	if order == domain.NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, nil
}

func (m *memoryStore) auditFor(id string) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.AuditEntry{}
	for _, e := range m.audit {
		if e.TargetID == id {
			out = append(out, e)
		}
	}
	return out
}

type memoryTx struct {
	store           *memoryStore
	staged          map[string]*domain.DamageReport
	audit           []domain.AuditEntry
	classifications []domain.ClassificationRecord
}

func (t *memoryTx) GetForUpdate(_ context.Context, id string) (*domain.DamageReport, error) {
	if r, ok := t.staged[id]; ok {
		return r.Clone(), nil
	}
	r, ok := t.store.reports[id]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	return r.Clone(), nil
}

func (t *memoryTx) Update(_ context.Context, report *domain.DamageReport, expectedUpdatedAt time.Time) error {
	if t.store.updateErr != nil {
		return t.store.updateErr
	}
	current, ok := t.store.reports[report.ID]
	if !ok || !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return domain.ErrConcurrentUpdate
	}
	t.staged[report.ID] = report.Clone()
	return nil
}

func (t *memoryTx) AppendAudit(_ context.Context, entries []domain.AuditEntry) error {
	if t.store.auditErr != nil {
		return t.store.auditErr
	}
	t.audit = append(t.audit, entries...)
	return nil
}

func (t *memoryTx) InsertClassification(_ context.Context, record *domain.ClassificationRecord) error {
	t.classifications = append(t.classifications, *record)
	return nil
}

type memoryUsers struct {
	users map[string]domain.User
	err   error
}

func (u *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := u.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (u *memoryUsers) FindByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	out := map[string]domain.User{}
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

func (u *memoryUsers) CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error) {
	user, err := u.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.CreationEvent{CreatedAt: user.CreatedAt, CreatedBy: &user.ID}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ReportEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.ReportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.ReportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ReportEvent(nil), p.events...)
}

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

var errBoom = errors.New("boom")
