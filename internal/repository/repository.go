package repository

import (
	"context"
	"database/sql"
	"time"

	"road-report-service/internal/domain"
)

const queryTimeout = 5 * time.Second

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ReportTx is the unit of work for one report mutation. Everything done
// through it commits or rolls back together.
type ReportTx interface {
	GetForUpdate(ctx context.Context, id string) (*domain.DamageReport, error)
	Update(ctx context.Context, report *domain.DamageReport, expectedUpdatedAt time.Time) error
	AppendAudit(ctx context.Context, entries []domain.AuditEntry) error
	InsertClassification(ctx context.Context, record *domain.ClassificationRecord) error
}

type ReportRepository interface {
	Create(ctx context.Context, report *domain.DamageReport) error
	GetByID(ctx context.Context, id string) (*domain.DamageReport, error)
	List(ctx context.Context, filter domain.ReportFilter) ([]domain.DamageReport, error)
	ListClassifications(ctx context.Context, reportID string) ([]domain.ClassificationRecord, error)
	CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ReportTx) error) error
}

// AuditLog is append-only: there is no way to change or remove an entry.
type AuditLog interface {
	Append(ctx context.Context, entries []domain.AuditEntry) error
	Query(ctx context.Context, targetType domain.TargetType, targetID string, order domain.AuditOrder) ([]domain.AuditEntry, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
	CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error)
}
