package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"road-report-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

const reportColumns = `id, status, severity, damage_type, passability_level, description,
	latitude, longitude, workflow_data, assigned_org_id, road_class, classification_status,
	reported_by, in_progress_at, resolved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type postgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) *postgresReportRepository {
	return &postgresReportRepository{db: db}
}

func (r *postgresReportRepository) Create(ctx context.Context, report *domain.DamageReport) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	workflow, err := json.Marshal(report.WorkflowData)
	if err != nil {
		return fmt.Errorf("failed to encode workflow data: %w", err)
	}

	log.WithFields(log.Fields{
		"report_id":   report.ID,
		"damage_type": report.DamageType,
		"severity":    report.Severity,
	}).Info("Creating new report in database")

	query := fmt.Sprintf(`INSERT INTO reports (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`, reportColumns)

	_, err = r.db.ExecContext(ctx, query,
		report.ID,
		string(report.Status),
		report.Severity,
		string(report.DamageType),
		passabilityArg(report.PassabilityLevel),
		report.Description,
		report.Latitude,
		report.Longitude,
		workflow,
		report.AssignedOrgID,
		roadClassArg(report.RoadClass),
		string(report.ClassificationStatus),
		report.ReportedBy,
		report.InProgressAt,
		report.ResolvedAt,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		log.WithError(err).WithField("report_id", report.ID).Error("Failed to create report")
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *postgresReportRepository) GetByID(ctx context.Context, id string) (*domain.DamageReport, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return getReport(ctx, r.db, id, false)
}

func (r *postgresReportRepository) List(ctx context.Context, filter domain.ReportFilter) ([]domain.DamageReport, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status != nil {
		query := fmt.Sprintf(`SELECT %s FROM reports WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, reportColumns)
		rows, err = r.db.QueryContext(ctx, query, string(*filter.Status), filter.Limit, filter.Offset)
	} else {
		query := fmt.Sprintf(`SELECT %s FROM reports
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, reportColumns)
		rows, err = r.db.QueryContext(ctx, query, filter.Limit, filter.Offset)
	}
	if err != nil {
		log.WithError(err).Error("Failed to list reports")
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []domain.DamageReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan report row")
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over report rows: %w", err)
	}
	return reports, nil
}

func (r *postgresReportRepository) CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		ev         domain.CreationEvent
		reportedBy sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT created_at, reported_by FROM reports WHERE id = $1`, id).
		Scan(&ev.CreatedAt, &reportedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report creation: %w", err)
	}
	ev.CreatedBy = nullStringPtr(reportedBy)
	return &ev, nil
}

// WithinTx runs fn in a transaction and commits only if fn returns nil.
func (r *postgresReportRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ReportTx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &postgresReportTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Error("Failed to roll back report transaction")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresReportTx struct {
	tx *sql.Tx
}

func (t *postgresReportTx) GetForUpdate(ctx context.Context, id string) (*domain.DamageReport, error) {
	return getReport(ctx, t.tx, id, true)
}

// Update writes every mutable column, guarded by the updated_at the caller loaded.
func (t *postgresReportTx) Update(ctx context.Context, report *domain.DamageReport, expectedUpdatedAt time.Time) error {
	workflow, err := json.Marshal(report.WorkflowData)
	if err != nil {
		return fmt.Errorf("failed to encode workflow data: %w", err)
	}

	query := `UPDATE reports SET
			status = $1, severity = $2, damage_type = $3, passability_level = $4,
			description = $5, workflow_data = $6, assigned_org_id = $7, road_class = $8,
			classification_status = $9, in_progress_at = $10, resolved_at = $11, updated_at = $12
		WHERE id = $13 AND updated_at = $14`

	result, err := t.tx.ExecContext(ctx, query,
		string(report.Status),
		report.Severity,
		string(report.DamageType),
		passabilityArg(report.PassabilityLevel),
		report.Description,
		workflow,
		report.AssignedOrgID,
		roadClassArg(report.RoadClass),
		string(report.ClassificationStatus),
		report.InProgressAt,
		report.ResolvedAt,
		report.UpdatedAt,
		report.ID,
		expectedUpdatedAt,
	)
	if err != nil {
		log.WithError(err).WithField("report_id", report.ID).Error("Failed to update report")
		return fmt.Errorf("failed to update report: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not determine rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

// AppendAudit stamps every entry with the first entry's time when the caller
// set one, so audit rows line up with the report's updated_at.
func (t *postgresReportTx) AppendAudit(ctx context.Context, entries []domain.AuditEntry) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if len(entries) > 0 && !entries[0].CreatedAt.IsZero() {
		now = entries[0].CreatedAt
	}
	return appendAudit(ctx, t.tx, entries, now)
}

func (t *postgresReportTx) InsertClassification(ctx context.Context, record *domain.ClassificationRecord) error {
	return insertClassification(ctx, t.tx, record)
}

func getReport(ctx context.Context, db DBTX, id string, forUpdate bool) (*domain.DamageReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1`, reportColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	report, err := scanReport(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReportNotFound
		}
		log.WithError(err).WithField("report_id", id).Error("Failed to get report by ID")
		return nil, fmt.Errorf("failed to get report by ID: %w", err)
	}
	return report, nil
}

func scanReport(row rowScanner) (*domain.DamageReport, error) {
	var (
		report                 domain.DamageReport
		status, damageType     string
		classificationStatus   string
		passability, roadClass sql.NullString
		description            sql.NullString
		assignedOrgID          sql.NullString
		reportedBy             sql.NullString
		workflow               []byte
		inProgressAt           sql.NullTime
		resolvedAt             sql.NullTime
	)

	err := row.Scan(
		&report.ID,
		&status,
		&report.Severity,
		&damageType,
		&passability,
		&description,
		&report.Latitude,
		&report.Longitude,
		&workflow,
		&assignedOrgID,
		&roadClass,
		&classificationStatus,
		&reportedBy,
		&inProgressAt,
		&resolvedAt,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	report.Status = domain.Status(status)
	report.DamageType = domain.DamageType(damageType)
	report.ClassificationStatus = domain.ClassificationStatus(classificationStatus)
	if passability.Valid {
		p := domain.PassabilityLevel(passability.String)
		report.PassabilityLevel = &p
	}
	if roadClass.Valid {
		c := domain.RoadClass(roadClass.String)
		report.RoadClass = &c
	}
	report.Description = nullStringPtr(description)
	report.AssignedOrgID = nullStringPtr(assignedOrgID)
	report.ReportedBy = nullStringPtr(reportedBy)
	if inProgressAt.Valid {
		report.InProgressAt = &inProgressAt.Time
	}
	if resolvedAt.Valid {
		report.ResolvedAt = &resolvedAt.Time
	}
	if len(workflow) > 0 {
		if err := json.Unmarshal(workflow, &report.WorkflowData); err != nil {
			return nil, fmt.Errorf("failed to decode workflow data: %w", err)
		}
	}
	return &report, nil
}

func passabilityArg(p *domain.PassabilityLevel) interface{} {
	if p == nil {
		return nil
	}
	return string(*p)
}

func roadClassArg(c *domain.RoadClass) interface{} {
	if c == nil {
		return nil
	}
	return string(*c)
}
