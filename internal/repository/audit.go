package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"road-report-service/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const auditColumns = `id, target_type, target_id, field_name, old_value, new_value,
	performed_by, performer_role, reason, metadata, created_at`

type postgresAuditLog struct {
	db *sql.DB
}

func NewPostgresAuditLog(db *sql.DB) *postgresAuditLog {
	return &postgresAuditLog{db: db}
}

// Append writes entries in a single statement, so they land together or not at all.
func (a *postgresAuditLog) Append(ctx context.Context, entries []domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return appendAudit(ctx, a.db, entries, time.Now().UTC())
}

func (a *postgresAuditLog) Query(ctx context.Context, targetType domain.TargetType, targetID string, order domain.AuditOrder) ([]domain.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	direction := "DESC"
	if order == domain.OldestFirst {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_entries
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at %s, seq %s`, auditColumns, direction, direction)

	rows, err := a.db.QueryContext(ctx, query, string(targetType), targetID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"target_type": targetType,
			"target_id":   targetID,
		}).Error("Failed to query audit entries")
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e                  domain.AuditEntry
			targetTypeRaw      string
			role               string
			oldValue, newValue sql.NullString
			performedBy        sql.NullString
			reason             sql.NullString
			metadata           []byte
		)
		if err := rows.Scan(&e.ID, &targetTypeRaw, &e.TargetID, &e.FieldName, &oldValue, &newValue,
			&performedBy, &role, &reason, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.TargetType = domain.TargetType(targetTypeRaw)
		e.PerformerRole = domain.Role(role)
		e.OldValue = nullStringPtr(oldValue)
		e.NewValue = nullStringPtr(newValue)
		e.PerformedBy = nullStringPtr(performedBy)
		e.Reason = nullStringPtr(reason)
		if len(metadata) > 0 {
			e.Metadata = json.RawMessage(metadata)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over audit rows: %w", err)
	}
	return entries, nil
}

// appendAudit inserts entries as one multi-row statement. Every entry gets
// the same timestamp and, when missing, a fresh id.
func appendAudit(ctx context.Context, db DBTX, entries []domain.AuditEntry, now time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	const perRow = 11
	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*perRow)
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = now
		metadata := []byte(e.Metadata)
		if len(metadata) == 0 {
			metadata = []byte("{}")
		}

		base := i * perRow
		ph := make([]string, perRow)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, e.ID, string(e.TargetType), e.TargetID, e.FieldName, e.OldValue, e.NewValue,
			e.PerformedBy, string(e.PerformerRole), e.Reason, metadata, e.CreatedAt)
	}

	query := fmt.Sprintf("INSERT INTO audit_entries (%s) VALUES %s", auditColumns, strings.Join(placeholders, ", "))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"target_type": entries[0].TargetType,
			"target_id":   entries[0].TargetID,
			"entries":     len(entries),
		}).Error("Failed to append audit entries")
		return fmt.Errorf("%w: %v", domain.ErrAuditWriteFailure, err)
	}
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
