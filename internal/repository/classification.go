package repository

import (
	"context"
	"database/sql"
	"fmt"

	"road-report-service/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const classificationColumns = `id, report_id, previous_road_class, new_road_class, previous_org_id,
	new_org_id, classification_status, classified_by, reason, created_at`

func insertClassification(ctx context.Context, db DBTX, record *domain.ClassificationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	query := fmt.Sprintf(`INSERT INTO report_classification_history (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, classificationColumns)

	_, err := db.ExecContext(ctx, query,
		record.ID,
		record.ReportID,
		roadClassArg(record.PreviousRoadClass),
		string(record.NewRoadClass),
		record.PreviousOrgID,
		record.NewOrgID,
		string(record.ClassificationStatus),
		record.ClassifiedBy,
		record.Reason,
		record.CreatedAt,
	)
	if err != nil {
		log.WithError(err).WithField("report_id", record.ReportID).Error("Failed to insert classification history")
		return fmt.Errorf("%w: classification history: %v", domain.ErrAuditWriteFailure, err)
	}
	return nil
}

func (r *postgresReportRepository) ListClassifications(ctx context.Context, reportID string) ([]domain.ClassificationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM report_classification_history
		WHERE report_id = $1 ORDER BY created_at DESC`, classificationColumns)

	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		log.WithError(err).WithField("report_id", reportID).Error("Failed to list classification history")
		return nil, fmt.Errorf("failed to list classification history: %w", err)
	}
	defer rows.Close()

	records := []domain.ClassificationRecord{}
	for rows.Next() {
		var (
			rec                         domain.ClassificationRecord
			previousClass               sql.NullString
			newClass, status            string
			previousOrg, newOrg, by, rs sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ReportID, &previousClass, &newClass, &previousOrg,
			&newOrg, &status, &by, &rs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan classification row: %w", err)
		}
		if previousClass.Valid {
			c := domain.RoadClass(previousClass.String)
			rec.PreviousRoadClass = &c
		}
		rec.NewRoadClass = domain.RoadClass(newClass)
		rec.ClassificationStatus = domain.ClassificationStatus(status)
		rec.PreviousOrgID = nullStringPtr(previousOrg)
		rec.NewOrgID = nullStringPtr(newOrg)
		rec.ClassifiedBy = nullStringPtr(by)
		rec.Reason = nullStringPtr(rs)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over classification rows: %w", err)
	}
	return records, nil
}
