package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"road-report-service/internal/domain"
	"road-report-service/internal/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ReportServiceInterface interface {
	CreateReport(ctx context.Context, req domain.CreateReportRequest, actor domain.Actor) (*domain.DamageReport, error)
	GetReport(ctx context.Context, id string) (*domain.DamageReport, error)
	ListReports(ctx context.Context, filter domain.ReportFilter) ([]domain.DamageReport, error)
	UpdateReport(ctx context.Context, id string, patch *domain.ReportPatch, actor domain.Actor) (*domain.DamageReport, error)
	ClassifyReport(ctx context.Context, id string, req domain.ClassifyReportRequest, actor domain.Actor) (*domain.DamageReport, error)
	ListClassifications(ctx context.Context, id string) ([]domain.ClassificationRecord, error)
	AllowedTransitions(ctx context.Context, id string, role domain.Role) ([]domain.Status, error)
	AuditTrail(ctx context.Context, targetType domain.TargetType, targetID string, order domain.AuditOrder) ([]domain.AuditEntry, error)
}

type ReportService struct {
	reports repository.ReportRepository
	audit   repository.AuditLog
	events  *EventNotifier
	now     func() time.Time
}

func NewReportService(reports repository.ReportRepository, audit repository.AuditLog, events *EventNotifier) *ReportService {
	return &ReportService{
		reports: reports,
		audit:   audit,
		events:  events,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func (s *ReportService) CreateReport(ctx context.Context, req domain.CreateReportRequest, actor domain.Actor) (*domain.DamageReport, error) {
	if req.Severity < 1 || req.Severity > 5 {
		return nil, domain.NewValidationError("severity", "must be between 1 and 5")
	}
	if _, err := domain.ParseDamageType(string(req.DamageType)); err != nil {
		return nil, err
	}

	now := s.now()
	report := &domain.DamageReport{
		ID:                   uuid.NewString(),
		Status:               domain.StatusNew,
		Severity:             req.Severity,
		DamageType:           req.DamageType,
		PassabilityLevel:     req.PassabilityLevel,
		Latitude:             req.Latitude,
		Longitude:            req.Longitude,
		ClassificationStatus: domain.ClassificationUnclassified,
		ReportedBy:           actor.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.Description != "" {
		description := req.Description
		report.Description = &description
	}

	if err := s.reports.Create(ctx, report); err != nil {
		log.WithError(err).WithField("report_id", report.ID).Error("Failed to create report")
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	log.WithFields(log.Fields{
		"report_id":   report.ID,
		"damage_type": report.DamageType,
		"severity":    report.Severity,
	}).Info("Report successfully created")

	s.events.RecordReportCreated(ctx, report)
	return report, nil
}

func (s *ReportService) GetReport(ctx context.Context, id string) (*domain.DamageReport, error) {
	if err := validateReportID(id); err != nil {
		return nil, err
	}
	return s.reports.GetByID(ctx, id)
}

func (s *ReportService) ListReports(ctx context.Context, filter domain.ReportFilter) ([]domain.DamageReport, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > domain.MaxListLimit {
		filter.Limit = domain.MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	reports, err := s.reports.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list reports")
		return nil, err
	}
	return reports, nil
}

// UpdateReport applies patch to the report on behalf of actor. Any status in
// the patch, including the current one, must be an allowed transition and is
// checked before anything is written, the workflow document is
// merged rather than replaced, and the row update and its audit entries
// commit together.
func (s *ReportService) UpdateReport(ctx context.Context, id string, patch *domain.ReportPatch, actor domain.Actor) (*domain.DamageReport, error) {
	if err := validateReportID(id); err != nil {
		return nil, err
	}
	if patch == nil {
		return nil, domain.NewValidationError("", "empty update")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var (
		updated        *domain.DamageReport
		previousStatus domain.Status
	)
	err := s.reports.WithinTx(ctx, func(ctx context.Context, tx repository.ReportTx) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previousStatus = current.Status

		if patch.Status.Set {
			if err := domain.CheckTransition(actor.Role, current.Status, *patch.Status.Value); err != nil {
				return err
			}
		}
		if !domain.CanEditReports(actor.Role) {
			return fmt.Errorf("%w: %s cannot edit reports", domain.ErrForbidden, actor.Role)
		}

		next := current.Clone()
		touched, err := patch.Apply(next)
		if err != nil {
			return err
		}

		updated, err = s.commit(ctx, tx, current, next, touched, actor, patch.Reason, nil)
		return err
	})
	if err != nil {
		logUpdateFailure(err, id, actor)
		return nil, err
	}

	s.events.RecordStatusChanged(ctx, updated, previousStatus, actor)
	return updated, nil
}

// ClassifyReport assigns a road class and responsible organisation. Besides
// the generic audit entries it writes a classification history record in the
// same transaction.
func (s *ReportService) ClassifyReport(ctx context.Context, id string, req domain.ClassifyReportRequest, actor domain.Actor) (*domain.DamageReport, error) {
	if err := validateReportID(id); err != nil {
		return nil, err
	}
	roadClass, orgID, classStatus, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if !domain.CanClassify(actor.Role) {
		return nil, fmt.Errorf("%w: %s cannot classify reports", domain.ErrForbidden, actor.Role)
	}

	var (
		updated *domain.DamageReport
		record  *domain.ClassificationRecord
	)
	err = s.reports.WithinTx(ctx, func(ctx context.Context, tx repository.ReportTx) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		next := current.Clone()
		next.RoadClass = &roadClass
		next.ClassificationStatus = classStatus
		touched := []string{"roadClass", "classificationStatus"}
		if orgID != nil {
			org := *orgID
			next.AssignedOrgID = &org
			touched = append(touched, "assignedOrgId")
		}

		metadata := json.RawMessage(`{"source":"classification"}`)
		updated, err = s.commit(ctx, tx, current, next, touched, actor, req.Reason, metadata)
		if err != nil || updated == current {
			return err
		}

		record = &domain.ClassificationRecord{
			ID:                   uuid.NewString(),
			ReportID:             id,
			PreviousRoadClass:    current.RoadClass,
			NewRoadClass:         roadClass,
			PreviousOrgID:        current.AssignedOrgID,
			NewOrgID:             next.AssignedOrgID,
			ClassificationStatus: classStatus,
			ClassifiedBy:         actor.UserID,
			Reason:               req.Reason,
			CreatedAt:            next.UpdatedAt,
		}
		return tx.InsertClassification(ctx, record)
	})
	if err != nil {
		logUpdateFailure(err, id, actor)
		return nil, err
	}

	s.events.RecordClassified(ctx, record)
	return updated, nil
}

// commit diffs next against current over the touched fields and, when
// anything changed, persists the row and its audit entries through tx. It
// returns current unchanged when the update is a no-op.
func (s *ReportService) commit(ctx context.Context, tx repository.ReportTx, current, next *domain.DamageReport,
	touched []string, actor domain.Actor, reason *string, metadata json.RawMessage) (*domain.DamageReport, error) {

	after := next.Snapshot()
	update := make(map[string]interface{}, len(touched))
	for _, field := range touched {
		update[field] = after[field]
	}

	changes := Diff(current.Snapshot(), update)
	if len(changes) == 0 {
		log.WithField("report_id", current.ID).Info("No fields changed, skipping update")
		return current, nil
	}

	now := s.now()
	if next.Status != current.Status {
		next.StampStatusTimes(now)
	}
	next.UpdatedAt = now

	if err := tx.Update(ctx, next, current.UpdatedAt); err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, domain.AuditEntry{
			ID:            uuid.NewString(),
			TargetType:    domain.TargetReport,
			TargetID:      current.ID,
			FieldName:     c.Field,
			OldValue:      c.OldValue,
			NewValue:      c.NewValue,
			PerformedBy:   actor.UserID,
			PerformerRole: actor.Role,
			Reason:        reason,
			Metadata:      metadata,
			CreatedAt:     now,
		})
	}
	if err := tx.AppendAudit(ctx, entries); err != nil {
		if !errors.Is(err, domain.ErrAuditWriteFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrAuditWriteFailure, err)
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"report_id": current.ID,
		"changes":   len(changes),
		"status":    next.Status,
	}).Info("Report successfully updated")
	return next, nil
}

func (s *ReportService) ListClassifications(ctx context.Context, id string) ([]domain.ClassificationRecord, error) {
	if err := validateReportID(id); err != nil {
		return nil, err
	}
	if _, err := s.reports.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.reports.ListClassifications(ctx, id)
}

// AllowedTransitions exposes the transition table for a report so clients can
// enable exactly the actions the server will accept.
func (s *ReportService) AllowedTransitions(ctx context.Context, id string, role domain.Role) ([]domain.Status, error) {
	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.AllowedTransitions(role, report.Status), nil
}

func (s *ReportService) AuditTrail(ctx context.Context, targetType domain.TargetType, targetID string, order domain.AuditOrder) ([]domain.AuditEntry, error) {
	if targetID == "" {
		return nil, domain.NewValidationError("targetId", "is required")
	}
	return s.audit.Query(ctx, targetType, targetID, order)
}

func validateReportID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewValidationError("id", "must be a UUID")
	}
	return nil
}

func logUpdateFailure(err error, id string, actor domain.Actor) {
	entry := log.WithError(err).WithFields(log.Fields{
		"report_id": id,
		"role":      actor.Role,
	})
	switch {
	case errors.Is(err, domain.ErrTransitionNotAllowed),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrReportNotFound),
		errors.Is(err, domain.ErrForbidden):
		entry.Info("Report update rejected")
	default:
		entry.Error("Failed to update report")
	}
}
