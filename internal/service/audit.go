package service

import (
	"context"
	"sync"
	"time"

	"road-report-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

const serviceName = "road-report-service"

type EventPublisher interface {
	Publish(ctx context.Context, event domain.ReportEvent) error
}

// EventNotifier publishes report events to downstream consumers after a
// change has committed. Delivery is fire-and-forget: failures are logged and
// never surface to the caller. A nil notifier or publisher drops events.
type EventNotifier struct {
	publisher EventPublisher
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewEventNotifier(publisher EventPublisher, timeout time.Duration) *EventNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EventNotifier{publisher: publisher, timeout: timeout}
}

func (n *EventNotifier) RecordReportCreated(ctx context.Context, report *domain.DamageReport) {
	if n == nil || report == nil {
		return
	}

	payload := map[string]interface{}{
		"status":      report.Status,
		"severity":    report.Severity,
		"damage_type": report.DamageType,
		"latitude":    report.Latitude,
		"longitude":   report.Longitude,
	}
	if report.PassabilityLevel != nil {
		payload["passability_level"] = *report.PassabilityLevel
	}

	n.dispatch(ctx, domain.ReportEvent{
		EventType: domain.EventReportCreated,
		EntityID:  report.ID,
		Actor:     actorLabel(report.ReportedBy),
		Payload:   payload,
	})
}

func (n *EventNotifier) RecordStatusChanged(ctx context.Context, report *domain.DamageReport, from domain.Status, actor domain.Actor) {
	if n == nil || report == nil || from == report.Status {
		return
	}

	n.dispatch(ctx, domain.ReportEvent{
		EventType: domain.EventReportStatusChanged,
		EntityID:  report.ID,
		Actor:     actorLabel(actor.UserID),
		Payload: map[string]interface{}{
			"from":           from,
			"to":             report.Status,
			"performer_role": actor.Role,
			"reported_by":    report.ReportedBy,
		},
	})
}

func (n *EventNotifier) RecordClassified(ctx context.Context, record *domain.ClassificationRecord) {
	if n == nil || record == nil {
		return
	}

	n.dispatch(ctx, domain.ReportEvent{
		EventType: domain.EventReportClassified,
		EntityID:  record.ReportID,
		Actor:     actorLabel(record.ClassifiedBy),
		Payload: map[string]interface{}{
			"previous_road_class":   record.PreviousRoadClass,
			"new_road_class":        record.NewRoadClass,
			"previous_org_id":       record.PreviousOrgID,
			"new_org_id":            record.NewOrgID,
			"classification_status": record.ClassificationStatus,
		},
	})
}

// Wait blocks until in-flight deliveries finish. Call before closing the publisher.
func (n *EventNotifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *EventNotifier) dispatch(ctx context.Context, event domain.ReportEvent) {
	if n.publisher == nil {
		return
	}
	event.Service = serviceName
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if err := n.publisher.Publish(ctx, event); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event_type": event.EventType,
				"entity_id":  event.EntityID,
			}).Warn("Failed to publish report event")
		}
	}()
}

func actorLabel(userID *string) string {
	if userID == nil {
		return domain.ActorNameSystem
	}
	return *userID
}
