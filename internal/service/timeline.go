package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"road-report-service/internal/domain"
	"road-report-service/internal/repository"

	log "github.com/sirupsen/logrus"
)

type CreationSource interface {
	CreationEvent(ctx context.Context, id string) (*domain.CreationEvent, error)
}

// TimelineService rebuilds the display history of an entity from its own
// creation data and its audit entries. It never writes.
type TimelineService struct {
	audit   repository.AuditLog
	users   repository.UserRepository
	sources map[domain.TargetType]CreationSource
}

func NewTimelineService(audit repository.AuditLog, users repository.UserRepository, sources map[domain.TargetType]CreationSource) *TimelineService {
	return &TimelineService{audit: audit, users: users, sources: sources}
}

// Timeline returns audit changes newest first followed by the creation item.
// Target types without a creation source get only their audit entries.
func (s *TimelineService) Timeline(ctx context.Context, targetType domain.TargetType, targetID string) ([]domain.TimelineItem, error) {
	var created *domain.CreationEvent
	if src, ok := s.sources[targetType]; ok {
		ev, err := src.CreationEvent(ctx, targetID)
		if err != nil {
			return nil, err
		}
		created = ev
	}

	entries, err := s.audit.Query(ctx, targetType, targetID, domain.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}

	names := s.resolveUsers(ctx, entries, created)

	items := make([]domain.TimelineItem, 0, len(entries)+1)
	for _, e := range entries {
		items = append(items, domain.TimelineItem{
			Kind:      domain.TimelineFieldChange,
			Field:     e.FieldName,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Reason:    e.Reason,
			Actor:     resolveActor(e.PerformedBy, e.PerformerRole, names),
			Timestamp: e.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})

	if created != nil {
		items = append(items, domain.TimelineItem{
			Kind:      domain.TimelineCreated,
			Actor:     resolveActor(created.CreatedBy, "", names),
			Timestamp: created.CreatedAt,
		})
	}
	return items, nil
}

// resolveUsers looks up every referenced user. A lookup failure degrades to
// unknown actors rather than failing the read.
func (s *TimelineService) resolveUsers(ctx context.Context, entries []domain.AuditEntry, created *domain.CreationEvent) map[string]domain.User {
	seen := map[string]struct{}{}
	var ids []string
	add := func(id *string) {
		if id == nil {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	for _, e := range entries {
		add(e.PerformedBy)
	}
	if created != nil {
		add(created.CreatedBy)
	}
	if len(ids) == 0 || s.users == nil {
		return nil
	}

	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Failed to resolve timeline actors")
		}
		return nil
	}
	return users
}

func resolveActor(userID *string, role domain.Role, users map[string]domain.User) domain.TimelineActor {
	if userID == nil {
		return domain.TimelineActor{Name: domain.ActorNameSystem, Role: role}
	}
	u, ok := users[*userID]
	if !ok {
		return domain.TimelineActor{UserID: userID, Name: domain.ActorNameUnknown, Role: role}
	}
	if role == "" {
		role = u.Role
	}
	return domain.TimelineActor{UserID: userID, Name: u.Name, Role: role}
}
