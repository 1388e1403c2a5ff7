package domain

import (
	"encoding/json"
	"time"
)

// AuditEntry records one field's before and after value on a target entity.
// Entries are immutable once written.
type AuditEntry struct {
	ID            string          `json:"id"`
	TargetType    TargetType      `json:"targetType"`
	TargetID      string          `json:"targetId"`
	FieldName     string          `json:"fieldName"`
	OldValue      *string         `json:"oldValue"`
	NewValue      *string         `json:"newValue"`
	PerformedBy   *string         `json:"performedBy"`
	PerformerRole Role            `json:"performerRole"`
	Reason        *string         `json:"reason,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type AuditOrder string

const (
	NewestFirst AuditOrder = "newest_first"
	OldestFirst AuditOrder = "oldest_first"
)

func ParseAuditOrder(s string) (AuditOrder, error) {
	switch o := AuditOrder(s); o {
	case "":
		return NewestFirst, nil
	case NewestFirst, OldestFirst:
		return o, nil
	}
	return "", NewValidationError("order", "unknown order %q", s)
}

// FieldChange is one changed field produced by diffing two snapshots.
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

type TimelineKind string

const (
	TimelineCreated     TimelineKind = "created"
	TimelineFieldChange TimelineKind = "field_change"
)

const (
	ActorNameSystem  = "system"
	ActorNameUnknown = "unknown"
)

type TimelineActor struct {
	UserID *string `json:"userId"`
	Name   string  `json:"name"`
	Role   Role    `json:"role,omitempty"`
}

type TimelineItem struct {
	Kind      TimelineKind  `json:"kind"`
	Field     string        `json:"field,omitempty"`
	OldValue  *string       `json:"oldValue,omitempty"`
	NewValue  *string       `json:"newValue,omitempty"`
	Reason    *string       `json:"reason,omitempty"`
	Actor     TimelineActor `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
}

// CreationEvent describes when and by whom an entity was created.
type CreationEvent struct {
	CreatedAt time.Time
	CreatedBy *string
}

// ReportEvent is published to downstream consumers after a committed change.
type ReportEvent struct {
	Service    string                 `json:"service"`
	EventType  string                 `json:"event_type"`
	EntityID   string                 `json:"entity_id"`
	Actor      string                 `json:"actor,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

const (
	EventReportCreated       = "report_created"
	EventReportStatusChanged = "report_status_changed"
	EventReportClassified    = "report_classified"
)
