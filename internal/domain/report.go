package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	minSeverity          = 1
	maxSeverity          = 5
	maxDescriptionLength = 2000
	maxNotesLength       = 4000

	WorkflowFieldPrefix = "workflow."
)

type DamageReport struct {
	ID                   string               `json:"id"`
	Status               Status               `json:"status"`
	Severity             int                  `json:"severity"`
	DamageType           DamageType           `json:"damageType"`
	PassabilityLevel     *PassabilityLevel    `json:"passabilityLevel"`
	Description          *string              `json:"description"`
	Latitude             float64              `json:"latitude"`
	Longitude            float64              `json:"longitude"`
	WorkflowData         WorkflowData         `json:"workflowData"`
	AssignedOrgID        *string              `json:"assignedOrgId"`
	RoadClass            *RoadClass           `json:"roadClass"`
	ClassificationStatus ClassificationStatus `json:"classificationStatus"`
	ReportedBy           *string              `json:"reportedBy"`
	InProgressAt         *time.Time           `json:"inProgressAt"`
	ResolvedAt           *time.Time           `json:"resolvedAt"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// Clone returns a deep copy so a pre-update snapshot survives mutation.
func (r *DamageReport) Clone() *DamageReport {
	c := *r
	c.WorkflowData = r.WorkflowData.Clone()
	if r.PassabilityLevel != nil {
		p := *r.PassabilityLevel
		c.PassabilityLevel = &p
	}
	if r.Description != nil {
		d := *r.Description
		c.Description = &d
	}
	if r.AssignedOrgID != nil {
		o := *r.AssignedOrgID
		c.AssignedOrgID = &o
	}
	if r.RoadClass != nil {
		rc := *r.RoadClass
		c.RoadClass = &rc
	}
	return &c
}

// Snapshot flattens the auditable state of the report into field name to value.
// Workflow leaves are keyed "workflow.<key>" and only present when set.
func (r *DamageReport) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"status":               string(r.Status),
		"severity":             r.Severity,
		"damageType":           string(r.DamageType),
		"passabilityLevel":     nil,
		"description":          nil,
		"assignedOrgId":        nil,
		"roadClass":            nil,
		"classificationStatus": string(r.ClassificationStatus),
	}
	if r.PassabilityLevel != nil {
		snap["passabilityLevel"] = string(*r.PassabilityLevel)
	}
	if r.Description != nil {
		snap["description"] = *r.Description
	}
	if r.AssignedOrgID != nil {
		snap["assignedOrgId"] = *r.AssignedOrgID
	}
	if r.RoadClass != nil {
		snap["roadClass"] = string(*r.RoadClass)
	}
	for k, v := range r.WorkflowData.Leaves() {
		snap[WorkflowFieldPrefix+k] = v
	}
	return snap
}

// StampStatusTimes records the first time the report reaches in_progress or resolved.
func (r *DamageReport) StampStatusTimes(now time.Time) {
	switch r.Status {
	case StatusInProgress:
		if r.InProgressAt == nil {
			t := now
			r.InProgressAt = &t
		}
	case StatusResolved:
		if r.ResolvedAt == nil {
			t := now
			r.ResolvedAt = &t
		}
	}
}

// WorkflowData is the operational progress document of a report. Recognised
// keys are typed; anything else lands in Extra as raw JSON.
type WorkflowData struct {
	ProgressPercent  *int
	EstimatedCostLkr *decimal.Decimal
	Notes            *string
	Extra            map[string]json.RawMessage
}

const (
	workflowKeyProgress = "progressPercent"
	workflowKeyCost     = "estimatedCostLkr"
	workflowKeyNotes    = "notes"
)

func (w WorkflowData) Clone() WorkflowData {
	c := WorkflowData{}
	if w.ProgressPercent != nil {
		p := *w.ProgressPercent
		c.ProgressPercent = &p
	}
	if w.EstimatedCostLkr != nil {
		d := *w.EstimatedCostLkr
		c.EstimatedCostLkr = &d
	}
	if w.Notes != nil {
		n := *w.Notes
		c.Notes = &n
	}
	if len(w.Extra) > 0 {
		c.Extra = make(map[string]json.RawMessage, len(w.Extra))
		for k, v := range w.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// Leaves returns every set key of the document. Unset keys are absent.
func (w WorkflowData) Leaves() map[string]interface{} {
	out := make(map[string]interface{}, 3+len(w.Extra))
	if w.ProgressPercent != nil {
		out[workflowKeyProgress] = *w.ProgressPercent
	}
	if w.EstimatedCostLkr != nil {
		out[workflowKeyCost] = *w.EstimatedCostLkr
	}
	if w.Notes != nil {
		out[workflowKeyNotes] = *w.Notes
	}
	for k, v := range w.Extra {
		out[k] = v
	}
	return out
}

// Merge applies patch key by key. A null value removes the key; keys not in
// patch are left untouched.
func (w *WorkflowData) Merge(patch map[string]json.RawMessage) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := bytes.TrimSpace(patch[key])
		isNull := len(raw) == 0 || bytes.Equal(raw, []byte("null"))
		field := WorkflowFieldPrefix + key

		switch key {
		case workflowKeyProgress:
			if isNull {
				w.ProgressPercent = nil
				continue
			}
			var p int
			if err := json.Unmarshal(raw, &p); err != nil {
				return NewValidationError(field, "must be an integer")
			}
			if p < 0 || p > 100 {
				return NewValidationError(field, "must be between 0 and 100")
			}
			w.ProgressPercent = &p
		case workflowKeyCost:
			if isNull {
				w.EstimatedCostLkr = nil
				continue
			}
			var d decimal.Decimal
			if err := d.UnmarshalJSON(raw); err != nil {
				return NewValidationError(field, "must be a number")
			}
			if d.IsNegative() {
				return NewValidationError(field, "must not be negative")
			}
			w.EstimatedCostLkr = &d
		case workflowKeyNotes:
			if isNull {
				w.Notes = nil
				continue
			}
			var n string
			if err := json.Unmarshal(raw, &n); err != nil {
				return NewValidationError(field, "must be a string")
			}
			if len(n) > maxNotesLength {
				return NewValidationError(field, "must be at most %d characters", maxNotesLength)
			}
			w.Notes = &n
		default:
			if isNull {
				delete(w.Extra, key)
				continue
			}
			var buf bytes.Buffer
			if err := json.Compact(&buf, raw); err != nil {
				return NewValidationError(field, "invalid JSON value")
			}
			if w.Extra == nil {
				w.Extra = make(map[string]json.RawMessage)
			}
			w.Extra[key] = buf.Bytes()
		}
	}
	return nil
}

func (w WorkflowData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 3+len(w.Extra))
	for k, v := range w.Extra {
		out[k] = v
	}
	if w.ProgressPercent != nil {
		out[workflowKeyProgress] = json.RawMessage(fmt.Sprintf("%d", *w.ProgressPercent))
	}
	if w.EstimatedCostLkr != nil {
		out[workflowKeyCost] = json.RawMessage(w.EstimatedCostLkr.String())
	}
	if w.Notes != nil {
		b, err := json.Marshal(*w.Notes)
		if err != nil {
			return nil, err
		}
		out[workflowKeyNotes] = b
	}
	return json.Marshal(out)
}

func (w *WorkflowData) UnmarshalJSON(data []byte) error {
	*w = WorkflowData{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewValidationError("workflowData", "must be a JSON object")
	}
	return w.Merge(raw)
}

// Optional distinguishes a key that was not sent from one explicitly set to null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// ReportPatch is a partial update of a report. Only keys present in the
// request body are Set.
type ReportPatch struct {
	Status           Optional[Status]                     `json:"status"`
	Severity         Optional[int]                        `json:"severity"`
	DamageType       Optional[DamageType]                 `json:"damageType"`
	PassabilityLevel Optional[PassabilityLevel]           `json:"passabilityLevel"`
	Description      Optional[string]                     `json:"description"`
	AssignedOrgID    Optional[string]                     `json:"assignedOrgId"`
	WorkflowData     Optional[map[string]json.RawMessage] `json:"workflowData"`
	Reason           *string                              `json:"reason"`
}

// ParseReportPatch decodes a PATCH body. Unrecognised keys are ignored.
func ParseReportPatch(body []byte) (*ReportPatch, error) {
	var p ReportPatch
	if err := json.Unmarshal(body, &p); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, NewValidationError("", "malformed request body: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *ReportPatch) Validate() error {
	if p.Status.Set && p.Status.Value == nil {
		return NewValidationError("status", "must not be null")
	}
	if p.Status.Value != nil && !p.Status.Value.Valid() {
		return NewValidationError("status", "unknown status %q", *p.Status.Value)
	}
	if p.Severity.Set {
		if p.Severity.Value == nil {
			return NewValidationError("severity", "must not be null")
		}
		if *p.Severity.Value < minSeverity || *p.Severity.Value > maxSeverity {
			return NewValidationError("severity", "must be between %d and %d", minSeverity, maxSeverity)
		}
	}
	if p.DamageType.Set && p.DamageType.Value == nil {
		return NewValidationError("damageType", "must not be null")
	}
	if p.Description.Value != nil && len(*p.Description.Value) > maxDescriptionLength {
		return NewValidationError("description", "must be at most %d characters", maxDescriptionLength)
	}
	if p.AssignedOrgID.Value != nil {
		if _, err := uuid.Parse(*p.AssignedOrgID.Value); err != nil {
			return NewValidationError("assignedOrgId", "must be a UUID")
		}
	}
	if p.WorkflowData.Set && p.WorkflowData.Value == nil {
		return NewValidationError("workflowData", "must be an object")
	}
	return nil
}

// Apply writes the patch onto r and returns the flattened field names it
// touched. The status transition must be checked by the caller beforehand.
func (p *ReportPatch) Apply(r *DamageReport) ([]string, error) {
	var touched []string
	if p.Status.Set {
		r.Status = *p.Status.Value
		touched = append(touched, "status")
	}
	if p.Severity.Set {
		r.Severity = *p.Severity.Value
		touched = append(touched, "severity")
	}
	if p.DamageType.Set {
		r.DamageType = *p.DamageType.Value
		touched = append(touched, "damageType")
	}
	if p.PassabilityLevel.Set {
		r.PassabilityLevel = p.PassabilityLevel.Value
		touched = append(touched, "passabilityLevel")
	}
	if p.Description.Set {
		r.Description = p.Description.Value
		touched = append(touched, "description")
	}
	if p.AssignedOrgID.Set {
		r.AssignedOrgID = p.AssignedOrgID.Value
		touched = append(touched, "assignedOrgId")
	}
	if p.WorkflowData.Set {
		if err := r.WorkflowData.Merge(*p.WorkflowData.Value); err != nil {
			return nil, err
		}
		for k := range *p.WorkflowData.Value {
			touched = append(touched, WorkflowFieldPrefix+k)
		}
	}
	return touched, nil
}

type CreateReportRequest struct {
	Severity         int               `json:"severity" validate:"required,min=1,max=5"`
	DamageType       DamageType        `json:"damageType" validate:"required"`
	PassabilityLevel *PassabilityLevel `json:"passabilityLevel"`
	Description      string            `json:"description" validate:"max=2000"`
	Latitude         float64           `json:"latitude" validate:"latitude"`
	Longitude        float64           `json:"longitude" validate:"longitude"`
}

type ReportFilter struct {
	Status *Status
	Limit  int
	Offset int
}
