package domain

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusVerified   Status = "verified"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// ValidStatuses returns the report lifecycle statuses in lifecycle order.
func ValidStatuses() []Status {
	return []Status{StatusNew, StatusVerified, StatusInProgress, StatusResolved, StatusRejected}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range ValidStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", NewValidationError("status", "unknown status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewValidationError("status", "must be a string")
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Role string

const (
	RoleCitizen      Role = "citizen"
	RoleStakeholder  Role = "stakeholder"
	RoleFieldOfficer Role = "field_officer"
	RoleAdmin        Role = "admin"
)

func ValidRoles() []Role {
	return []Role{RoleCitizen, RoleStakeholder, RoleFieldOfficer, RoleAdmin}
}

func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, r := range ValidRoles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", NewValidationError("role", "unknown role %q", s)
}

type DamageType string

const (
	DamageTypePothole         DamageType = "pothole"
	DamageTypeCrack           DamageType = "crack"
	DamageTypeFlooding        DamageType = "flooding"
	DamageTypeLandslide       DamageType = "landslide"
	DamageTypeCollapsedBridge DamageType = "collapsed_bridge"
	DamageTypeDebris          DamageType = "debris"
	DamageTypeOther           DamageType = "other"
)

func ValidDamageTypes() []DamageType {
	return []DamageType{
		DamageTypePothole, DamageTypeCrack, DamageTypeFlooding, DamageTypeLandslide,
		DamageTypeCollapsedBridge, DamageTypeDebris, DamageTypeOther,
	}
}

func ParseDamageType(s string) (DamageType, error) {
	for _, d := range ValidDamageTypes() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", NewValidationError("damageType", "unknown damage type %q", s)
}

func (d *DamageType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewValidationError("damageType", "must be a string")
	}
	parsed, err := ParseDamageType(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type PassabilityLevel string

const (
	PassabilityPassable   PassabilityLevel = "passable"
	PassabilityDifficult  PassabilityLevel = "difficult"
	PassabilityImpassable PassabilityLevel = "impassable"
)

func ParsePassabilityLevel(s string) (PassabilityLevel, error) {
	switch p := PassabilityLevel(s); p {
	case PassabilityPassable, PassabilityDifficult, PassabilityImpassable:
		return p, nil
	}
	return "", NewValidationError("passabilityLevel", "unknown passability level %q", s)
}

func (p *PassabilityLevel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewValidationError("passabilityLevel", "must be a string")
	}
	parsed, err := ParsePassabilityLevel(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TargetType addresses the kind of entity an audit entry refers to.
type TargetType string

const (
	TargetReport           TargetType = "report"
	TargetUser             TargetType = "user"
	TargetInvitation       TargetType = "invitation"
	TargetUserOrganization TargetType = "user_organization"
)

func ParseTargetType(s string) (TargetType, error) {
	switch t := TargetType(s); t {
	case TargetReport, TargetUser, TargetInvitation, TargetUserOrganization:
		return t, nil
	}
	return "", NewValidationError("targetType", "unknown target type %q", s)
}

type RoadClass string

const (
	RoadClassA RoadClass = "A"
	RoadClassB RoadClass = "B"
	RoadClassC RoadClass = "C"
	RoadClassD RoadClass = "D"
	RoadClassE RoadClass = "E"
)

func ParseRoadClass(s string) (RoadClass, error) {
	switch c := RoadClass(strings.ToUpper(s)); c {
	case RoadClassA, RoadClassB, RoadClassC, RoadClassD, RoadClassE:
		return c, nil
	}
	return "", NewValidationError("roadClass", "unknown road class %q", s)
}

type ClassificationStatus string

const (
	ClassificationUnclassified  ClassificationStatus = "unclassified"
	ClassificationPendingReview ClassificationStatus = "pending_review"
	ClassificationClassified    ClassificationStatus = "classified"
)

func ParseClassificationStatus(s string) (ClassificationStatus, error) {
	switch c := ClassificationStatus(s); c {
	case ClassificationUnclassified, ClassificationPendingReview, ClassificationClassified:
		return c, nil
	}
	return "", NewValidationError("classificationStatus", "unknown classification status %q", s)
}
