package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClassificationRecord is the classification-specific history of a report.
type ClassificationRecord struct {
	ID                   string               `json:"id"`
	ReportID             string               `json:"reportId"`
	PreviousRoadClass    *RoadClass           `json:"previousRoadClass"`
	NewRoadClass         RoadClass            `json:"newRoadClass"`
	PreviousOrgID        *string              `json:"previousOrgId"`
	NewOrgID             *string              `json:"newOrgId"`
	ClassificationStatus ClassificationStatus `json:"classificationStatus"`
	ClassifiedBy         *string              `json:"classifiedBy"`
	Reason               *string              `json:"reason,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
}

type ClassifyReportRequest struct {
	RoadClass            string  `json:"roadClass" validate:"required,oneof=A B C D E a b c d e"`
	AssignedOrgID        *string `json:"assignedOrgId" validate:"omitempty,uuid"`
	ClassificationStatus string  `json:"classificationStatus" validate:"omitempty,oneof=unclassified pending_review classified"`
	Reason               *string `json:"reason" validate:"omitempty,max=1000"`
}

// Normalize parses the request into typed values. An empty status defaults to classified.
func (r ClassifyReportRequest) Normalize() (RoadClass, *string, ClassificationStatus, error) {
	class, err := ParseRoadClass(r.RoadClass)
	if err != nil {
		return "", nil, "", err
	}
	status := ClassificationClassified
	if r.ClassificationStatus != "" {
		if status, err = ParseClassificationStatus(r.ClassificationStatus); err != nil {
			return "", nil, "", err
		}
	}
	if r.AssignedOrgID != nil {
		if _, err := uuid.Parse(*r.AssignedOrgID); err != nil {
			return "", nil, "", NewValidationError("assignedOrgId", "must be a UUID")
		}
	}
	return class, r.AssignedOrgID, status, nil
}
