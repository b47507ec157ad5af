package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalType enumerates the closed set of approval request kinds.
type ApprovalType string

// Supported approval request types.
const (
	ApprovalTypeSectionOffering    ApprovalType = "SECTION_OFFERING"
	ApprovalTypeEnrollmentOverride ApprovalType = "ENROLLMENT_OVERRIDE"
)

// ApprovalStatus represents the lifecycle of an approval request.
type ApprovalStatus string

// Possible approval request statuses.
const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusDenied   ApprovalStatus = "DENIED"
)

// EnrollmentOverridePayload is the typed payload for ENROLLMENT_OVERRIDE
// requests; approving one raises the section capacity by a single seat.
type EnrollmentOverridePayload struct {
	SectionID string `json:"section_id"`
}

// ApprovalRequest is a department-scoped request needing staff sign-off. The
// target is an explicit (type, id) pair and Payload holds the per-type variant
// rather than an open-ended metadata map.
type ApprovalRequest struct {
	ID           string          `db:"id" json:"id"`
	Type         ApprovalType    `db:"type" json:"type"`
	TargetType   string          `db:"target_type" json:"target_type"`
	TargetID     string          `db:"target_id" json:"target_id"`
	DepartmentID string          `db:"department_id" json:"department_id"`
	RequestedBy  string          `db:"requested_by" json:"requested_by"`
	Status       ApprovalStatus  `db:"status" json:"status"`
	Notes        *string         `db:"notes" json:"notes,omitempty"`
	Payload      json.RawMessage `db:"payload" json:"payload,omitempty"`
	ApprovedBy   *string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	DenialReason *string         `db:"denial_reason" json:"denial_reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// OverridePayload decodes the payload for ENROLLMENT_OVERRIDE requests.
func (r *ApprovalRequest) OverridePayload() (*EnrollmentOverridePayload, error) {
	if r.Type != ApprovalTypeEnrollmentOverride {
		return nil, fmt.Errorf("request %s is not an enrollment override", r.ID)
	}
	var payload EnrollmentOverridePayload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode override payload: %w", err)
	}
	if payload.SectionID == "" {
		return nil, fmt.Errorf("override payload for request %s missing section id", r.ID)
	}
	return &payload, nil
}

// ApprovalFilter provides filters for listing approval requests.
type ApprovalFilter struct {
	Type         ApprovalType
	DepartmentID string
	Status       ApprovalStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
