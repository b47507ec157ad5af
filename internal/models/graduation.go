package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GraduationStatus represents the lifecycle of a graduation application.
type GraduationStatus string

// Possible graduation application statuses.
const (
	GraduationStatusPending             GraduationStatus = "PENDING"
	GraduationStatusClearanceInProgress GraduationStatus = "CLEARANCE_IN_PROGRESS"
	GraduationStatusCleared             GraduationStatus = "CLEARED"
	GraduationStatusApproved            GraduationStatus = "APPROVED"
	GraduationStatusDenied              GraduationStatus = "DENIED"
)

// ClearanceDepartmentStatus is the per-department clearance state.
type ClearanceDepartmentStatus string

// Possible department clearance states.
const (
	ClearancePending ClearanceDepartmentStatus = "PENDING"
	ClearanceCleared ClearanceDepartmentStatus = "CLEARED"
	ClearanceHold    ClearanceDepartmentStatus = "HOLD"
)

// Clearance department names. Every graduation application must be cleared by
// each of these before final approval.
const (
	DepartmentFinancial = "financial"
	DepartmentLibrary   = "library"
	DepartmentRegistrar = "registrar"
	DepartmentAcademic  = "academic"
)

// ClearanceDepartments is the fixed set of departments seeded on initiation.
var ClearanceDepartments = []string{
	DepartmentFinancial,
	DepartmentLibrary,
	DepartmentRegistrar,
	DepartmentAcademic,
}

// ClearanceEntry tracks one department's sign-off.
type ClearanceEntry struct {
	Status    ClearanceDepartmentStatus `json:"status"`
	ClearedBy *string                   `json:"cleared_by,omitempty"`
	ClearedAt *time.Time                `json:"cleared_at,omitempty"`
	Notes     *string                   `json:"notes,omitempty"`
}

// ClearanceStatus maps department name to its clearance entry. Stored as JSONB.
type ClearanceStatus map[string]ClearanceEntry

// AllCleared reports whether every fixed department has been cleared.
func (c ClearanceStatus) AllCleared() bool {
	for _, dept := range ClearanceDepartments {
		if entry, ok := c[dept]; !ok || entry.Status != ClearanceCleared {
			return false
		}
	}
	return true
}

// Value implements driver.Valuer for JSONB persistence.
func (c ClearanceStatus) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB persistence.
func (c *ClearanceStatus) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported clearance status type %T", src)
	}
}

// GraduationApplication is a student's request to graduate in a term/program.
type GraduationApplication struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	ProgramID       string           `db:"program_id" json:"program_id"`
	TermID          string           `db:"term_id" json:"term_id"`
	Status          GraduationStatus `db:"status" json:"status"`
	ClearanceStatus ClearanceStatus  `db:"clearance_status" json:"clearance_status,omitempty"`
	ReviewedBy      *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// GraduationFilter provides filters for listing graduation applications.
type GraduationFilter struct {
	StudentID string
	TermID    string
	Status    GraduationStatus
	Page      int
	PageSize  int
}
