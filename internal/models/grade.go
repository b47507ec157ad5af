package models

import "time"

// Letter grades accepted by grade submission. The special grades P, NP, W and
// I are valid on an enrollment but P, NP and W carry no grade points.
var validGrades = map[string]struct{}{
	"A+": {}, "A": {}, "A-": {},
	"B+": {}, "B": {}, "B-": {},
	"C+": {}, "C": {}, "C-": {},
	"D+": {}, "D": {}, "D-": {},
	"F": {}, "P": {}, "NP": {}, "W": {}, "I": {},
}

var gradePoints = map[string]float64{
	"A+": 4.0, "A": 4.0, "A-": 3.7,
	"B+": 3.3, "B": 3.0, "B-": 2.7,
	"C+": 2.3, "C": 2.0, "C-": 1.7,
	"D+": 1.3, "D": 1.0, "D-": 0.7,
	"F": 0.0,
}

// ValidGrade reports whether the grade string is in the accepted set.
func ValidGrade(grade string) bool {
	_, ok := validGrades[grade]
	return ok
}

// GradePoints returns the 4.0-scale points for a letter grade. ok is false for
// grades excluded from GPA (P, NP, W, I); callers must skip those, not treat
// the absence as zero.
func GradePoints(grade string) (float64, bool) {
	points, ok := gradePoints[grade]
	return points, ok
}

// GradeChangeStatus represents the lifecycle of a grade change request.
type GradeChangeStatus string

// Possible grade change request statuses.
const (
	GradeChangePending  GradeChangeStatus = "PENDING"
	GradeChangeApproved GradeChangeStatus = "APPROVED"
	GradeChangeDenied   GradeChangeStatus = "DENIED"
)

// GradeChangeRequest proposes a change to an already-graded enrollment.
type GradeChangeRequest struct {
	ID           string            `db:"id" json:"id"`
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	OldGrade     string            `db:"old_grade" json:"old_grade"`
	NewGrade     string            `db:"new_grade" json:"new_grade"`
	Reason       string            `db:"reason" json:"reason"`
	RequestedBy  string            `db:"requested_by" json:"requested_by"`
	Status       GradeChangeStatus `db:"status" json:"status"`
	ApprovedBy   *string           `db:"approved_by" json:"approved_by,omitempty"`
	DenialReason *string           `db:"denial_reason" json:"denial_reason,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// GradeBucket summarises one grade within a section distribution.
type GradeBucket struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// GradeDistribution aggregates graded enrollments for a section.
type GradeDistribution struct {
	SectionID     string                 `json:"section_id"`
	TotalStudents int                    `json:"total_students"`
	Distribution  map[string]GradeBucket `json:"distribution"`
}

// GradingProgress reports submission completeness for a section.
type GradingProgress struct {
	SectionID  string `json:"section_id"`
	Total      int    `json:"total"`
	Graded     int    `json:"graded"`
	Pending    int    `json:"pending"`
	Percentage int    `json:"percentage"`
	IsComplete bool   `json:"is_complete"`
}

// BulkGradeResult summarises a bulk submission with per-row failures.
type BulkGradeResult struct {
	Successful int               `json:"successful"`
	Failed     map[string]string `json:"failed,omitempty"`
	Total      int               `json:"total"`
}
