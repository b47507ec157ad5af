package models

import "time"

// HoldType categorises administrative blocks on a student.
type HoldType string

// Supported hold types.
const (
	HoldTypeFinancial      HoldType = "FINANCIAL"
	HoldTypeAcademic       HoldType = "ACADEMIC"
	HoldTypeLibrary        HoldType = "LIBRARY"
	HoldTypeAdministrative HoldType = "ADMINISTRATIVE"
)

// Hold is an administrative block on a student account. The clearance checks
// consume holds read-only.
type Hold struct {
	ID                  string     `db:"id" json:"id"`
	StudentID           string     `db:"student_id" json:"student_id"`
	Type                HoldType   `db:"type" json:"type"`
	Severity            string     `db:"severity" json:"severity"`
	Reason              string     `db:"reason" json:"reason"`
	PreventsEnrollment  bool       `db:"prevents_enrollment" json:"prevents_enrollment"`
	PreventsGraduation  bool       `db:"prevents_graduation" json:"prevents_graduation"`
	PreventsTranscripts bool       `db:"prevents_transcripts" json:"prevents_transcripts"`
	Active              bool       `db:"active" json:"active"`
	ResolvedAt          *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}
