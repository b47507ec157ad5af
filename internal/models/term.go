package models

import "time"

// Term models an academic term bounding enrollment and grading windows.
// A nil deadline means the window is never enforced, not that it is closed.
type Term struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	AcademicYear    string     `db:"academic_year" json:"academic_year"`
	StartDate       time.Time  `db:"start_date" json:"start_date"`
	EndDate         time.Time  `db:"end_date" json:"end_date"`
	AddDropDeadline *time.Time `db:"add_drop_deadline" json:"add_drop_deadline,omitempty"`
	GradeDeadline   *time.Time `db:"grade_deadline" json:"grade_deadline,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// HasEnded reports whether the term is over at the given instant.
func (t *Term) HasEnded(now time.Time) bool {
	return now.After(t.EndDate)
}

// AddDropClosed reports whether the add/drop window has closed.
func (t *Term) AddDropClosed(now time.Time) bool {
	return t.AddDropDeadline != nil && now.After(*t.AddDropDeadline)
}

// GradingClosed reports whether the grade submission window has closed.
func (t *Term) GradingClosed(now time.Time) bool {
	return t.GradeDeadline != nil && now.After(*t.GradeDeadline)
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	AcademicYear string
	IsActive     *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
