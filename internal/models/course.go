package models

import "time"

// Course represents a catalog course.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Title        string    `db:"title" json:"title"`
	Credits      int       `db:"credits" json:"credits"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseSection is a scheduled offering of a course within a term.
// Capacity is only ever raised through an approved enrollment override.
type CourseSection struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	TermID       string    `db:"term_id" json:"term_id"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	SectionCode  string    `db:"section_code" json:"section_code"`
	Capacity     int       `db:"capacity" json:"capacity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches CourseSection with catalog and term context.
type SectionDetail struct {
	CourseSection
	CourseCode     string  `db:"course_code" json:"course_code"`
	CourseTitle    string  `db:"course_title" json:"course_title"`
	TermName       string  `db:"term_name" json:"term_name"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
	EnrolledCount  int     `db:"enrolled_count" json:"enrolled_count"`
}

// SectionFilter provides filters for listing course sections.
type SectionFilter struct {
	CourseID     string
	TermID       string
	InstructorID string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
