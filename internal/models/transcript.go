package models

import "time"

// TranscriptRow is one completed enrollment on a transcript.
type TranscriptRow struct {
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	TermName    string `db:"term_name" json:"term_name"`
	Credits     int    `db:"credits" json:"credits"`
	Grade       string `db:"grade" json:"grade"`
}

// Transcript summarises a student's academic record. GPA excludes grades that
// carry no grade points (P, NP, W, I).
type Transcript struct {
	StudentID     string          `json:"student_id"`
	StudentName   string          `json:"student_name"`
	StudentNumber string          `json:"student_number"`
	Rows          []TranscriptRow `json:"rows"`
	GPA           float64         `json:"gpa"`
	CreditsEarned int             `json:"credits_earned"`
	CreditsGraded int             `json:"credits_graded"`
	GeneratedAt   time.Time       `json:"generated_at"`
}
