package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univkit/registrar-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Seat accounting
// runs inside transactions that lock the owning course_sections row, so the
// count-then-insert sequence cannot oversell capacity under concurrency.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN course_sections cs ON cs.id = e.section_id
LEFT JOIN courses c ON c.id = cs.course_id
LEFT JOIN terms t ON t.id = cs.term_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "s.full_name",
		"course_code":  "c.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.status, e.grade, e.completion_date, e.created_at, e.updated_at,
        s.full_name AS student_name, s.student_number AS student_number, c.code AS course_code, c.title AS course_title, t.name AS term_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, grade, completion_date, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.status, e.grade, e.completion_date, e.created_at, e.updated_at,
        s.full_name AS student_name, s.student_number AS student_number, c.code AS course_code, c.title AS course_title, t.name AS term_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN course_sections cs ON cs.id = e.section_id
        LEFT JOIN courses c ON c.id = cs.course_id
        LEFT JOIN terms t ON t.id = cs.term_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive checks if a non-withdrawn enrollment exists for the pair.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, sectionID, models.EnrollmentStatusWithdrawn); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CountEnrolled returns how many seats of a section are taken.
func (r *EnrollmentRepository) CountEnrolled(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}
	return count, nil
}

// ErrSectionFull is returned when the caller demands an ENROLLED seat on a
// full section and waitlist fallback is disabled.
var ErrSectionFull = errors.New("course section is full")

// CreateWithCapacityCheck inserts the enrollment after re-checking seat
// availability under a row lock on the section. When the section is full and
// allowFallback is true the enrollment is stored as WAITLISTED and
// waitlisted=true is returned; with allowFallback false the transaction rolls
// back with ErrSectionFull instead.
func (r *EnrollmentRepository) CreateWithCapacityCheck(ctx context.Context, enrollment *models.Enrollment, allowFallback bool) (waitlisted bool, err error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	if err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM course_sections WHERE id = $1 FOR UPDATE`, enrollment.SectionID); err != nil {
		return false, fmt.Errorf("lock section: %w", err)
	}

	var enrolled int
	if err = tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`, enrollment.SectionID, models.EnrollmentStatusEnrolled); err != nil {
		return false, fmt.Errorf("count enrolled: %w", err)
	}

	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	if enrollment.Status == models.EnrollmentStatusEnrolled && enrolled >= capacity {
		if !allowFallback {
			err = ErrSectionFull
			return false, err
		}
		enrollment.Status = models.EnrollmentStatusWaitlisted
		waitlisted = true
	}

	const insert = `INSERT INTO enrollments (id, student_id, section_id, status, grade, completion_date, created_at, updated_at)
        VALUES (:id, :student_id, :section_id, :status, :grade, :completion_date, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		return false, fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit enrollment: %w", err)
	}
	return waitlisted, nil
}

// PromoteOldestWaitlisted moves the earliest waitlisted enrollment of a
// section to ENROLLED, provided a seat is free. Capacity is re-checked under
// the section row lock, so running the promotion twice for the same
// withdrawal is harmless. Returns nil when no seat or no candidate exists.
func (r *EnrollmentRepository) PromoteOldestWaitlisted(ctx context.Context, sectionID string) (promoted *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin promotion tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	if err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM course_sections WHERE id = $1 FOR UPDATE`, sectionID); err != nil {
		return nil, fmt.Errorf("lock section: %w", err)
	}

	var enrolled int
	if err = tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}
	if enrolled >= capacity {
		err = tx.Commit()
		return nil, err
	}

	var candidate models.Enrollment
	if err = tx.GetContext(ctx, &candidate, `SELECT id, student_id, section_id, status, grade, completion_date, created_at, updated_at
        FROM enrollments WHERE section_id = $1 AND status = $2 ORDER BY created_at ASC LIMIT 1`, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		if err == sql.ErrNoRows {
			err = tx.Commit()
			return nil, err
		}
		return nil, fmt.Errorf("find waitlisted candidate: %w", err)
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`, candidate.ID, models.EnrollmentStatusEnrolled, now); err != nil {
		return nil, fmt.Errorf("promote enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", err)
	}
	candidate.Status = models.EnrollmentStatusEnrolled
	candidate.UpdatedAt = now
	return &candidate, nil
}

// UpdateStatus updates the lifecycle status for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SetGrade records a submitted grade, marking the enrollment completed.
func (r *EnrollmentRepository) SetGrade(ctx context.Context, id, grade string, completedAt time.Time) error {
	const query = `UPDATE enrollments SET grade = $2, status = $3, completion_date = $4, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, models.EnrollmentStatusCompleted, completedAt); err != nil {
		return fmt.Errorf("set enrollment grade: %w", err)
	}
	return nil
}

// UpdateGrade replaces the grade on an already-graded enrollment.
func (r *EnrollmentRepository) UpdateGrade(ctx context.Context, id, grade string) error {
	const query = `UPDATE enrollments SET grade = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment grade: %w", err)
	}
	return nil
}

// ListBySection returns non-withdrawn enrollments for a section.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, grade, completion_date, created_at, updated_at
        FROM enrollments WHERE section_id = $1 AND status <> $2 ORDER BY created_at ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID, models.EnrollmentStatusWithdrawn); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// GradeCounts returns how many graded enrollments hold each grade in a section.
func (r *EnrollmentRepository) GradeCounts(ctx context.Context, sectionID string) (map[string]int, error) {
	const query = `SELECT grade, COUNT(*) AS count FROM enrollments WHERE section_id = $1 AND grade IS NOT NULL GROUP BY grade`
	rows, err := r.db.QueryxContext(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("grade counts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]int)
	for rows.Next() {
		var grade string
		var count int
		if err := rows.Scan(&grade, &count); err != nil {
			return nil, fmt.Errorf("scan grade count: %w", err)
		}
		counts[grade] = count
	}
	return counts, rows.Err()
}

// TranscriptRows returns completed, graded enrollments for a student joined
// with catalog context, ordered by term start date.
func (r *EnrollmentRepository) TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	const query = `SELECT c.code AS course_code, c.title AS course_title, t.name AS term_name, c.credits AS credits, e.grade AS grade
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        JOIN terms t ON t.id = cs.term_id
        WHERE e.student_id = $1 AND e.status = $2 AND e.grade IS NOT NULL
        ORDER BY t.start_date ASC, c.code ASC`
	var rows []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("transcript rows: %w", err)
	}
	return rows, nil
}
