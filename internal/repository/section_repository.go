package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univkit/registrar-api/internal/models"
)

// SectionRepository handles persistence of course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a course section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	const query = `SELECT id, course_id, term_id, instructor_id, section_code, capacity, created_at, updated_at FROM course_sections WHERE id = $1`
	var section models.CourseSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with catalog and seat-count context.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT cs.id, cs.course_id, cs.term_id, cs.instructor_id, cs.section_code, cs.capacity, cs.created_at, cs.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name, u.full_name AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id AND e.status = 'ENROLLED') AS enrolled_count
        FROM course_sections cs
        JOIN courses c ON c.id = cs.course_id
        JOIN terms t ON t.id = cs.term_id
        LEFT JOIN users u ON u.id = cs.instructor_id
        WHERE cs.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM course_sections cs
JOIN courses c ON c.id = cs.course_id
JOIN terms t ON t.id = cs.term_id
LEFT JOIN users u ON u.id = cs.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT cs.id, cs.course_id, cs.term_id, cs.instructor_id, cs.section_code, cs.capacity, cs.created_at, cs.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name, u.full_name AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id AND e.status = 'ENROLLED') AS enrolled_count
        %s ORDER BY c.code ASC, cs.section_code ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// Create persists a new course section.
func (r *SectionRepository) Create(ctx context.Context, section *models.CourseSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	const query = `INSERT INTO course_sections (id, course_id, term_id, instructor_id, section_code, capacity, created_at, updated_at)
        VALUES (:id, :course_id, :term_id, :instructor_id, :section_code, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// IncrementCapacity raises the section capacity by the given number of seats.
// The only caller is the enrollment-override approval side effect.
func (r *SectionRepository) IncrementCapacity(ctx context.Context, id string, seats int) error {
	const query = `UPDATE course_sections SET capacity = capacity + $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, seats, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment section capacity: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("increment section capacity: section %s not found", id)
	}
	return nil
}
