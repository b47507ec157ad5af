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

// GraduationRepository handles persistence of graduation applications.
type GraduationRepository struct {
	db *sqlx.DB
}

// NewGraduationRepository constructs the repository.
func NewGraduationRepository(db *sqlx.DB) *GraduationRepository {
	return &GraduationRepository{db: db}
}

const graduationColumns = `id, student_id, program_id, term_id, status, clearance_status, reviewed_by, created_at, updated_at`

// FindByID returns a graduation application by identifier.
func (r *GraduationRepository) FindByID(ctx context.Context, id string) (*models.GraduationApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM graduation_applications WHERE id = $1`, graduationColumns)
	var application models.GraduationApplication
	if err := r.db.GetContext(ctx, &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// List returns graduation applications filtered by the provided criteria.
func (r *GraduationRepository) List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationApplication, int, error) {
	base := `FROM graduation_applications WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, graduationColumns, base+clause, size, offset)

	var applications []models.GraduationApplication
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list graduation applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count graduation applications: %w", err)
	}
	return applications, total, nil
}

// Create persists a new graduation application.
func (r *GraduationRepository) Create(ctx context.Context, application *models.GraduationApplication) error {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if application.CreatedAt.IsZero() {
		application.CreatedAt = now
	}
	application.UpdatedAt = now
	if application.Status == "" {
		application.Status = models.GraduationStatusPending
	}
	const query = `INSERT INTO graduation_applications (id, student_id, program_id, term_id, status, clearance_status, reviewed_by, created_at, updated_at)
        VALUES (:id, :student_id, :program_id, :term_id, :status, :clearance_status, :reviewed_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, application); err != nil {
		return fmt.Errorf("create graduation application: %w", err)
	}
	return nil
}

// UpdateClearance stores the clearance map and overall status together.
func (r *GraduationRepository) UpdateClearance(ctx context.Context, id string, status models.GraduationStatus, clearance models.ClearanceStatus) error {
	const query = `UPDATE graduation_applications SET status = $2, clearance_status = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, clearance, time.Now().UTC()); err != nil {
		return fmt.Errorf("update clearance: %w", err)
	}
	return nil
}

// SetApproved records final approval and the reviewing user.
func (r *GraduationRepository) SetApproved(ctx context.Context, id, reviewedBy string) error {
	const query = `UPDATE graduation_applications SET status = $2, reviewed_by = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.GraduationStatusApproved, reviewedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve graduation application: %w", err)
	}
	return nil
}
