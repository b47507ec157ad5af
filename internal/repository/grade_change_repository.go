package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univkit/registrar-api/internal/models"
)

// GradeChangeRepository handles persistence of grade change requests.
type GradeChangeRepository struct {
	db *sqlx.DB
}

// NewGradeChangeRepository constructs the repository.
func NewGradeChangeRepository(db *sqlx.DB) *GradeChangeRepository {
	return &GradeChangeRepository{db: db}
}

const gradeChangeColumns = `id, enrollment_id, old_grade, new_grade, reason, requested_by, status, approved_by, denial_reason, created_at, updated_at`

// FindByID returns a grade change request by identifier.
func (r *GradeChangeRepository) FindByID(ctx context.Context, id string) (*models.GradeChangeRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM grade_change_requests WHERE id = $1`, gradeChangeColumns)
	var request models.GradeChangeRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListByEnrollment returns change requests for an enrollment, newest first.
func (r *GradeChangeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeChangeRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM grade_change_requests WHERE enrollment_id = $1 ORDER BY created_at DESC`, gradeChangeColumns)
	var requests []models.GradeChangeRequest
	if err := r.db.SelectContext(ctx, &requests, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grade change requests: %w", err)
	}
	return requests, nil
}

// Create persists a new grade change request.
func (r *GradeChangeRepository) Create(ctx context.Context, request *models.GradeChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = models.GradeChangePending
	}
	const query = `INSERT INTO grade_change_requests (id, enrollment_id, old_grade, new_grade, reason, requested_by, status, approved_by, denial_reason, created_at, updated_at)
        VALUES (:id, :enrollment_id, :old_grade, :new_grade, :reason, :requested_by, :status, :approved_by, :denial_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create grade change request: %w", err)
	}
	return nil
}

// Approve marks the request approved and records the approver.
func (r *GradeChangeRepository) Approve(ctx context.Context, id, approvedBy string) error {
	const query = `UPDATE grade_change_requests SET status = $2, approved_by = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.GradeChangeApproved, approvedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve grade change request: %w", err)
	}
	return nil
}

// Deny marks the request denied with a reason.
func (r *GradeChangeRepository) Deny(ctx context.Context, id, deniedBy, reason string) error {
	const query = `UPDATE grade_change_requests SET status = $2, approved_by = $3, denial_reason = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.GradeChangeDenied, deniedBy, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("deny grade change request: %w", err)
	}
	return nil
}
