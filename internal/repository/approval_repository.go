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

// ApprovalRepository handles persistence of approval requests.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, type, target_type, target_id, department_id, requested_by, status, notes, payload, approved_by, approved_at, denial_reason, created_at, updated_at`

// FindByID returns an approval request by identifier.
func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE id = $1`, approvalColumns)
	var request models.ApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns approval requests filtered by the provided criteria.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, int, error) {
	base := `FROM approval_requests WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, approvalColumns, base+clause, size, offset)

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list approval requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count approval requests: %w", err)
	}
	return requests, total, nil
}

// Create persists a new approval request.
func (r *ApprovalRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = models.ApprovalStatusPending
	}
	const query = `INSERT INTO approval_requests (id, type, target_type, target_id, department_id, requested_by, status, notes, payload, approved_by, approved_at, denial_reason, created_at, updated_at)
        VALUES (:id, :type, :target_type, :target_id, :department_id, :requested_by, :status, :notes, :payload, :approved_by, :approved_at, :denial_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// Approve marks the request approved, recording approver and timestamp.
func (r *ApprovalRepository) Approve(ctx context.Context, id, approvedBy string, notes *string, approvedAt time.Time) error {
	const query = `UPDATE approval_requests SET status = $2, approved_by = $3, approved_at = $4, notes = COALESCE($5, notes), updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ApprovalStatusApproved, approvedBy, approvedAt, notes); err != nil {
		return fmt.Errorf("approve request: %w", err)
	}
	return nil
}

// Deny marks the request denied with a reason.
func (r *ApprovalRepository) Deny(ctx context.Context, id, deniedBy, reason string) error {
	const query = `UPDATE approval_requests SET status = $2, approved_by = $3, denial_reason = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ApprovalStatusDenied, deniedBy, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("deny request: %w", err)
	}
	return nil
}
