package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/univkit/registrar-api/internal/models"
)

// HoldRepository provides read access to student holds. The workflow core
// never mutates holds.
type HoldRepository struct {
	db *sqlx.DB
}

// NewHoldRepository constructs the repository.
func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

// HasActiveHold reports whether the student has an unresolved hold of a type.
func (r *HoldRepository) HasActiveHold(ctx context.Context, studentID string, holdType models.HoldType) (bool, error) {
	const query = `SELECT 1 FROM holds WHERE student_id = $1 AND type = $2 AND active = TRUE LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, holdType); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active hold: %w", err)
	}
	return true, nil
}

// ListActiveByStudent returns all unresolved holds for a student.
func (r *HoldRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	const query = `SELECT id, student_id, type, severity, reason, prevents_enrollment, prevents_graduation, prevents_transcripts, active, resolved_at, created_at
        FROM holds WHERE student_id = $1 AND active = TRUE ORDER BY created_at DESC`
	var holds []models.Hold
	if err := r.db.SelectContext(ctx, &holds, query, studentID); err != nil {
		return nil, fmt.Errorf("list active holds: %w", err)
	}
	return holds, nil
}
