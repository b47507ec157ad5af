package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type approvalRepository interface {
	FindByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, int, error)
	Create(ctx context.Context, request *models.ApprovalRequest) error
	Approve(ctx context.Context, id, approvedBy string, notes *string, approvedAt time.Time) error
	Deny(ctx context.Context, id, deniedBy, reason string) error
}

type capacityRaiser interface {
	IncrementCapacity(ctx context.Context, id string, seats int) error
}

// ApprovalService runs the staff sign-off workflow. Approving a request
// dispatches a per-type side effect; the dispatch is exhaustive over the
// closed ApprovalType set.
type ApprovalService struct {
	approvals approvalRepository
	sections  capacityRaiser
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewApprovalService constructs the approval service.
func NewApprovalService(approvals approvalRepository, sections capacityRaiser, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{approvals: approvals, sections: sections, validator: validate, logger: logger, now: time.Now}
}

// CreateApprovalRequest opens a new request for staff review.
type CreateApprovalRequest struct {
	Type         string  `json:"type" validate:"required,oneof=SECTION_OFFERING ENROLLMENT_OVERRIDE"`
	TargetType   string  `json:"target_type" validate:"required"`
	TargetID     string  `json:"target_id" validate:"required"`
	DepartmentID string  `json:"department_id" validate:"required"`
	RequestedBy  string  `json:"requested_by" validate:"required"`
	Notes        *string `json:"notes"`
	SectionID    string  `json:"section_id"`
}

// ApprovalListRequest filters the approval listing.
type ApprovalListRequest struct {
	Type         string `json:"type" validate:"omitempty,oneof=SECTION_OFFERING ENROLLMENT_OVERRIDE"`
	DepartmentID string `json:"department_id"`
	Status       string `json:"status" validate:"omitempty,oneof=PENDING APPROVED DENIED"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	SortBy       string `json:"sort_by"`
	SortOrder    string `json:"sort_order"`
}

// List returns paginated approval requests.
func (s *ApprovalService) List(ctx context.Context, req ApprovalListRequest) ([]models.ApprovalRequest, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 20
	}
	filter := models.ApprovalFilter{
		Type:         models.ApprovalType(req.Type),
		DepartmentID: req.DepartmentID,
		Status:       models.ApprovalStatus(req.Status),
		Page:         page,
		PageSize:     size,
		SortBy:       req.SortBy,
		SortOrder:    req.SortOrder,
	}
	rows, total, err := s.approvals.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approval requests")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one approval request.
func (s *ApprovalService) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := s.approvals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval request")
	}
	return request, nil
}

// Create persists a new pending request. ENROLLMENT_OVERRIDE requests must
// name the section whose capacity the override would raise.
func (s *ApprovalService) Create(ctx context.Context, req CreateApprovalRequest) (*models.ApprovalRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	request := &models.ApprovalRequest{
		Type:         models.ApprovalType(req.Type),
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		DepartmentID: req.DepartmentID,
		RequestedBy:  req.RequestedBy,
		Notes:        req.Notes,
	}
	if request.Type == models.ApprovalTypeEnrollmentOverride {
		if req.SectionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment override requests require a section id")
		}
		payload, err := json.Marshal(models.EnrollmentOverridePayload{SectionID: req.SectionID})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode override payload")
		}
		request.Payload = payload
	}

	if err := s.approvals.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval request")
	}
	return request, nil
}

// Approve resolves a pending request and runs its side effect. An approved
// enrollment override opens exactly one extra seat on the named section.
func (s *ApprovalService) Approve(ctx context.Context, id, approvedBy string, notes *string) (*models.ApprovalRequest, error) {
	request, err := s.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Type {
	case models.ApprovalTypeEnrollmentOverride:
		payload, err := request.OverridePayload()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid override payload")
		}
		if err := s.sections.IncrementCapacity(ctx, payload.SectionID, 1); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to raise section capacity")
		}
		s.logger.Info("section capacity raised by override",
			zap.String("request_id", request.ID),
			zap.String("section_id", payload.SectionID))
	case models.ApprovalTypeSectionOffering:
		// No side effect beyond the status change.
	}

	now := s.now()
	if err := s.approvals.Approve(ctx, id, approvedBy, notes, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve request")
	}
	request.Status = models.ApprovalStatusApproved
	request.ApprovedBy = &approvedBy
	request.ApprovedAt = &now
	if notes != nil {
		request.Notes = notes
	}
	return request, nil
}

// Deny resolves a pending request with a reason. The target entity is left
// untouched.
func (s *ApprovalService) Deny(ctx context.Context, id, deniedBy, reason string) (*models.ApprovalRequest, error) {
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "denial reason is required")
	}
	request, err := s.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.approvals.Deny(ctx, id, deniedBy, reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deny request")
	}
	request.Status = models.ApprovalStatusDenied
	request.DenialReason = &reason
	return request, nil
}

func (s *ApprovalService) loadPending(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := s.approvals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval request")
	}
	if request.Status != models.ApprovalStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "approval request already resolved")
	}
	return request, nil
}
