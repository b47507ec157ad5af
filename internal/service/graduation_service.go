package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type graduationRepository interface {
	FindByID(ctx context.Context, id string) (*models.GraduationApplication, error)
	List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationApplication, int, error)
	Create(ctx context.Context, application *models.GraduationApplication) error
	UpdateClearance(ctx context.Context, id string, status models.GraduationStatus, clearance models.ClearanceStatus) error
	SetApproved(ctx context.Context, id, reviewedBy string) error
}

type holdChecker interface {
	HasActiveHold(ctx context.Context, studentID string, holdType models.HoldType) (bool, error)
}

// Departments whose clearance is seeded from an automated hold check rather
// than starting at PENDING.
var autoCheckedHolds = map[string]models.HoldType{
	models.DepartmentFinancial: models.HoldTypeFinancial,
	models.DepartmentLibrary:   models.HoldTypeLibrary,
}

// GraduationClearanceService walks applications through the per-department
// clearance checklist and the final approval gate.
type GraduationClearanceService struct {
	applications graduationRepository
	holds        holdChecker
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewGraduationClearanceService constructs the graduation clearance service.
func NewGraduationClearanceService(applications graduationRepository, holds holdChecker, validate *validator.Validate, logger *zap.Logger) *GraduationClearanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraduationClearanceService{applications: applications, holds: holds, validator: validate, logger: logger, now: time.Now}
}

// CreateGraduationApplicationRequest opens a new application.
type CreateGraduationApplicationRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
}

// ClearDepartmentRequest records one department's manual sign-off.
type ClearDepartmentRequest struct {
	ApplicationID string  `json:"application_id" validate:"required"`
	Department    string  `json:"department" validate:"required,oneof=financial library registrar academic"`
	ClearedBy     string  `json:"cleared_by" validate:"required"`
	Notes         *string `json:"notes"`
}

// GraduationListRequest filters the application listing.
type GraduationListRequest struct {
	StudentID string `json:"student_id"`
	TermID    string `json:"term_id"`
	Status    string `json:"status" validate:"omitempty,oneof=PENDING CLEARANCE_IN_PROGRESS CLEARED APPROVED DENIED"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
}

// List returns paginated graduation applications.
func (s *GraduationClearanceService) List(ctx context.Context, req GraduationListRequest) ([]models.GraduationApplication, *models.Pagination, error) {
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
	filter := models.GraduationFilter{
		StudentID: req.StudentID,
		TermID:    req.TermID,
		Status:    models.GraduationStatus(req.Status),
		Page:      page,
		PageSize:  size,
	}
	rows, total, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list graduation applications")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one graduation application.
func (s *GraduationClearanceService) Get(ctx context.Context, id string) (*models.GraduationApplication, error) {
	return s.load(ctx, id)
}

// Create opens a PENDING application awaiting clearance initiation.
func (s *GraduationClearanceService) Create(ctx context.Context, req CreateGraduationApplicationRequest) (*models.GraduationApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	application := &models.GraduationApplication{
		StudentID: req.StudentID,
		ProgramID: req.ProgramID,
		TermID:    req.TermID,
		Status:    models.GraduationStatusPending,
	}
	if err := s.applications.Create(ctx, application); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create graduation application")
	}
	return application, nil
}

// InitiateClearance seeds the department checklist. Departments backed by an
// automated hold check start CLEARED, or HOLD when the student has an active
// hold of the matching type; the rest start PENDING for manual review.
func (s *GraduationClearanceService) InitiateClearance(ctx context.Context, applicationID string) (*models.GraduationApplication, error) {
	application, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.Status != models.GraduationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "clearance has already been initiated")
	}

	clearance := make(models.ClearanceStatus, len(models.ClearanceDepartments))
	for _, dept := range models.ClearanceDepartments {
		holdType, automated := autoCheckedHolds[dept]
		if !automated {
			clearance[dept] = models.ClearanceEntry{Status: models.ClearancePending}
			continue
		}
		held, err := s.holds.HasActiveHold(ctx, application.StudentID, holdType)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student holds")
		}
		if held {
			clearance[dept] = models.ClearanceEntry{Status: models.ClearanceHold}
		} else {
			now := s.now()
			clearance[dept] = models.ClearanceEntry{Status: models.ClearanceCleared, ClearedAt: &now}
		}
	}

	application.Status = models.GraduationStatusClearanceInProgress
	application.ClearanceStatus = clearance
	if err := s.applications.UpdateClearance(ctx, applicationID, application.Status, clearance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store clearance checklist")
	}
	return application, nil
}

// ClearDepartment records one department's sign-off. Clearing the last
// outstanding department advances the application to CLEARED in the same call.
func (s *GraduationClearanceService) ClearDepartment(ctx context.Context, req ClearDepartmentRequest) (*models.GraduationApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	application, err := s.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if application.Status != models.GraduationStatusClearanceInProgress {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application is not in clearance")
	}
	if _, ok := application.ClearanceStatus[req.Department]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown clearance department %q", req.Department))
	}

	now := s.now()
	application.ClearanceStatus[req.Department] = models.ClearanceEntry{
		Status:    models.ClearanceCleared,
		ClearedBy: &req.ClearedBy,
		ClearedAt: &now,
		Notes:     req.Notes,
	}
	if application.ClearanceStatus.AllCleared() {
		application.Status = models.GraduationStatusCleared
	}

	if err := s.applications.UpdateClearance(ctx, req.ApplicationID, application.Status, application.ClearanceStatus); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store department clearance")
	}
	return application, nil
}

// FinalApprove stamps the reviewer on a fully cleared application. Calling it
// with any department uncleared is a caller bug, not a user-recoverable
// state, and panics rather than returning a typed error.
func (s *GraduationClearanceService) FinalApprove(ctx context.Context, applicationID, reviewedBy string) (*models.GraduationApplication, error) {
	application, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !application.ClearanceStatus.AllCleared() {
		panic(fmt.Sprintf("final approval of graduation application %s with incomplete clearance", applicationID))
	}

	if err := s.applications.SetApproved(ctx, applicationID, reviewedBy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve graduation application")
	}
	application.Status = models.GraduationStatusApproved
	application.ReviewedBy = &reviewedBy
	s.logger.Info("graduation application approved",
		zap.String("application_id", applicationID),
		zap.String("reviewed_by", reviewedBy))
	return application, nil
}

func (s *GraduationClearanceService) load(ctx context.Context, id string) (*models.GraduationApplication, error) {
	application, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "graduation application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graduation application")
	}
	return application, nil
}
