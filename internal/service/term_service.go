package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type termRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error)
	Create(ctx context.Context, term *models.Term) error
	SetActive(ctx context.Context, id string) error
}

// TermService manages academic terms and their deadlines.
type TermService struct {
	terms     termRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs the term service.
func NewTermService(terms termRepository, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{terms: terms, validator: validate, logger: logger}
}

// CreateTermRequest defines a new academic term. Deadlines are optional;
// leaving one unset means that window is never enforced.
type CreateTermRequest struct {
	Name            string     `json:"name" validate:"required"`
	AcademicYear    string     `json:"academic_year" validate:"required"`
	StartDate       time.Time  `json:"start_date" validate:"required"`
	EndDate         time.Time  `json:"end_date" validate:"required,gtfield=StartDate"`
	AddDropDeadline *time.Time `json:"add_drop_deadline"`
	GradeDeadline   *time.Time `json:"grade_deadline"`
}

// TermListRequest filters the term listing.
type TermListRequest struct {
	AcademicYear string `json:"academic_year"`
	IsActive     *bool  `json:"is_active"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	SortBy       string `json:"sort_by"`
	SortOrder    string `json:"sort_order"`
}

// List returns paginated terms.
func (s *TermService) List(ctx context.Context, req TermListRequest) ([]models.Term, *models.Pagination, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 20
	}
	filter := models.TermFilter{
		AcademicYear: req.AcademicYear,
		IsActive:     req.IsActive,
		Page:         page,
		PageSize:     size,
		SortBy:       req.SortBy,
		SortOrder:    req.SortOrder,
	}
	rows, total, err := s.terms.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one term.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.terms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Create persists a new term.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.AddDropDeadline != nil && (req.AddDropDeadline.Before(req.StartDate) || req.AddDropDeadline.After(req.EndDate)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "add/drop deadline must fall within the term")
	}
	term := &models.Term{
		Name:            req.Name,
		AcademicYear:    req.AcademicYear,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		AddDropDeadline: req.AddDropDeadline,
		GradeDeadline:   req.GradeDeadline,
	}
	if err := s.terms.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// Activate marks the term as the active one, deactivating all others.
func (s *TermService) Activate(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.terms.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate term")
	}
	term.IsActive = true
	s.logger.Info("active term switched", zap.String("term_id", id))
	return term, nil
}
