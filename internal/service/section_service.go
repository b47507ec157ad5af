package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type sectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	Create(ctx context.Context, section *models.CourseSection) error
}

// SectionService manages course section offerings. Capacity changes after
// creation only happen through approved enrollment overrides.
type SectionService struct {
	sections  sectionRepository
	terms     termRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs the section service.
func NewSectionService(sections sectionRepository, terms termRepository, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{sections: sections, terms: terms, validator: validate, logger: logger}
}

// CreateSectionRequest schedules a course offering in a term.
type CreateSectionRequest struct {
	CourseID     string  `json:"course_id" validate:"required"`
	TermID       string  `json:"term_id" validate:"required"`
	SectionCode  string  `json:"section_code" validate:"required"`
	Capacity     int     `json:"capacity" validate:"required,min=1"`
	InstructorID *string `json:"instructor_id"`
}

// SectionListRequest filters the section listing.
type SectionListRequest struct {
	CourseID     string `json:"course_id"`
	TermID       string `json:"term_id"`
	InstructorID string `json:"instructor_id"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	SortBy       string `json:"sort_by"`
	SortOrder    string `json:"sort_order"`
}

// List returns paginated sections with enrollment counts.
func (s *SectionService) List(ctx context.Context, req SectionListRequest) ([]models.SectionDetail, *models.Pagination, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 20
	}
	filter := models.SectionFilter{
		CourseID:     req.CourseID,
		TermID:       req.TermID,
		InstructorID: req.InstructorID,
		Page:         page,
		PageSize:     size,
		SortBy:       req.SortBy,
		SortOrder:    req.SortOrder,
	}
	rows, total, err := s.sections.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one section with catalog and enrollment context.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.sections.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course section")
	}
	return detail, nil
}

// Create schedules a new offering. The referenced term must exist.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	section := &models.CourseSection{
		CourseID:     req.CourseID,
		TermID:       req.TermID,
		SectionCode:  req.SectionCode,
		Capacity:     req.Capacity,
		InstructorID: req.InstructorID,
	}
	if err := s.sections.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course section")
	}
	return section, nil
}
