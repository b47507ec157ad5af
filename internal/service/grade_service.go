package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
	"github.com/univkit/registrar-api/pkg/export"
)

type gradeEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	SetGrade(ctx context.Context, id, grade string, completedAt time.Time) error
	UpdateGrade(ctx context.Context, id, grade string) error
	ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error)
	GradeCounts(ctx context.Context, sectionID string) (map[string]int, error)
}

type gradeChangeRepository interface {
	FindByID(ctx context.Context, id string) (*models.GradeChangeRequest, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeChangeRequest, error)
	Create(ctx context.Context, request *models.GradeChangeRequest) error
	Approve(ctx context.Context, id, approvedBy string) error
	Deny(ctx context.Context, id, deniedBy, reason string) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// GradeServiceConfig tunes analytics caching.
type GradeServiceConfig struct {
	DistributionCacheTTL time.Duration
}

// GradeService owns grade submission, bulk submission with per-row failure
// isolation, section analytics, and the grade change sub-workflow.
type GradeService struct {
	enrollments gradeEnrollmentRepository
	changes     gradeChangeRepository
	sections    sectionReader
	terms       sectionTermReader
	users       userReader
	cache       *CacheService
	metrics     *MetricsService
	csv         *export.CSVExporter
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	cfg         GradeServiceConfig
}

// GradeServiceParams groups constructor dependencies.
type GradeServiceParams struct {
	Enrollments gradeEnrollmentRepository
	Changes     gradeChangeRepository
	Sections    sectionReader
	Terms       sectionTermReader
	Users       userReader
	Cache       *CacheService
	Metrics     *MetricsService
	CSV         *export.CSVExporter
	Validator   *validator.Validate
	Logger      *zap.Logger
	Config      GradeServiceConfig
}

// NewGradeService constructs the grade service.
func NewGradeService(p GradeServiceParams) *GradeService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Config.DistributionCacheTTL <= 0 {
		p.Config.DistributionCacheTTL = 5 * time.Minute
	}
	if p.CSV == nil {
		p.CSV = export.NewCSVExporter()
	}
	return &GradeService{
		enrollments: p.Enrollments,
		changes:     p.Changes,
		sections:    p.Sections,
		terms:       p.Terms,
		users:       p.Users,
		cache:       p.Cache,
		metrics:     p.Metrics,
		csv:         p.CSV,
		validator:   p.Validator,
		logger:      p.Logger,
		now:         time.Now,
		cfg:         p.Config,
	}
}

// SubmitGradeRequest carries one grade submission.
type SubmitGradeRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	Grade        string `json:"grade" validate:"required"`
	SubmittedBy  string `json:"submitted_by" validate:"required"`
}

// BulkSubmitGradesRequest carries a per-section batch keyed by enrollment ID.
type BulkSubmitGradesRequest struct {
	SectionID   string            `json:"section_id" validate:"required"`
	Grades      map[string]string `json:"grades" validate:"required,min=1"`
	SubmittedBy string            `json:"submitted_by" validate:"required"`
}

// GradeChangeRequestInput asks for a change to an already-graded enrollment.
type GradeChangeRequestInput struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	NewGrade     string `json:"new_grade" validate:"required"`
	Reason       string `json:"reason" validate:"required"`
	RequestedBy  string `json:"requested_by" validate:"required"`
}

// SubmitGrade records a final grade on an enrollment. Only an admin or the
// instructor of record may submit; non-admins are cut off by the term's grade
// deadline. On success the enrollment moves to COMPLETED.
func (s *GradeService) SubmitGrade(ctx context.Context, req SubmitGradeRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.authorizeSubmission(ctx, enrollment.SectionID, req.SubmittedBy); err != nil {
		s.metrics.RecordGradeSubmission("rejected")
		return nil, err
	}

	if !models.ValidGrade(req.Grade) {
		s.metrics.RecordGradeSubmission("invalid")
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("grade %q is not in the accepted set", req.Grade))
	}

	now := s.now()
	if err := s.enrollments.SetGrade(ctx, enrollment.ID, req.Grade, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	enrollment.Grade = &req.Grade
	enrollment.Status = models.EnrollmentStatusCompleted
	enrollment.CompletionDate = &now

	s.metrics.RecordGradeSubmission("accepted")
	s.invalidateSectionAnalytics(ctx, enrollment.SectionID)
	return enrollment, nil
}

// BulkSubmitGrades submits every grade in the batch independently. One bad
// row is recorded in the failure map and does not abort the rest.
func (s *GradeService) BulkSubmitGrades(ctx context.Context, req BulkSubmitGradesRequest) (*models.BulkGradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	// Authorization is checked once for the whole section.
	if err := s.authorizeSubmission(ctx, req.SectionID, req.SubmittedBy); err != nil {
		return nil, err
	}

	result := &models.BulkGradeResult{Failed: make(map[string]string), Total: len(req.Grades)}
	now := s.now()
	for enrollmentID, grade := range req.Grades {
		if err := s.submitOne(ctx, req.SectionID, enrollmentID, grade, now); err != nil {
			result.Failed[enrollmentID] = appErrors.FromError(err).Message
			continue
		}
		result.Successful++
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}

	s.invalidateSectionAnalytics(ctx, req.SectionID)
	s.logger.Info("bulk grade submission finished",
		zap.String("section_id", req.SectionID),
		zap.Int("successful", result.Successful),
		zap.Int("total", result.Total))
	return result, nil
}

func (s *GradeService) submitOne(ctx context.Context, sectionID, enrollmentID, grade string, now time.Time) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.SectionID != sectionID {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment does not belong to this section")
	}
	if !models.ValidGrade(grade) {
		s.metrics.RecordGradeSubmission("invalid")
		return appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("grade %q is not in the accepted set", grade))
	}
	if err := s.enrollments.SetGrade(ctx, enrollmentID, grade, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	s.metrics.RecordGradeSubmission("accepted")
	return nil
}

// authorizeSubmission enforces the submitter rules: admins always pass,
// faculty must be the instructor of record and inside the grading window.
func (s *GradeService) authorizeSubmission(ctx context.Context, sectionID, submittedBy string) error {
	user, err := s.users.FindByID(ctx, submittedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrUnauthorizedGrade
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submitter")
	}
	if user.Role == models.RoleAdmin {
		return nil
	}

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course section")
	}
	if user.Role != models.RoleFaculty || section.InstructorID == nil || *section.InstructorID != user.ID {
		return appErrors.ErrUnauthorizedGrade
	}

	term, err := s.terms.FindBySection(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found for section")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.GradingClosed(s.now()) {
		return appErrors.ErrGradingDeadline
	}
	return nil
}

// CalculateDistribution aggregates grade counts for a section, with a short
// cache so repeated dashboard loads do not re-run the aggregate query.
func (s *GradeService) CalculateDistribution(ctx context.Context, sectionID string) (*models.GradeDistribution, error) {
	key := distributionCacheKey(sectionID)
	if s.cache != nil {
		var cached models.GradeDistribution
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	counts, err := s.enrollments.GradeCounts(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate grades")
	}

	total := 0
	for _, count := range counts {
		total += count
	}
	distribution := make(map[string]models.GradeBucket, len(counts))
	for grade, count := range counts {
		percentage := 0.0
		if total > 0 {
			percentage = math.Round(float64(count)/float64(total)*10000) / 100
		}
		distribution[grade] = models.GradeBucket{Count: count, Percentage: percentage}
	}

	result := &models.GradeDistribution{SectionID: sectionID, TotalStudents: total, Distribution: distribution}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cfg.DistributionCacheTTL); err != nil {
			s.logger.Warn("distribution cache write failed", zap.String("section_id", sectionID), zap.Error(err))
		}
	}
	return result, nil
}

// GradingProgress reports how much of a section has been graded. Withdrawn
// enrollments are excluded from the totals.
func (s *GradeService) GradingProgress(ctx context.Context, sectionID string) (*models.GradingProgress, error) {
	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list section enrollments")
	}

	progress := &models.GradingProgress{SectionID: sectionID, Total: len(enrollments)}
	for _, enrollment := range enrollments {
		if enrollment.Grade != nil {
			progress.Graded++
		}
	}
	progress.Pending = progress.Total - progress.Graded
	if progress.Total > 0 {
		progress.Percentage = progress.Graded * 100 / progress.Total
	}
	progress.IsComplete = progress.Pending == 0
	return progress, nil
}

// ExportSectionGrades renders the section's grade roster as CSV.
func (s *GradeService) ExportSectionGrades(ctx context.Context, sectionID string) ([]byte, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course section")
	}

	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list section enrollments")
	}

	dataset := export.Dataset{Headers: []string{"Enrollment", "Student", "Status", "Grade"}}
	for _, enrollment := range enrollments {
		grade := ""
		if enrollment.Grade != nil {
			grade = *enrollment.Grade
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Enrollment": enrollment.ID,
			"Student":    enrollment.StudentID,
			"Status":     string(enrollment.Status),
			"Grade":      grade,
		})
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade roster")
	}
	return data, nil
}

// RequestGradeChange opens a change request against a graded enrollment.
func (s *GradeService) RequestGradeChange(ctx context.Context, input GradeChangeRequestInput) (*models.GradeChangeRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if !models.ValidGrade(input.NewGrade) {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("grade %q is not in the accepted set", input.NewGrade))
	}

	enrollment, err := s.enrollments.FindByID(ctx, input.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Grade == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "cannot request a grade change without an existing grade")
	}

	request := &models.GradeChangeRequest{
		EnrollmentID: input.EnrollmentID,
		OldGrade:     *enrollment.Grade,
		NewGrade:     input.NewGrade,
		Reason:       input.Reason,
		RequestedBy:  input.RequestedBy,
	}
	if err := s.changes.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade change request")
	}
	return request, nil
}

// ApproveGradeChange applies the requested grade onto the enrollment and
// marks the request approved.
func (s *GradeService) ApproveGradeChange(ctx context.Context, requestID, approvedBy string) (*models.Enrollment, error) {
	request, err := s.loadPendingChange(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.enrollments.UpdateGrade(ctx, request.EnrollmentID, request.NewGrade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply grade change")
	}
	if err := s.changes.Approve(ctx, requestID, approvedBy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve grade change")
	}

	enrollment, err := s.enrollments.FindByID(ctx, request.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}
	s.invalidateSectionAnalytics(ctx, enrollment.SectionID)
	return enrollment, nil
}

// DenyGradeChange rejects the request. The enrollment's grade is untouched.
func (s *GradeService) DenyGradeChange(ctx context.Context, requestID, deniedBy, reason string) (*models.GradeChangeRequest, error) {
	request, err := s.loadPendingChange(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.changes.Deny(ctx, requestID, deniedBy, reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deny grade change")
	}
	request.Status = models.GradeChangeDenied
	request.DenialReason = &reason
	return request, nil
}

func (s *GradeService) loadPendingChange(ctx context.Context, requestID string) (*models.GradeChangeRequest, error) {
	request, err := s.changes.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade change request")
	}
	if request.Status != models.GradeChangePending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "grade change request already resolved")
	}
	return request, nil
}

func (s *GradeService) invalidateSectionAnalytics(ctx context.Context, sectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, distributionCacheKey(sectionID)); err != nil {
		s.logger.Warn("distribution cache invalidation failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}

func distributionCacheKey(sectionID string) string {
	return fmt.Sprintf("grades:distribution:%s", sectionID)
}
