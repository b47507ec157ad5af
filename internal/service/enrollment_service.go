package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	"github.com/univkit/registrar-api/internal/repository"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
	"github.com/univkit/registrar-api/pkg/jobs"
)

// JobTypeWaitlistPromotion identifies seat promotion jobs on the queue.
const JobTypeWaitlistPromotion = "waitlist.promote"

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error)
	CreateWithCapacityCheck(ctx context.Context, enrollment *models.Enrollment, allowFallback bool) (bool, error)
	PromoteOldestWaitlisted(ctx context.Context, sectionID string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
}

type sectionTermReader interface {
	FindBySection(ctx context.Context, sectionID string) (*models.Term, error)
}

type promotionQueue interface {
	Enqueue(job jobs.Job) error
}

// EnrollmentService drives the registration workflow: seat-checked
// enrollment, withdrawal, and waitlist promotion.
type EnrollmentService struct {
	enrollments enrollmentRepository
	students    studentReader
	sections    sectionReader
	terms       sectionTermReader
	queue       promotionQueue
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs the enrollment service. The queue may be
// nil, in which case withdrawals do not trigger waitlist promotion.
func NewEnrollmentService(enrollments enrollmentRepository, students studentReader, sections sectionReader, terms sectionTermReader, queue promotionQueue, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		students:    students,
		sections:    sections,
		terms:       terms,
		queue:       queue,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// WithMetrics attaches a metrics sink. Counters stay silent when unset.
func (s *EnrollmentService) WithMetrics(metrics *MetricsService) *EnrollmentService {
	s.metrics = metrics
	return s
}

// EnrollRequest describes a registration attempt. Status defaults to
// ENROLLED; passing ENROLLED explicitly disables the waitlist fallback.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Status    string `json:"status" validate:"omitempty,oneof=ENROLLED WAITLISTED"`
}

// EnrollmentListRequest filters the enrollment listing.
type EnrollmentListRequest struct {
	StudentID string `json:"student_id"`
	SectionID string `json:"section_id"`
	TermID    string `json:"term_id"`
	Status    string `json:"status" validate:"omitempty,oneof=ENROLLED WAITLISTED WITHDRAWN COMPLETED"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// List returns paginated enrollments.
func (s *EnrollmentService) List(ctx context.Context, req EnrollmentListRequest) ([]models.EnrollmentDetail, *models.Pagination, error) {
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
	filter := models.EnrollmentFilter{
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		TermID:    req.TermID,
		Status:    models.EnrollmentStatus(req.Status),
		Page:      page,
		PageSize:  size,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	rows, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one enrollment with its student and section context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student into a course section. The student must be
// active and verified, the term still open for add/drop, and the pair not
// already actively enrolled. When the section is full the enrollment lands
// on the waitlist unless the caller asked for a guaranteed seat.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active || !student.Verified {
		return nil, appErrors.ErrStudentNotActive
	}

	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course section")
	}

	term, err := s.terms.FindBySection(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found for section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	now := s.now()
	if term.HasEnded(now) {
		return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "term has already ended")
	}
	if term.AddDropClosed(now) {
		return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "add/drop deadline has passed")
	}

	exists, err := s.enrollments.ExistsActive(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.ErrDuplicateEnrollment
	}

	allowFallback := req.Status != string(models.EnrollmentStatusEnrolled)
	enrollment := &models.Enrollment{
		ID:        uuid.NewString(),
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		Status:    models.EnrollmentStatus(req.Status),
	}
	waitlisted, err := s.enrollments.CreateWithCapacityCheck(ctx, enrollment, allowFallback)
	if err != nil {
		if errors.Is(err, repository.ErrSectionFull) {
			return nil, appErrors.ErrCapacityExceeded
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if waitlisted {
		s.logger.Info("section full, enrollment waitlisted",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("section_id", enrollment.SectionID))
	}
	s.metrics.RecordEnrollment(enrollment.Status)
	return enrollment, nil
}

// Withdraw moves an active enrollment to WITHDRAWN. Freeing an ENROLLED
// seat schedules a waitlist promotion for the section.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled && enrollment.Status != models.EnrollmentStatusWaitlisted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only active enrollments can be withdrawn")
	}

	term, err := s.terms.FindBySection(ctx, enrollment.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found for section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.AddDropClosed(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "withdrawal is no longer allowed after the add/drop deadline")
	}

	freedSeat := enrollment.Status == models.EnrollmentStatusEnrolled
	if err := s.enrollments.UpdateStatus(ctx, id, models.EnrollmentStatusWithdrawn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	enrollment.Status = models.EnrollmentStatusWithdrawn
	s.metrics.RecordEnrollment(models.EnrollmentStatusWithdrawn)

	if freedSeat && s.queue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: JobTypeWaitlistPromotion, Payload: enrollment.SectionID}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error("failed to enqueue waitlist promotion",
				zap.String("section_id", enrollment.SectionID),
				zap.Error(err))
		}
	}
	return enrollment, nil
}

// PromoteFromWaitlist gives the freed seat to the longest-waiting
// enrollment of the section. A nil result means no seat was free or nobody
// was waiting, which is not an error.
func (s *EnrollmentService) PromoteFromWaitlist(ctx context.Context, sectionID string) (*models.Enrollment, error) {
	promoted, err := s.enrollments.PromoteOldestWaitlisted(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote from waitlist")
	}
	if promoted != nil {
		s.logger.Info("waitlisted enrollment promoted",
			zap.String("enrollment_id", promoted.ID),
			zap.String("section_id", sectionID))
		s.metrics.RecordWaitlistPromotion()
	}
	return promoted, nil
}
