package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univkit/registrar-api/internal/models"
	"github.com/univkit/registrar-api/internal/repository"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
	"github.com/univkit/registrar-api/pkg/jobs"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	activePairs map[string]bool
	created     *models.Enrollment
	full        bool
	status      map[string]models.EnrollmentStatus
	promoted    *models.Enrollment
	promotedFor []string
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	return m.activePairs[studentID+"/"+sectionID], nil
}

func (m *mockEnrollmentRepo) CreateWithCapacityCheck(ctx context.Context, enrollment *models.Enrollment, allowFallback bool) (bool, error) {
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	waitlisted := false
	if m.full && enrollment.Status == models.EnrollmentStatusEnrolled {
		if !allowFallback {
			return false, repository.ErrSectionFull
		}
		enrollment.Status = models.EnrollmentStatusWaitlisted
		waitlisted = true
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return waitlisted, nil
}

func (m *mockEnrollmentRepo) PromoteOldestWaitlisted(ctx context.Context, sectionID string) (*models.Enrollment, error) {
	m.promotedFor = append(m.promotedFor, sectionID)
	return m.promoted, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionReader struct {
	sections map[string]*models.CourseSection
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	if s, ok := m.sections[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionTermReader struct {
	terms map[string]*models.Term
}

func (m *mockSectionTermReader) FindBySection(ctx context.Context, sectionID string) (*models.Term, error) {
	if t, ok := m.terms[sectionID]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

type mockPromotionQueue struct {
	jobs []jobs.Job
	err  error
}

func (m *mockPromotionQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

func newEnrollmentFixture() (*mockEnrollmentRepo, *mockStudentReader, *mockSectionReader, *mockSectionTermReader, *mockPromotionQueue) {
	now := time.Now()
	enrollRepo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", Active: true, Verified: true},
	}}
	sections := &mockSectionReader{sections: map[string]*models.CourseSection{
		"sec-1": {ID: "sec-1", CourseID: "crs-1", TermID: "term-1", Capacity: 30},
	}}
	terms := &mockSectionTermReader{terms: map[string]*models.Term{
		"sec-1": {
			ID:              "term-1",
			StartDate:       now.AddDate(0, -1, 0),
			EndDate:         now.AddDate(0, 2, 0),
			AddDropDeadline: timePtr(now.AddDate(0, 0, 7)),
		},
	}}
	return enrollRepo, students, sections, terms, &mockPromotionQueue{}
}

func TestEnrollmentServiceEnrollSuccess(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NotEmpty(t, enrollment.ID)
}

func TestEnrollmentServiceEnrollRejectsInactiveStudent(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	students.students["stu-1"].Active = false
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotActive))
}

func TestEnrollmentServiceEnrollRejectsUnverifiedStudent(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	students.students["stu-1"].Verified = false
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotActive))
}

func TestEnrollmentServiceEnrollAfterAddDropDeadline(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	terms.terms["sec-1"].AddDropDeadline = timePtr(time.Now().AddDate(0, 0, -1))
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrSectionUnavailable))
}

func TestEnrollmentServiceEnrollWithoutDeadlineConfigured(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	terms.terms["sec-1"].AddDropDeadline = nil
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	assert.NoError(t, err)
}

func TestEnrollmentServiceEnrollAfterTermEnd(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	terms.terms["sec-1"].EndDate = time.Now().AddDate(0, 0, -1)
	terms.terms["sec-1"].AddDropDeadline = nil
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrSectionUnavailable))
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.activePairs = map[string]bool{"stu-1/sec-1": true}
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateEnrollment))
}

func TestEnrollmentServiceEnrollFullSectionWaitlists(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.full = true
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, enrollment.Status)
}

func TestEnrollmentServiceEnrollExplicitEnrolledOnFullSection(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.full = true
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1", Status: "ENROLLED"})
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
	assert.Nil(t, enrollRepo.created)
}

func TestEnrollmentServiceWithdrawFreesSeatAndEnqueuesPromotion(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.enrollments = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
	}
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	enrollment, err := svc.Withdraw(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, enrollment.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeWaitlistPromotion, queue.jobs[0].Type)
	assert.Equal(t, "sec-1", queue.jobs[0].Payload)
}

func TestEnrollmentServiceWithdrawWaitlistedSkipsPromotion(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.enrollments = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusWaitlisted},
	}
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Withdraw(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Empty(t, queue.jobs)
}

func TestEnrollmentServiceWithdrawAfterDeadline(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.enrollments = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
	}
	terms.terms["sec-1"].AddDropDeadline = timePtr(time.Now().AddDate(0, 0, -1))
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Withdraw(context.Background(), "enr-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrSectionUnavailable))
	assert.Empty(t, queue.jobs)
}

func TestEnrollmentServiceWithdrawCompletedEnrollment(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.enrollments = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusCompleted},
	}
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	_, err := svc.Withdraw(context.Background(), "enr-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestEnrollmentServicePromoteFromWaitlistNoCandidate(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	promoted, err := svc.PromoteFromWaitlist(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Nil(t, promoted)
	assert.Equal(t, []string{"sec-1"}, enrollRepo.promotedFor)
}

func TestEnrollmentServicePromoteFromWaitlist(t *testing.T) {
	enrollRepo, students, sections, terms, queue := newEnrollmentFixture()
	enrollRepo.promoted = &models.Enrollment{ID: "enr-9", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled}
	svc := NewEnrollmentService(enrollRepo, students, sections, terms, queue, nil, nil)

	promoted, err := svc.PromoteFromWaitlist(context.Background(), "sec-1")
	require.NoError(t, err)
	require.NotNil(t, promoted)
	assert.Equal(t, "enr-9", promoted.ID)
}
