package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type mockGradeEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	counts      map[string]int
}

func (m *mockGradeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeEnrollmentRepo) SetGrade(ctx context.Context, id, grade string, completedAt time.Time) error {
	e := m.enrollments[id]
	e.Grade = &grade
	e.Status = models.EnrollmentStatusCompleted
	e.CompletionDate = &completedAt
	m.enrollments[id] = e
	return nil
}

func (m *mockGradeEnrollmentRepo) UpdateGrade(ctx context.Context, id, grade string) error {
	e := m.enrollments[id]
	e.Grade = &grade
	m.enrollments[id] = e
	return nil
}

func (m *mockGradeEnrollmentRepo) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.SectionID == sectionID && e.Status != models.EnrollmentStatusWithdrawn {
			list = append(list, e)
		}
	}
	return list, nil
}

func (m *mockGradeEnrollmentRepo) GradeCounts(ctx context.Context, sectionID string) (map[string]int, error) {
	return m.counts, nil
}

type mockGradeChangeRepo struct {
	requests map[string]models.GradeChangeRequest
	approved []string
	denied   []string
}

func (m *mockGradeChangeRepo) FindByID(ctx context.Context, id string) (*models.GradeChangeRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeChangeRepo) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeChangeRequest, error) {
	return nil, nil
}

func (m *mockGradeChangeRepo) Create(ctx context.Context, request *models.GradeChangeRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]models.GradeChangeRequest)
	}
	if request.ID == "" {
		request.ID = "gcr-new"
	}
	request.Status = models.GradeChangePending
	m.requests[request.ID] = *request
	return nil
}

func (m *mockGradeChangeRepo) Approve(ctx context.Context, id, approvedBy string) error {
	r := m.requests[id]
	r.Status = models.GradeChangeApproved
	r.ApprovedBy = &approvedBy
	m.requests[id] = r
	m.approved = append(m.approved, id)
	return nil
}

func (m *mockGradeChangeRepo) Deny(ctx context.Context, id, deniedBy, reason string) error {
	r := m.requests[id]
	r.Status = models.GradeChangeDenied
	r.DenialReason = &reason
	m.requests[id] = r
	m.denied = append(m.denied, id)
	return nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func strPtr(s string) *string { return &s }

type gradeFixture struct {
	enrollments *mockGradeEnrollmentRepo
	changes     *mockGradeChangeRepo
	sections    *mockSectionReader
	terms       *mockSectionTermReader
	users       *mockUserReader
}

func newGradeFixture() gradeFixture {
	now := time.Now()
	return gradeFixture{
		enrollments: &mockGradeEnrollmentRepo{enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		}},
		changes: &mockGradeChangeRepo{},
		sections: &mockSectionReader{sections: map[string]*models.CourseSection{
			"sec-1": {ID: "sec-1", InstructorID: strPtr("fac-1"), Capacity: 30},
		}},
		terms: &mockSectionTermReader{terms: map[string]*models.Term{
			"sec-1": {ID: "term-1", EndDate: now.AddDate(0, 1, 0), GradeDeadline: timePtr(now.AddDate(0, 0, 14))},
		}},
		users: &mockUserReader{users: map[string]*models.User{
			"adm-1": {ID: "adm-1", Role: models.RoleAdmin},
			"fac-1": {ID: "fac-1", Role: models.RoleFaculty},
			"fac-2": {ID: "fac-2", Role: models.RoleFaculty},
			"stu-1": {ID: "stu-1", Role: models.RoleStudent},
		}},
	}
}

func (f gradeFixture) service() *GradeService {
	return NewGradeService(GradeServiceParams{
		Enrollments: f.enrollments,
		Changes:     f.changes,
		Sections:    f.sections,
		Terms:       f.terms,
		Users:       f.users,
	})
}

func TestGradeServiceSubmitByInstructor(t *testing.T) {
	f := newGradeFixture()
	svc := f.service()

	enrollment, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "A-", SubmittedBy: "fac-1"})
	require.NoError(t, err)
	require.NotNil(t, enrollment.Grade)
	assert.Equal(t, "A-", *enrollment.Grade)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.NotNil(t, enrollment.CompletionDate)
}

func TestGradeServiceSubmitByOtherFaculty(t *testing.T) {
	f := newGradeFixture()
	svc := f.service()

	_, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "B", SubmittedBy: "fac-2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedGrade))
}

func TestGradeServiceSubmitByStudent(t *testing.T) {
	f := newGradeFixture()
	svc := f.service()

	_, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "A", SubmittedBy: "stu-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorizedGrade))
}

func TestGradeServiceDeadlineBlocksFacultyNotAdmin(t *testing.T) {
	f := newGradeFixture()
	f.terms.terms["sec-1"].GradeDeadline = timePtr(time.Now().AddDate(0, 0, -1))
	svc := f.service()

	_, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "B+", SubmittedBy: "fac-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrGradingDeadline))

	enrollment, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "B+", SubmittedBy: "adm-1"})
	require.NoError(t, err)
	assert.Equal(t, "B+", *enrollment.Grade)
}

func TestGradeServiceSubmitWithoutDeadlineConfigured(t *testing.T) {
	f := newGradeFixture()
	f.terms.terms["sec-1"].GradeDeadline = nil
	svc := f.service()

	_, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "C", SubmittedBy: "fac-1"})
	assert.NoError(t, err)
}

func TestGradeServiceAcceptsEveryGradeInSet(t *testing.T) {
	grades := []string{"A+", "A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D+", "D", "D-", "F", "P", "NP", "W", "I"}
	for _, grade := range grades {
		f := newGradeFixture()
		svc := f.service()
		_, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: grade, SubmittedBy: "adm-1"})
		assert.NoError(t, err, "grade %s", grade)
	}
}

func TestGradeServiceRejectsUnknownGrade(t *testing.T) {
	f := newGradeFixture()
	svc := f.service()

	_, err := svc.SubmitGrade(context.Background(), SubmitGradeRequest{EnrollmentID: "enr-1", Grade: "Z", SubmittedBy: "adm-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidGrade))
}

func TestGradeServiceBulkSubmitIsolatesFailures(t *testing.T) {
	f := newGradeFixture()
	for _, id := range []string{"enr-2", "enr-3", "enr-4", "enr-5"} {
		f.enrollments.enrollments[id] = models.Enrollment{ID: id, SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled}
	}
	svc := f.service()

	result, err := svc.BulkSubmitGrades(context.Background(), BulkSubmitGradesRequest{
		SectionID: "sec-1",
		Grades: map[string]string{
			"enr-1": "A",
			"enr-2": "B",
			"enr-3": "ZZ",
			"enr-4": "C+",
			"enr-5": "P",
		},
		SubmittedBy: "fac-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 5, result.Total)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed, "enr-3")

	assert.Equal(t, "A", *f.enrollments.enrollments["enr-1"].Grade)
	assert.Nil(t, f.enrollments.enrollments["enr-3"].Grade)
}

func TestGradeServiceDistributionPercentages(t *testing.T) {
	f := newGradeFixture()
	f.enrollments.counts = map[string]int{"A": 2, "B": 1}
	svc := f.service()

	dist, err := svc.CalculateDistribution(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 3, dist.TotalStudents)
	assert.Equal(t, 2, dist.Distribution["A"].Count)
	assert.InDelta(t, 66.67, dist.Distribution["A"].Percentage, 0.001)
	assert.InDelta(t, 33.33, dist.Distribution["B"].Percentage, 0.001)
}

func TestGradeServiceGradingProgress(t *testing.T) {
	f := newGradeFixture()
	graded := "A"
	f.enrollments.enrollments = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusCompleted, Grade: &graded},
		"enr-2": {ID: "enr-2", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		"enr-3": {ID: "enr-3", SectionID: "sec-1", Status: models.EnrollmentStatusWithdrawn},
	}
	svc := f.service()

	progress, err := svc.GradingProgress(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Graded)
	assert.Equal(t, 1, progress.Pending)
	assert.Equal(t, 50, progress.Percentage)
	assert.False(t, progress.IsComplete)
}

func TestGradeServiceExportSectionGrades(t *testing.T) {
	f := newGradeFixture()
	graded := "B+"
	f.enrollments.enrollments = map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusCompleted, Grade: &graded},
	}
	svc := f.service()

	data, err := svc.ExportSectionGrades(context.Background(), "sec-1")
	require.NoError(t, err)
	csv := string(data)
	assert.Contains(t, csv, "Enrollment,Student,Status,Grade")
	assert.Contains(t, csv, "enr-1,stu-1,COMPLETED,B+")
}

func TestGradeServiceExportUnknownSection(t *testing.T) {
	f := newGradeFixture()
	svc := f.service()

	_, err := svc.ExportSectionGrades(context.Background(), "sec-missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestGradeServiceChangeRequestNeedsExistingGrade(t *testing.T) {
	f := newGradeFixture()
	svc := f.service()

	_, err := svc.RequestGradeChange(context.Background(), GradeChangeRequestInput{
		EnrollmentID: "enr-1", NewGrade: "A", Reason: "recount", RequestedBy: "fac-1",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidGrade))
}

func TestGradeServiceApproveChangeUpdatesEnrollment(t *testing.T) {
	f := newGradeFixture()
	old := "B"
	f.enrollments.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusCompleted, Grade: &old}
	svc := f.service()

	request, err := svc.RequestGradeChange(context.Background(), GradeChangeRequestInput{
		EnrollmentID: "enr-1", NewGrade: "A-", Reason: "regrade appeal", RequestedBy: "fac-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "B", request.OldGrade)
	assert.Equal(t, models.GradeChangePending, request.Status)

	enrollment, err := svc.ApproveGradeChange(context.Background(), request.ID, "adm-1")
	require.NoError(t, err)
	assert.Equal(t, "A-", *enrollment.Grade)
	assert.Equal(t, []string{request.ID}, f.changes.approved)
}

func TestGradeServiceDenyChangeLeavesGrade(t *testing.T) {
	f := newGradeFixture()
	old := "B"
	f.enrollments.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusCompleted, Grade: &old}
	svc := f.service()

	request, err := svc.RequestGradeChange(context.Background(), GradeChangeRequestInput{
		EnrollmentID: "enr-1", NewGrade: "A", Reason: "recount", RequestedBy: "fac-1",
	})
	require.NoError(t, err)

	denied, err := svc.DenyGradeChange(context.Background(), request.ID, "adm-1", "insufficient evidence")
	require.NoError(t, err)
	assert.Equal(t, models.GradeChangeDenied, denied.Status)
	assert.Equal(t, "insufficient evidence", *denied.DenialReason)
	assert.Equal(t, "B", *f.enrollments.enrollments["enr-1"].Grade)
}

func TestGradeServiceResolvedChangeCannotBeReResolved(t *testing.T) {
	f := newGradeFixture()
	f.changes.requests = map[string]models.GradeChangeRequest{
		"gcr-1": {ID: "gcr-1", EnrollmentID: "enr-1", Status: models.GradeChangeApproved},
	}
	svc := f.service()

	_, err := svc.ApproveGradeChange(context.Background(), "gcr-1", "adm-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}
