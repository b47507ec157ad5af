package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univkit/registrar-api/internal/models"
	"github.com/univkit/registrar-api/internal/repository"
	"github.com/univkit/registrar-api/internal/service"
	"github.com/univkit/registrar-api/pkg/response"
)

type enrollmentRepoMock struct {
	enrollments map[string]models.Enrollment
	full        bool
	created     *models.Enrollment
}

func (m *enrollmentRepoMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *enrollmentRepoMock) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *enrollmentRepoMock) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *enrollmentRepoMock) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	return false, nil
}

func (m *enrollmentRepoMock) CreateWithCapacityCheck(ctx context.Context, enrollment *models.Enrollment, allowFallback bool) (bool, error) {
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	if m.full && enrollment.Status == models.EnrollmentStatusEnrolled {
		if !allowFallback {
			return false, repository.ErrSectionFull
		}
		enrollment.Status = models.EnrollmentStatusWaitlisted
		m.created = enrollment
		return true, nil
	}
	m.created = enrollment
	return false, nil
}

func (m *enrollmentRepoMock) PromoteOldestWaitlisted(ctx context.Context, sectionID string) (*models.Enrollment, error) {
	return nil, nil
}

func (m *enrollmentRepoMock) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

type studentReaderMock struct{ students map[string]*models.Student }

func (m *studentReaderMock) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type sectionReaderMock struct{ sections map[string]*models.CourseSection }

func (m *sectionReaderMock) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	if s, ok := m.sections[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type termReaderMock struct{ terms map[string]*models.Term }

func (m *termReaderMock) FindBySection(ctx context.Context, sectionID string) (*models.Term, error) {
	if t, ok := m.terms[sectionID]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentHandler(repo *enrollmentRepoMock) *EnrollmentHandler {
	now := time.Now()
	deadline := now.AddDate(0, 0, 7)
	students := &studentReaderMock{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", Active: true, Verified: true},
	}}
	sections := &sectionReaderMock{sections: map[string]*models.CourseSection{
		"sec-1": {ID: "sec-1", CourseID: "crs-1", TermID: "term-1", Capacity: 30},
	}}
	terms := &termReaderMock{terms: map[string]*models.Term{
		"sec-1": {
			ID:              "term-1",
			StartDate:       now.AddDate(0, -1, 0),
			EndDate:         now.AddDate(0, 2, 0),
			AddDropDeadline: &deadline,
		},
	}}
	svc := service.NewEnrollmentService(repo, students, sections, terms, nil, nil, nil)
	return NewEnrollmentHandler(svc)
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &enrollmentRepoMock{}
	h := newEnrollmentHandler(repo)

	payload, _ := json.Marshal(service.EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.EnrollmentStatusEnrolled, repo.created.Status)
}

func TestEnrollmentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newEnrollmentHandler(&enrollmentRepoMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(`{"student_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerCreateFullSection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &enrollmentRepoMock{full: true}
	h := newEnrollmentHandler(repo)

	payload, _ := json.Marshal(service.EnrollRequest{StudentID: "stu-1", SectionID: "sec-1", Status: "ENROLLED"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CAPACITY_EXCEEDED", envelope.Error.Code)
}

func TestEnrollmentHandlerWithdraw(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &enrollmentRepoMock{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
	}}
	h := newEnrollmentHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/enrollments/enr-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}

	h.Withdraw(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, repo.enrollments["enr-1"].Status)
}
