package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type mockGraduationRepo struct {
	applications map[string]models.GraduationApplication
	approved     []string
}

func (m *mockGraduationRepo) FindByID(ctx context.Context, id string) (*models.GraduationApplication, error) {
	if a, ok := m.applications[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGraduationRepo) List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationApplication, int, error) {
	return nil, 0, nil
}

func (m *mockGraduationRepo) Create(ctx context.Context, application *models.GraduationApplication) error {
	if m.applications == nil {
		m.applications = make(map[string]models.GraduationApplication)
	}
	if application.ID == "" {
		application.ID = "gra-new"
	}
	m.applications[application.ID] = *application
	return nil
}

func (m *mockGraduationRepo) UpdateClearance(ctx context.Context, id string, status models.GraduationStatus, clearance models.ClearanceStatus) error {
	a := m.applications[id]
	a.Status = status
	a.ClearanceStatus = clearance
	m.applications[id] = a
	return nil
}

func (m *mockGraduationRepo) SetApproved(ctx context.Context, id, reviewedBy string) error {
	a := m.applications[id]
	a.Status = models.GraduationStatusApproved
	a.ReviewedBy = &reviewedBy
	m.applications[id] = a
	m.approved = append(m.approved, id)
	return nil
}

type mockHoldChecker struct {
	holds map[models.HoldType]bool
}

func (m *mockHoldChecker) HasActiveHold(ctx context.Context, studentID string, holdType models.HoldType) (bool, error) {
	return m.holds[holdType], nil
}

func pendingApplication(id string) models.GraduationApplication {
	return models.GraduationApplication{
		ID: id, StudentID: "stu-1", ProgramID: "prg-1", TermID: "term-1",
		Status: models.GraduationStatusPending,
	}
}

func TestGraduationClearanceInitiateWithoutHolds(t *testing.T) {
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": pendingApplication("gra-1")}}
	svc := NewGraduationClearanceService(repo, &mockHoldChecker{}, nil, nil)

	application, err := svc.InitiateClearance(context.Background(), "gra-1")
	require.NoError(t, err)
	assert.Equal(t, models.GraduationStatusClearanceInProgress, application.Status)
	assert.Equal(t, models.ClearanceCleared, application.ClearanceStatus[models.DepartmentFinancial].Status)
	assert.Equal(t, models.ClearanceCleared, application.ClearanceStatus[models.DepartmentLibrary].Status)
	assert.Equal(t, models.ClearancePending, application.ClearanceStatus[models.DepartmentRegistrar].Status)
	assert.Equal(t, models.ClearancePending, application.ClearanceStatus[models.DepartmentAcademic].Status)
}

func TestGraduationClearanceInitiateWithFinancialHold(t *testing.T) {
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": pendingApplication("gra-1")}}
	holds := &mockHoldChecker{holds: map[models.HoldType]bool{models.HoldTypeFinancial: true}}
	svc := NewGraduationClearanceService(repo, holds, nil, nil)

	application, err := svc.InitiateClearance(context.Background(), "gra-1")
	require.NoError(t, err)
	assert.Equal(t, models.ClearanceHold, application.ClearanceStatus[models.DepartmentFinancial].Status)
	assert.Equal(t, models.ClearanceCleared, application.ClearanceStatus[models.DepartmentLibrary].Status)
}

func TestGraduationClearanceInitiateTwice(t *testing.T) {
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": pendingApplication("gra-1")}}
	svc := NewGraduationClearanceService(repo, &mockHoldChecker{}, nil, nil)

	_, err := svc.InitiateClearance(context.Background(), "gra-1")
	require.NoError(t, err)
	_, err = svc.InitiateClearance(context.Background(), "gra-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestGraduationClearanceAutoAdvanceOnLastDepartment(t *testing.T) {
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": pendingApplication("gra-1")}}
	svc := NewGraduationClearanceService(repo, &mockHoldChecker{}, nil, nil)

	_, err := svc.InitiateClearance(context.Background(), "gra-1")
	require.NoError(t, err)

	application, err := svc.ClearDepartment(context.Background(), ClearDepartmentRequest{
		ApplicationID: "gra-1", Department: models.DepartmentRegistrar, ClearedBy: "reg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.GraduationStatusClearanceInProgress, application.Status)

	application, err = svc.ClearDepartment(context.Background(), ClearDepartmentRequest{
		ApplicationID: "gra-1", Department: models.DepartmentAcademic, ClearedBy: "aca-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.GraduationStatusCleared, application.Status)
}

func TestGraduationClearanceClearDepartmentRecordsSignoff(t *testing.T) {
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": pendingApplication("gra-1")}}
	svc := NewGraduationClearanceService(repo, &mockHoldChecker{}, nil, nil)

	_, err := svc.InitiateClearance(context.Background(), "gra-1")
	require.NoError(t, err)

	notes := "records verified"
	application, err := svc.ClearDepartment(context.Background(), ClearDepartmentRequest{
		ApplicationID: "gra-1", Department: models.DepartmentRegistrar, ClearedBy: "reg-1", Notes: &notes,
	})
	require.NoError(t, err)
	entry := application.ClearanceStatus[models.DepartmentRegistrar]
	assert.Equal(t, models.ClearanceCleared, entry.Status)
	assert.Equal(t, "reg-1", *entry.ClearedBy)
	assert.NotNil(t, entry.ClearedAt)
	assert.Equal(t, "records verified", *entry.Notes)
}

func TestGraduationFinalApprove(t *testing.T) {
	cleared := pendingApplication("gra-1")
	cleared.Status = models.GraduationStatusCleared
	cleared.ClearanceStatus = models.ClearanceStatus{}
	for _, dept := range models.ClearanceDepartments {
		cleared.ClearanceStatus[dept] = models.ClearanceEntry{Status: models.ClearanceCleared}
	}
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": cleared}}
	svc := NewGraduationClearanceService(repo, &mockHoldChecker{}, nil, nil)

	application, err := svc.FinalApprove(context.Background(), "gra-1", "dean-1")
	require.NoError(t, err)
	assert.Equal(t, models.GraduationStatusApproved, application.Status)
	assert.Equal(t, "dean-1", *application.ReviewedBy)
	assert.Equal(t, []string{"gra-1"}, repo.approved)
}

func TestGraduationFinalApprovePanicsOnIncompleteClearance(t *testing.T) {
	incomplete := pendingApplication("gra-1")
	incomplete.Status = models.GraduationStatusClearanceInProgress
	incomplete.ClearanceStatus = models.ClearanceStatus{
		models.DepartmentFinancial: {Status: models.ClearanceCleared},
		models.DepartmentLibrary:   {Status: models.ClearanceCleared},
		models.DepartmentRegistrar: {Status: models.ClearanceCleared},
		models.DepartmentAcademic:  {Status: models.ClearancePending},
	}
	repo := &mockGraduationRepo{applications: map[string]models.GraduationApplication{"gra-1": incomplete}}
	svc := NewGraduationClearanceService(repo, &mockHoldChecker{}, nil, nil)

	assert.Panics(t, func() {
		_, _ = svc.FinalApprove(context.Background(), "gra-1", "dean-1")
	})
	assert.Empty(t, repo.approved)
}
