package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
)

type mockTranscriptRows struct {
	rows []models.TranscriptRow
}

func (m *mockTranscriptRows) TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	return m.rows, nil
}

type mockHoldLister struct {
	holds []models.Hold
}

func (m *mockHoldLister) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	return m.holds, nil
}

type mockTranscriptStore struct {
	saved map[string][]byte
}

func (m *mockTranscriptStore) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return filename, nil
}

type mockDownloadSigner struct{}

func (m *mockDownloadSigner) Generate(refID, relPath string) (string, time.Time, error) {
	return "token-" + refID, time.Now().Add(time.Hour), nil
}

func newTranscriptService(rows []models.TranscriptRow, holds []models.Hold) (*TranscriptService, *mockTranscriptStore) {
	store := &mockTranscriptStore{}
	svc := NewTranscriptService(TranscriptServiceParams{
		Enrollments: &mockTranscriptRows{rows: rows},
		Students: &mockStudentReader{students: map[string]*models.Student{
			"stu-1": {ID: "stu-1", FullName: "Dana Wells", StudentNumber: "S100", Active: true, Verified: true},
		}},
		Holds:  &mockHoldLister{holds: holds},
		Store:  store,
		Signer: &mockDownloadSigner{},
	})
	return svc, store
}

func TestTranscriptBuildComputesGPA(t *testing.T) {
	rows := []models.TranscriptRow{
		{CourseCode: "CS101", Credits: 4, Grade: "A"},  // 16.0 quality points
		{CourseCode: "MA201", Credits: 3, Grade: "B+"}, // 9.9
		{CourseCode: "PE100", Credits: 1, Grade: "P"},  // excluded from GPA, earns credit
		{CourseCode: "HI150", Credits: 3, Grade: "W"},  // excluded entirely
	}
	svc, _ := newTranscriptService(rows, nil)

	transcript, err := svc.Build(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 7, transcript.CreditsGraded)
	assert.Equal(t, 8, transcript.CreditsEarned)
	assert.InDelta(t, 3.70, transcript.GPA, 0.001)
	assert.Len(t, transcript.Rows, 4)
}

func TestTranscriptBuildFailedCourseEarnsNoCredit(t *testing.T) {
	rows := []models.TranscriptRow{
		{CourseCode: "CS101", Credits: 4, Grade: "F"},
	}
	svc, _ := newTranscriptService(rows, nil)

	transcript, err := svc.Build(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 4, transcript.CreditsGraded)
	assert.Equal(t, 0, transcript.CreditsEarned)
	assert.Equal(t, 0.0, transcript.GPA)
}

func TestTranscriptBuildBlockedByHold(t *testing.T) {
	holds := []models.Hold{{Type: models.HoldTypeFinancial, Active: true, PreventsTranscripts: true}}
	svc, _ := newTranscriptService(nil, holds)

	_, err := svc.Build(context.Background(), "stu-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestTranscriptBuildHoldWithoutTranscriptFlag(t *testing.T) {
	holds := []models.Hold{{Type: models.HoldTypeLibrary, Active: true, PreventsGraduation: true}}
	svc, _ := newTranscriptService(nil, holds)

	_, err := svc.Build(context.Background(), "stu-1")
	assert.NoError(t, err)
}

func TestTranscriptRenderPDFStoresFile(t *testing.T) {
	rows := []models.TranscriptRow{
		{CourseCode: "CS101", CourseTitle: "Intro to CS", TermName: "Fall 2025", Credits: 4, Grade: "A"},
	}
	svc, store := newTranscriptService(rows, nil)

	download, err := svc.RenderPDF(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "token-stu-1", download.Token)
	require.Len(t, store.saved, 1)
	assert.NotEmpty(t, store.saved[download.FileName])
}
