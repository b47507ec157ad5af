package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/univkit/registrar-api/internal/models"
	appErrors "github.com/univkit/registrar-api/pkg/errors"
	"github.com/univkit/registrar-api/pkg/export"
)

type transcriptRowSource interface {
	TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error)
}

type holdLister interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Hold, error)
}

type transcriptStore interface {
	Save(filename string, data []byte) (string, error)
}

type downloadSigner interface {
	Generate(refID, relPath string) (string, time.Time, error)
}

// TranscriptService assembles official transcripts and renders them to PDF.
// Students with an active transcript-blocking hold cannot obtain one.
type TranscriptService struct {
	enrollments transcriptRowSource
	students    studentReader
	holds       holdLister
	pdf         *export.PDFExporter
	store       transcriptStore
	signer      downloadSigner
	logger      *zap.Logger
	now         func() time.Time
}

// TranscriptServiceParams groups constructor dependencies.
type TranscriptServiceParams struct {
	Enrollments transcriptRowSource
	Students    studentReader
	Holds       holdLister
	PDF         *export.PDFExporter
	Store       transcriptStore
	Signer      downloadSigner
	Logger      *zap.Logger
}

// NewTranscriptService constructs the transcript service.
func NewTranscriptService(p TranscriptServiceParams) *TranscriptService {
	if p.PDF == nil {
		p.PDF = export.NewPDFExporter()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &TranscriptService{
		enrollments: p.Enrollments,
		students:    p.Students,
		holds:       p.Holds,
		pdf:         p.PDF,
		store:       p.Store,
		signer:      p.Signer,
		logger:      p.Logger,
		now:         time.Now,
	}
}

// TranscriptDownload points at a rendered transcript file.
type TranscriptDownload struct {
	FileName  string    `json:"file_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Build assembles a student's transcript from completed, graded enrollments.
// GPA covers only grades that carry points; P, NP, W and I rows appear on the
// transcript but are skipped in the average rather than counted as zero.
func (s *TranscriptService) Build(ctx context.Context, studentID string) (*models.Transcript, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.checkTranscriptHolds(ctx, studentID); err != nil {
		return nil, err
	}

	rows, err := s.enrollments.TranscriptRows(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript rows")
	}

	transcript := &models.Transcript{
		StudentID:     student.ID,
		StudentName:   student.FullName,
		StudentNumber: student.StudentNumber,
		Rows:          rows,
		GeneratedAt:   s.now().UTC(),
	}

	var qualityPoints float64
	for _, row := range rows {
		points, counted := models.GradePoints(row.Grade)
		if counted {
			qualityPoints += points * float64(row.Credits)
			transcript.CreditsGraded += row.Credits
		}
		if earnsCredit(row.Grade) {
			transcript.CreditsEarned += row.Credits
		}
	}
	if transcript.CreditsGraded > 0 {
		transcript.GPA = math.Round(qualityPoints/float64(transcript.CreditsGraded)*100) / 100
	}
	return transcript, nil
}

// RenderPDF builds the transcript, renders it and stores the file, returning
// a signed download reference.
func (s *TranscriptService) RenderPDF(ctx context.Context, studentID string) (*TranscriptDownload, error) {
	transcript, err := s.Build(ctx, studentID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Course", "Title", "Term", "Credits", "Grade"},
	}
	for _, row := range transcript.Rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course":  row.CourseCode,
			"Title":   row.CourseTitle,
			"Term":    row.TermName,
			"Credits": fmt.Sprintf("%d", row.Credits),
			"Grade":   row.Grade,
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Course":  "GPA",
		"Title":   fmt.Sprintf("%.2f", transcript.GPA),
		"Term":    "Credits earned",
		"Credits": fmt.Sprintf("%d", transcript.CreditsEarned),
		"Grade":   "",
	})

	title := fmt.Sprintf("Official Transcript - %s (%s)", transcript.StudentName, transcript.StudentNumber)
	rendered, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}

	fileName := fmt.Sprintf("transcripts/%s-%d.pdf", studentID, s.now().Unix())
	if _, err := s.store.Save(fileName, rendered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store transcript")
	}

	token, expiresAt, err := s.signer.Generate(studentID, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	s.logger.Info("transcript rendered",
		zap.String("student_id", studentID),
		zap.String("file", fileName))
	return &TranscriptDownload{FileName: fileName, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *TranscriptService) checkTranscriptHolds(ctx context.Context, studentID string) error {
	holds, err := s.holds.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student holds")
	}
	for _, hold := range holds {
		if hold.PreventsTranscripts {
			return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("an active %s hold blocks transcript release", hold.Type))
		}
	}
	return nil
}

// earnsCredit reports whether a grade earns the course's credits. Passing
// letter grades and P count; F, NP, W and I do not.
func earnsCredit(grade string) bool {
	if grade == "P" {
		return true
	}
	points, ok := models.GradePoints(grade)
	return ok && points > 0
}
