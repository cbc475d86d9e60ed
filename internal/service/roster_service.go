package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/online-course-api/internal/models"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
	"github.com/noah-isme/online-course-api/pkg/export"
)

// RosterFormat is the rendering of an exported roster.
type RosterFormat string

// Supported roster formats.
const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

var rosterHeaders = []string{"Student", "Email", "Enrollment Date", "Status"}

type rosterSource interface {
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error)
	ListEnrollments(ctx context.Context, actor *models.JWTClaims, id string) ([]models.EnrollmentDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// RosterFile is a rendered roster ready to be streamed.
type RosterFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterService renders course rosters for their teacher.
type RosterService struct {
	courses rosterSource
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewRosterService constructs RosterService, defaulting the renderers.
func NewRosterService(courses rosterSource, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *RosterService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{courses: courses, csv: csv, pdf: pdf, logger: logger}
}

// ExportRoster renders the enrollments of a course in the requested format.
func (s *RosterService) ExportRoster(ctx context.Context, actor *models.JWTClaims, courseID string, format RosterFormat) (*RosterFile, error) {
	format = RosterFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = RosterFormatCSV
	}
	if format != RosterFormatCSV && format != RosterFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	roster, err := s.courses.ListEnrollments(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.Get(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: rosterHeaders, Rows: make([]map[string]string, 0, len(roster))}
	for _, entry := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":         entry.StudentName,
			"Email":           entry.StudentEmail,
			"Enrollment Date": entry.EnrollmentDate.UTC().Format("2006-01-02"),
			"Status":          string(entry.Status),
		})
	}

	var (
		payload     []byte
		contentType string
	)
	switch format {
	case RosterFormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("%s roster", course.Name))
		contentType = "application/pdf"
	default:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	s.logger.Info("roster exported", zap.String("course_id", courseID), zap.String("format", string(format)), zap.Int("rows", len(roster)))
	return &RosterFile{
		Filename:    rosterFilename(course.Name, format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func rosterFilename(courseName string, format RosterFormat) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	name := strings.ToLower(replacer.Replace(strings.TrimSpace(courseName)))
	if name == "" {
		name = "course"
	}
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}
	return fmt.Sprintf("%s_roster_%s.%s", name, time.Now().UTC().Format("20060102"), format)
}
