package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
	"github.com/noah-isme/attendance-ledger-api/pkg/export"
)

const reportDateLayout = "2006-01-02"

// tableRenderer renders an export table into a file body.
type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
	ContentType() string
	Extension() string
}

// ReportFile is a rendered presence export.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService builds presence matrices from the registry, the ledger and the roster.
type ReportService struct {
	sessions  SessionStore
	ledger    AttendanceLedger
	roster    RosterReader
	cache     *CacheService
	cacheTTL  time.Duration
	renderers map[string]tableRenderer
	clock     Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs the report builder.
func NewReportService(sessions SessionStore, ledger AttendanceLedger, roster RosterReader, cache *CacheService, cacheTTL time.Duration, clock Clock, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if clock == nil {
		clock = SystemClock{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		sessions: sessions,
		ledger:   ledger,
		roster:   roster,
		cache:    cache,
		cacheTTL: cacheTTL,
		renderers: map[string]tableRenderer{
			dto.ReportFormatCSV: export.NewCSVExporter(),
			dto.ReportFormatPDF: export.NewPDFExporter(),
		},
		clock:     clock,
		validator: validate,
		logger:    logger,
	}
}

// Presence returns the presence matrix for a class, optionally narrowed to a
// subject and a date range on session creation.
func (s *ReportService) Presence(ctx context.Context, query dto.PresenceReportQuery) (*models.PresenceMatrix, error) {
	matrix, _, err := s.PresenceWithCacheStatus(ctx, query)
	return matrix, err
}

// PresenceWithCacheStatus is Presence that also reports whether the matrix
// was served from the cache.
func (s *ReportService) PresenceWithCacheStatus(ctx context.Context, query dto.PresenceReportQuery) (*models.PresenceMatrix, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report query")
	}
	filter, err := sessionFilterFromQuery(query)
	if err != nil {
		return nil, false, err
	}

	class, err := s.roster.GetClass(ctx, filter.ClassID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, false, err
	}

	key := presenceCacheKey(filter.ClassID, filter.SubjectID, filter.From, filter.To)
	var cached models.PresenceMatrix
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	records, err := s.ledger.ListBySessions(ctx, ids)
	if err != nil {
		return nil, false, err
	}
	participants, err := s.roster.ListParticipants(ctx, filter.ClassID)
	if err != nil {
		return nil, false, err
	}

	matrix := BuildPresenceMatrix(*class, sessions, participants, records, s.clock.Now())
	matrix.SubjectID = filter.SubjectID
	s.cache.Set(ctx, key, matrix, s.cacheTTL)
	return &matrix, false, nil
}

// Export renders the presence matrix as CSV or PDF.
func (s *ReportService) Export(ctx context.Context, query dto.PresenceReportQuery) (*ReportFile, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = dto.ReportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	query.Format = format

	matrix, err := s.Presence(ctx, query)
	if err != nil {
		return nil, err
	}
	data, err := renderer.Render(PresenceTable(*matrix))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	filename := fmt.Sprintf("presence_%s_%s.%s", matrix.ClassID, matrix.GeneratedAt.Format("20060102T150405"), renderer.Extension())
	return &ReportFile{Filename: filename, ContentType: renderer.ContentType(), Data: data}, nil
}

// BuildPresenceMatrix is the pure report function. Rows follow the roster
// order; columns are sessions ordered by creation time then id. Every
// participant and every session appears even without records. Records for
// participants outside the roster are ignored.
func BuildPresenceMatrix(class models.Class, sessions []models.Session, participants []models.Participant, records []models.AttendanceRecord, generatedAt time.Time) models.PresenceMatrix {
	ordered := append([]models.Session(nil), sessions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	columns := make([]models.PresenceColumn, 0, len(ordered))
	for _, session := range ordered {
		columns = append(columns, models.PresenceColumn{
			SessionID:   session.ID,
			Code:        session.Code,
			SubjectID:   session.SubjectID,
			SubjectName: session.SubjectName,
			CreatedAt:   session.CreatedAt,
		})
	}

	present := make(map[models.RecordKey]struct{}, len(records))
	for _, rec := range records {
		present[rec.Key()] = struct{}{}
	}

	total := len(columns)
	rows := make([]models.PresenceRow, 0, len(participants))
	for _, p := range participants {
		row := models.PresenceRow{
			ParticipantID: p.ID,
			RollNumber:    p.RollNumber,
			DisplayName:   p.DisplayName,
			EnrollmentRef: p.EnrollmentRef,
			Cells:         make([]models.PresenceStatus, total),
		}
		for i, col := range columns {
			if _, ok := present[models.RecordKey{SessionID: col.SessionID, ParticipantID: p.ID}]; ok {
				row.Cells[i] = models.PresencePresent
				row.PresentCount++
			} else {
				row.Cells[i] = models.PresenceAbsent
			}
		}
		row.Percentage = float64(PercentageHundredths(row.PresentCount, total)) / 100
		rows = append(rows, row)
	}

	return models.PresenceMatrix{
		ClassID:       class.ID,
		ClassName:     class.Name,
		Columns:       columns,
		Rows:          rows,
		TotalSessions: total,
		GeneratedAt:   generatedAt,
	}
}

// PercentageHundredths returns present/total*100 in hundredths of a percent,
// rounded half-up. A zero total yields zero.
func PercentageHundredths(present, total int) int64 {
	if total <= 0 || present <= 0 {
		return 0
	}
	p, t := int64(present), int64(total)
	return (p*10000*2 + t) / (2 * t)
}

// FormatPercentage renders hundredths with exactly two decimals.
func FormatPercentage(hundredths int64) string {
	return strconv.FormatInt(hundredths/100, 10) + "." + fmt.Sprintf("%02d", hundredths%100)
}

// PresenceTable flattens a matrix for CSV and PDF export.
func PresenceTable(matrix models.PresenceMatrix) export.Table {
	headers := []string{"Roll Number", "Name", "Enrollment"}
	for _, col := range matrix.Columns {
		headers = append(headers, col.CreatedAt.UTC().Format(reportDateLayout+" 15:04")+" "+col.Code)
	}
	headers = append(headers, "Present", "Percentage")

	rows := make([][]string, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		cells := []string{row.RollNumber, row.DisplayName, row.EnrollmentRef}
		for _, cell := range row.Cells {
			cells = append(cells, string(cell))
		}
		cells = append(cells,
			strconv.Itoa(row.PresentCount),
			FormatPercentage(PercentageHundredths(row.PresentCount, matrix.TotalSessions)),
		)
		rows = append(rows, cells)
	}

	title := "Presence report " + matrix.ClassID
	if matrix.ClassName != "" {
		title = "Presence report " + matrix.ClassName
	}
	return export.Table{Title: title, Headers: headers, Rows: rows}
}

func sessionFilterFromQuery(query dto.PresenceReportQuery) (models.SessionFilter, error) {
	filter := models.SessionFilter{ClassID: strings.TrimSpace(query.ClassID), SubjectID: strings.TrimSpace(query.SubjectID)}
	if query.From != "" {
		from, err := time.ParseInLocation(reportDateLayout, query.From, time.UTC)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.ParseInLocation(reportDateLayout, query.To, time.UTC)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "to must be YYYY-MM-DD")
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	return filter, nil
}
