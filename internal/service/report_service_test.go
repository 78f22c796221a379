package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

func TestPercentageHundredthsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		present, total int
		want           int64
		text           string
	}{
		{1, 3, 3333, "33.33"},
		{2, 3, 6667, "66.67"},
		{1, 8, 1250, "12.50"},
		{1, 6, 1667, "16.67"},
		{1, 800, 13, "0.13"},
		{3, 3, 10000, "100.00"},
		{0, 5, 0, "0.00"},
		{0, 0, 0, "0.00"},
	}
	for _, tc := range cases {
		got := PercentageHundredths(tc.present, tc.total)
		assert.Equal(t, tc.want, got, "%d/%d", tc.present, tc.total)
		assert.Equal(t, tc.text, FormatPercentage(got))
	}
}

func TestBuildPresenceMatrixIsComplete(t *testing.T) {
	class := models.Class{ID: "C1", Name: "Grade 10A"}
	sessions := []models.Session{
		{ID: "s-b", Code: "B", ClassID: "C1", CreatedAt: t0.Add(time.Hour)},
		{ID: "s-a2", Code: "A2", ClassID: "C1", CreatedAt: t0},
		{ID: "s-a1", Code: "A1", ClassID: "C1", CreatedAt: t0},
	}
	participants := newMemoryRoster().participants[:3]
	records := []models.AttendanceRecord{
		{SessionID: "s-a1", ParticipantID: "P1"},
		{SessionID: "s-a2", ParticipantID: "P1"},
		{SessionID: "s-b", ParticipantID: "P1"},
		{SessionID: "s-b", ParticipantID: "P2"},
		{SessionID: "s-b", ParticipantID: "GHOST"},
	}

	matrix := BuildPresenceMatrix(class, sessions, participants, records, t0)

	require.Len(t, matrix.Columns, 3)
	assert.Equal(t, []string{"s-a1", "s-a2", "s-b"}, []string{matrix.Columns[0].SessionID, matrix.Columns[1].SessionID, matrix.Columns[2].SessionID})
	assert.Equal(t, 3, matrix.TotalSessions)
	require.Len(t, matrix.Rows, 3)
	for _, row := range matrix.Rows {
		assert.Len(t, row.Cells, 3)
	}

	assert.Equal(t, 3, matrix.Rows[0].PresentCount)
	assert.Equal(t, 100.0, matrix.Rows[0].Percentage)
	assert.Equal(t, []models.PresenceStatus{models.PresenceAbsent, models.PresenceAbsent, models.PresencePresent}, matrix.Rows[1].Cells)
	assert.Equal(t, 33.33, matrix.Rows[1].Percentage)
	assert.Equal(t, 0, matrix.Rows[2].PresentCount)
	assert.Equal(t, 0.0, matrix.Rows[2].Percentage)
}

func TestBuildPresenceMatrixWithoutSessions(t *testing.T) {
	matrix := BuildPresenceMatrix(models.Class{ID: "C1"}, nil, newMemoryRoster().participants[:2], nil, t0)
	assert.Empty(t, matrix.Columns)
	require.Len(t, matrix.Rows, 2)
	assert.Equal(t, 0.0, matrix.Rows[0].Percentage)

	table := PresenceTable(matrix)
	assert.Equal(t, []string{"Roll Number", "Name", "Enrollment", "Present", "Percentage"}, table.Headers)
	assert.Equal(t, []string{"1", "Ana", "NIS-1", "0", "0.00"}, table.Rows[0])
}

func seedReport(t *testing.T, f *fixture) (first, second *models.Session) {
	t.Helper()
	ctx := context.Background()
	first, err := f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "D1"})
	require.NoError(t, err)
	f.clock.Set(t0.Add(24 * time.Hour))
	second, err = f.sessions.Create(ctx, dto.CreateSessionRequest{ClassID: "C1", SubjectID: "MATH", Code: "D2"})
	require.NoError(t, err)

	_, err = f.ledger.Submit(ctx, first.ID, "P1", models.AttendancePayload{ClassID: "C1"})
	require.NoError(t, err)
	_, err = f.ledger.Submit(ctx, second.ID, "P1", models.AttendancePayload{ClassID: "C1"})
	require.NoError(t, err)
	_, err = f.ledger.Submit(ctx, second.ID, "P2", models.AttendancePayload{ClassID: "C1"})
	require.NoError(t, err)
	return first, second
}

func TestReportServicePresenceFiltersByDay(t *testing.T) {
	f := newFixture(t)
	first, second := seedReport(t, f)
	ctx := context.Background()

	matrix, err := f.reports.Presence(ctx, dto.PresenceReportQuery{ClassID: "C1"})
	require.NoError(t, err)
	require.Len(t, matrix.Columns, 2)
	assert.Equal(t, first.ID, matrix.Columns[0].SessionID)
	assert.Equal(t, 50.0, matrix.Rows[1].Percentage)

	matrix, err = f.reports.Presence(ctx, dto.PresenceReportQuery{ClassID: "C1", From: "2024-03-05", To: "2024-03-05"})
	require.NoError(t, err)
	require.Len(t, matrix.Columns, 1)
	assert.Equal(t, second.ID, matrix.Columns[0].SessionID)
	assert.Equal(t, 100.0, matrix.Rows[1].Percentage)

	matrix, err = f.reports.Presence(ctx, dto.PresenceReportQuery{ClassID: "C1", To: "2024-03-04"})
	require.NoError(t, err)
	require.Len(t, matrix.Columns, 1)
	assert.Equal(t, first.ID, matrix.Columns[0].SessionID)

	_, err = f.reports.Presence(ctx, dto.PresenceReportQuery{ClassID: "C1", From: "2024-03-06", To: "2024-03-05"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.reports.Presence(ctx, dto.PresenceReportQuery{ClassID: "C1", From: "04/03/2024"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.reports.Presence(ctx, dto.PresenceReportQuery{ClassID: "C9"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceExportCSV(t *testing.T) {
	f := newFixture(t)
	seedReport(t, f)

	file, err := f.reports.Export(context.Background(), dto.PresenceReportQuery{ClassID: "C1", Format: "CSV"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Regexp(t, `^presence_C1_\d{8}T\d{6}\.csv$`, file.Filename)

	rows, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Roll Number", "Name", "Enrollment", "2024-03-04 08:00 D1", "2024-03-05 08:00 D2", "Present", "Percentage"}, rows[0])
	assert.Equal(t, []string{"1", "Ana", "NIS-1", "present", "present", "2", "100.00"}, rows[1])
	assert.Equal(t, []string{"2", "Budi", "NIS-2", "absent", "present", "1", "50.00"}, rows[2])
	assert.Equal(t, []string{"3", "Citra", "NIS-3", "absent", "absent", "0", "0.00"}, rows[3])

	_, err = f.reports.Export(context.Background(), dto.PresenceReportQuery{ClassID: "C1", Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportServicePDFExport(t *testing.T) {
	f := newFixture(t)
	seedReport(t, f)

	file, err := f.reports.Export(context.Background(), dto.PresenceReportQuery{ClassID: "C1", Format: dto.ReportFormatPDF})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}
