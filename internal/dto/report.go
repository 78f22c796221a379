package dto

// Export formats for presence reports.
const (
	ReportFormatJSON = "json"
	ReportFormatCSV  = "csv"
	ReportFormatPDF  = "pdf"
)

// PresenceReportQuery captures presence report filters. Dates are inclusive
// calendar days (YYYY-MM-DD, UTC).
type PresenceReportQuery struct {
	ClassID   string `form:"class_id" validate:"required,max=64"`
	SubjectID string `form:"subject_id" validate:"omitempty,max=64"`
	From      string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Format    string `form:"format" validate:"omitempty,oneof=json csv pdf"`
}
