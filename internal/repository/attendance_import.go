package repository

import (
	"io"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	appErrors "github.com/noah-isme/attendance-ledger-api/pkg/errors"
)

// LegacyAttendanceFile is the sheet written before the ledger existed.
const LegacyAttendanceFile = "attendance.csv"

// ReadLegacyAttendanceCSV parses the pre-ledger attendance sheet
// (Date, SessionID, RollNumber, StudentName, EnrollmentNumber). Absent
// columns read as empty, as the sheet itself backfilled them; a row without a
// session id or roll number cannot be keyed and fails the whole read.
func ReadLegacyAttendanceCSV(src io.Reader) ([]models.AttendanceRecord, error) {
	records := make([]models.AttendanceRecord, 0)
	err := parseCSV(src, nil, func(row csvRow) error {
		rec, err := models.LegacyAttendanceRecord(
			row.get("Date"),
			row.get("SessionID"),
			row.get("RollNumber"),
			row.get("StudentName"),
			row.get("EnrollmentNumber"),
		)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid legacy attendance sheet")
	}
	return records, nil
}
