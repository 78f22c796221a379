package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seededSessions = `{
  "schema_version": 1,
  "sessions": [
    {"id": "old", "code": "OLD", "class_id": "10A", "subject_id": "MATH", "created_at": "2020-01-01T08:00:00Z", "expiry_minutes": 30, "active": true},
    {"id": "done", "code": "DONE", "class_id": "10A", "subject_id": "MATH", "created_at": "2020-01-02T08:00:00Z", "expiry_minutes": 30, "active": false}
  ]
}`

const seededAttendance = `[
  {"session_id": "old", "participant_id": "1", "recorded_at": "2020-01-01T08:05:00Z"}
]`

func setupStore(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	rosterDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "sessions.json"), []byte(seededSessions), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "attendance.json"), []byte(seededAttendance), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rosterDir, "classes.csv"), []byte("ClassID,ClassName\n10A,Grade 10A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rosterDir, "students.csv"), []byte("ClassID,RollNumber,StudentName\n10A,1,Ana\n10A,2,Budi\n"), 0o644))

	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("STORE_DATA_DIR", dataDir)
	t.Setenv("ROSTER_DIR", rosterDir)
	t.Setenv("ENABLE_REPORT_CACHE", "false")
	return dataDir
}

func TestVerifyCmd(t *testing.T) {
	dataDir := setupStore(t)
	out := &bytes.Buffer{}

	require.NoError(t, (&VerifyCmd{}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "sessions     OK    2 row(s)")
	assert.Contains(t, out.String(), "attendance   OK    1 row(s)")

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "sessions.json"), []byte(""), 0o644))
	out.Reset()
	err := (&VerifyCmd{}).Run(context.Background(), &Globals{Out: out})
	require.Error(t, err)
	assert.Contains(t, out.String(), "sessions     FAIL")
}

func TestSweepCmd(t *testing.T) {
	setupStore(t)
	out := &bytes.Buffer{}

	require.NoError(t, (&SweepCmd{DryRun: true}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "1 session(s) would be deactivated")

	out.Reset()
	require.NoError(t, (&SweepCmd{}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "old\n")
	assert.Contains(t, out.String(), "1 session(s) deactivated")

	out.Reset()
	require.NoError(t, (&SweepCmd{}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "0 session(s) deactivated")
}

func TestReportCmd(t *testing.T) {
	setupStore(t)
	out := &bytes.Buffer{}

	require.NoError(t, (&ReportCmd{Class: "10A", Format: "csv", Output: "-"}).Run(context.Background(), &Globals{Out: out}))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "Roll Number,Name,Enrollment,2020-01-01 08:00 OLD,2020-01-02 08:00 DONE,Present,Percentage", string(lines[0]))
	assert.Equal(t, "1,Ana,,present,absent,1,50.00", string(lines[1]))

	target := filepath.Join(t.TempDir(), "report.json")
	out.Reset()
	require.NoError(t, (&ReportCmd{Class: "10A", Format: "json", Output: target}).Run(context.Background(), &Globals{Out: out}))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_sessions": 2`)

	err = (&ReportCmd{Class: "ZZ", Format: "csv"}).Run(context.Background(), &Globals{Out: out})
	assert.Error(t, err)
}

func TestImportCmd(t *testing.T) {
	dataDir := setupStore(t)
	sheet := filepath.Join(t.TempDir(), "attendance.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("Date,SessionID,RollNumber,StudentName,EnrollmentNumber\n"+
		"2020-01-01,old,1,Ana,\n"+
		"2020-01-02,done,2,Budi,\n"), 0o644))
	out := &bytes.Buffer{}

	require.NoError(t, (&ImportCmd{File: sheet, DryRun: true}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "2 record(s) read, nothing written")

	out.Reset()
	require.NoError(t, (&ImportCmd{File: sheet}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "2 record(s) read, 1 imported, 1 already recorded")

	out.Reset()
	require.NoError(t, (&VerifyCmd{}).Run(context.Background(), &Globals{Out: out}))
	assert.Contains(t, out.String(), "attendance   OK    2 row(s)")

	require.NoError(t, os.WriteFile(sheet, []byte("Date,SessionID,RollNumber\n2020-01-01,,1\n"), 0o644))
	err := (&ImportCmd{File: sheet}).Run(context.Background(), &Globals{Out: out})
	require.Error(t, err)

	raw, err := os.ReadFile(filepath.Join(dataDir, "attendance.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"schema_version": 2`)
}
