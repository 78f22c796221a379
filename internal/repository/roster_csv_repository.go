package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
)

// Roster file names expected inside the roster directory.
const (
	ClassesFile  = "classes.csv"
	SubjectsFile = "subjects.csv"
	StudentsFile = "students.csv"
)

var rosterFiles = [...]string{ClassesFile, SubjectsFile, StudentsFile}

// fileStamp identifies one version of a roster file.
type fileStamp struct {
	exists  bool
	size    int64
	modTime int64
}

type rosterStamps [len(rosterFiles)]fileStamp

type rosterSnapshot struct {
	stamps       rosterStamps
	classes      []models.Class
	subjects     []models.Subject
	participants []models.Participant
}

// RosterCSVRepository serves the read-only roster from operator-maintained CSV
// files. Files are parsed on first use and re-parsed whenever one of them
// changes size or modification time.
type RosterCSVRepository struct {
	dir string

	mu   sync.RWMutex
	snap *rosterSnapshot
}

// NewRosterCSVRepository creates a roster backed by CSV files in dir.
func NewRosterCSVRepository(dir string) *RosterCSVRepository {
	return &RosterCSVRepository{dir: dir}
}

// reload parses every roster file. The previous snapshot is kept when any
// file fails to parse.
func (r *RosterCSVRepository) reload(stamps rosterStamps) error {
	snap, err := r.parse()
	if err != nil {
		return err
	}
	snap.stamps = stamps
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
	return nil
}

// ListClasses returns classes in file order.
func (r *RosterCSVRepository) ListClasses(ctx context.Context) ([]models.Class, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return append([]models.Class(nil), snap.classes...), nil
}

// GetClass returns one class.
func (r *RosterCSVRepository) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	for _, c := range snap.classes {
		if c.ID == classID {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// ListSubjects returns the subjects of a class in file order.
func (r *RosterCSVRepository) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]models.Subject, 0)
	for _, s := range snap.subjects {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetSubject returns one subject.
func (r *RosterCSVRepository) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	for _, s := range snap.subjects {
		if s.ID == subjectID {
			s := s
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// ListParticipants returns the participants of a class in file order. The
// order is stable for a given file.
func (r *RosterCSVRepository) ListParticipants(ctx context.Context, classID string) ([]models.Participant, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]models.Participant, 0)
	for _, p := range snap.participants {
		if p.ClassID == classID {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetParticipant returns a participant enrolled in the class.
func (r *RosterCSVRepository) GetParticipant(ctx context.Context, classID, participantID string) (*models.Participant, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	for _, p := range snap.participants {
		if p.ClassID == classID && p.ID == participantID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *RosterCSVRepository) snapshot() (*rosterSnapshot, error) {
	stamps, err := r.stat()
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()
	if snap != nil && snap.stamps == stamps {
		return snap, nil
	}
	if err := r.reload(stamps); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap, nil
}

// stat is taken before parsing, so an edit racing the parse is picked up by
// the next call.
func (r *RosterCSVRepository) stat() (rosterStamps, error) {
	var stamps rosterStamps
	for i, name := range rosterFiles {
		info, err := os.Stat(filepath.Join(r.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return stamps, classifyStorageError(err, "stat roster "+name)
		}
		stamps[i] = fileStamp{exists: true, size: info.Size(), modTime: info.ModTime().UnixNano()}
	}
	return stamps, nil
}

func (r *RosterCSVRepository) parse() (*rosterSnapshot, error) {
	snap := &rosterSnapshot{}

	err := r.readTable(ClassesFile, []string{"ClassID", "ClassName"}, func(row csvRow) error {
		snap.classes = append(snap.classes, models.Class{ID: row.get("ClassID"), Name: row.get("ClassName")})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.readTable(SubjectsFile, []string{"SubjectID", "ClassID", "SubjectName"}, func(row csvRow) error {
		snap.subjects = append(snap.subjects, models.Subject{
			ID:      row.get("SubjectID"),
			ClassID: row.get("ClassID"),
			Name:    row.get("SubjectName"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.readTable(StudentsFile, []string{"ClassID", "RollNumber", "StudentName"}, func(row csvRow) error {
		p := models.Participant{
			ID:            row.get("ParticipantID"),
			ClassID:       row.get("ClassID"),
			RollNumber:    row.get("RollNumber"),
			DisplayName:   row.get("StudentName"),
			EnrollmentRef: row.get("EnrollmentNumber"),
		}
		if p.ID == "" {
			p.ID = p.RollNumber
		}
		if p.ID == "" {
			return fmt.Errorf("participant without id or roll number")
		}
		snap.participants = append(snap.participants, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type csvRow struct {
	header map[string]int
	values []string
}

func (r csvRow) get(column string) string {
	i, ok := r.header[column]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// readTable reads a roster CSV file. A missing file is an empty table; a file
// lacking any required column is rejected as corrupt.
func (r *RosterCSVRepository) readTable(name string, required []string, fn func(csvRow) error) error {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return classifyStorageError(err, "read roster "+name)
	}
	if err := parseCSV(bytes.NewReader(data), required, fn); err != nil {
		return corrupt(err, "parse roster "+name)
	}
	return nil
}

// parseCSV streams rows of a headed CSV document to fn. A UTF-8 BOM is
// ignored and an empty document has no rows.
func parseCSV(src io.Reader, required []string, fn func(csvRow) error) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	headerRow, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	header := make(map[string]int, len(headerRow))
	for i, col := range headerRow {
		header[strings.TrimSpace(col)] = i
	}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return fmt.Errorf("missing column %q", col)
		}
	}

	line := 1
	for {
		values, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return err
		}
		if err := fn(csvRow{header: header, values: values}); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}
