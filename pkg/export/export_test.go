package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Title:   "Presence",
		Headers: []string{"Roll", "Name", "2024-03-04 ABC", "Present", "Percentage"},
		Rows: [][]string{
			{"1", "Ana", "present", "1", "100.00"},
			{"2", "Budi, Jr.", "absent", "0", "0.00"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleTable())
	require.NoError(t, err)
	expected := "Roll,Name,2024-03-04 ABC,Present,Percentage\n" +
		"1,Ana,present,1,100.00\n" +
		"2,\"Budi, Jr.\",absent,0,0.00\n"
	assert.Equal(t, expected, string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows, []string{"3"})
	_, err := NewCSVExporter().Render(table)
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Table{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}
