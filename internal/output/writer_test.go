package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/pipeline"
)

func sampleFiles() []*pipeline.FileReport {
	return []*pipeline.FileReport{
		{
			RunID:      "run-1",
			File:       "feb.ofx",
			Parser:     "ofx",
			Statements: 1,
			Inserted:   10,
			Duplicates: 2,
		},
		{
			RunID:  "run-2",
			File:   "notes.pdf",
			Error:  "no parser found for file: notes.pdf",
			Parser: "",
		},
		{
			RunID:             "run-3",
			File:              "feb.csv",
			Parser:            "csv",
			StatementsUpdated: 1,
			Rejected:          3,
		},
	}
}

func TestBuildReport(t *testing.T) {
	r := BuildReport(sampleFiles())

	assert.Equal(t, 3, r.Totals.Files)
	assert.Equal(t, 1, r.Totals.Failed)
	assert.Equal(t, 1, r.Totals.Statements)
	assert.Equal(t, 1, r.Totals.StatementsUpdated)
	assert.Equal(t, 10, r.Totals.Inserted)
	assert.Equal(t, 2, r.Totals.Duplicates)
	assert.Equal(t, 3, r.Totals.Rejected)
	assert.False(t, r.GeneratedAt.IsZero())
}

func TestWriteReport(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteReport(BuildReport(sampleFiles()), buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.Totals.Files)
	require.Len(t, decoded.Files, 3)
	assert.Equal(t, "feb.ofx", decoded.Files[0].File)
	assert.Contains(t, buf.String(), "  ", "output is indented for humans")
}

func TestWriteReport_Nil(t *testing.T) {
	require.Error(t, WriteReport(nil, &bytes.Buffer{}))
}

func TestWriteReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReportToFile(BuildReport(sampleFiles()), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Totals.Failed)
}

func TestWriteReportToFile_BadPath(t *testing.T) {
	err := WriteReportToFile(BuildReport(nil), filepath.Join(t.TempDir(), "missing", "report.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create output file")
}
