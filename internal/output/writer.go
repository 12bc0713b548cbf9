// Package output serializes import run reports to JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/pipeline"
)

// Totals aggregates staging outcomes across one run.
type Totals struct {
	Files             int `json:"files"`
	Failed            int `json:"failed"`
	Statements        int `json:"statements"`
	StatementsUpdated int `json:"statementsUpdated"`
	Inserted          int `json:"inserted"`
	Duplicates        int `json:"duplicates"`
	Rejected          int `json:"rejected"`
}

// Report is the JSON document describing one import run.
type Report struct {
	GeneratedAt time.Time              `json:"generatedAt"`
	Totals      Totals                 `json:"totals"`
	Files       []*pipeline.FileReport `json:"files"`
}

// BuildReport aggregates the per-file reports of one run.
func BuildReport(files []*pipeline.FileReport) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Files:       files,
	}
	for _, f := range files {
		r.Totals.Files++
		if f.Failed() {
			r.Totals.Failed++
		}
		r.Totals.Statements += f.Statements
		r.Totals.StatementsUpdated += f.StatementsUpdated
		r.Totals.Inserted += f.Inserted
		r.Totals.Duplicates += f.Duplicates
		r.Totals.Rejected += f.Rejected
	}
	return r
}

// WriteReport serializes the report as indented JSON.
func WriteReport(r *Report, w io.Writer) error {
	if r == nil {
		return fmt.Errorf("report cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}
	return nil
}

// WriteReportToFile writes the report to a file, or to stdout when the path
// is empty.
func WriteReportToFile(r *Report, path string) (err error) {
	if path == "" {
		return WriteReport(r, os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", path, closeErr)
		}
	}()

	if err = WriteReport(r, f); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
