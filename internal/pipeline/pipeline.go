// Package pipeline orchestrates one import run: parser selection, parsing,
// normalization, validation, and staging with duplicate detection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/normalize"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/registry"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/staging"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/validate"
)

// Outcome classifies what happened to one parsed record during staging.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// RecordResult reports the staging outcome of one parsed transaction.
type RecordResult struct {
	Title      string  `json:"title"`
	ExternalID string  `json:"externalId,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// FileReport summarizes one imported file.
type FileReport struct {
	RunID             string         `json:"runId"`
	File              string         `json:"file"`
	Parser            string         `json:"parser,omitempty"`
	Statements        int            `json:"statements"`
	StatementsUpdated int            `json:"statementsUpdated"`
	Inserted          int            `json:"inserted"`
	Duplicates        int            `json:"duplicates"`
	Rejected          int            `json:"rejected"`
	Warnings          []string       `json:"warnings,omitempty"`
	Records           []RecordResult `json:"records,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// Failed reports whether the file import failed as a whole.
func (r *FileReport) Failed() bool {
	return r.Error != ""
}

// Pipeline wires the import stages together.
type Pipeline struct {
	registry   *registry.Registry
	normalizer *normalize.Normalizer
	repo       *staging.Repository
	logger     zerolog.Logger
}

// New creates an import pipeline.
func New(reg *registry.Registry, n *normalize.Normalizer, repo *staging.Repository, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		registry:   reg,
		normalizer: n,
		repo:       repo,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// ImportFile imports one export file. A structural failure (unknown format,
// grammar violation) fails the whole file; per-record problems reject only
// the offending records and the rest of the file stages normally.
func (p *Pipeline) ImportFile(ctx context.Context, ictx *parser.ImportContext) *FileReport {
	report := &FileReport{
		RunID: uuid.NewString(),
		File:  filepath.Base(ictx.FilePath()),
	}
	log := p.logger.With().Str("run_id", report.RunID).Str("file", report.File).Logger()

	selected, err := p.registry.FindParser(ictx.FilePath())
	if err != nil {
		report.Error = err.Error()
		log.Error().Err(err).Msg("no parser for file")
		return report
	}
	report.Parser = selected.Name()

	f, err := os.Open(ictx.FilePath())
	if err != nil {
		report.Error = fmt.Sprintf("failed to open file: %v", err)
		return report
	}
	defer f.Close()

	rawStatements, err := selected.Parse(ctx, f, ictx)
	if err != nil {
		report.Error = err.Error()
		var malformed *domain.MalformedInputError
		if errors.As(err, &malformed) {
			log.Error().Str("dialect", malformed.Dialect).Int("line", malformed.Line).
				Msg("file is malformed; nothing staged")
		} else {
			log.Error().Err(err).Msg("parse failed")
		}
		return report
	}

	for _, raw := range rawStatements {
		if err := p.stageStatement(ctx, raw, ictx, report, log); err != nil {
			report.Error = err.Error()
			log.Error().Err(err).Msg("staging failed")
			return report
		}
	}

	log.Info().Int("statements", report.Statements).Int("inserted", report.Inserted).
		Int("duplicates", report.Duplicates).Int("rejected", report.Rejected).
		Msg("file imported")
	return report
}

func (p *Pipeline) stageStatement(ctx context.Context, raw *parser.RawStatement, ictx *parser.ImportContext, report *FileReport, log zerolog.Logger) error {
	res, err := p.normalizer.Normalize(raw, ictx)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			// The whole statement lacks identity; its records are rejected,
			// but the rest of the file may still be fine.
			report.Rejected += len(raw.Transactions)
			report.Records = append(report.Records, RecordResult{
				Title:   fmt.Sprintf("statement %s", raw.ExternalID),
				Outcome: OutcomeRejected,
				Reason:  vErr.Error(),
			})
			return nil
		}
		return err
	}

	validation := validate.Statement(res)
	for _, w := range validation.Warnings {
		report.Warnings = append(report.Warnings, w.Message)
	}

	rejectedIDs := make(map[string]string)
	for _, e := range validation.Errors {
		if e.Entity == "statement" {
			report.Rejected += len(res.Transactions)
			report.Records = append(report.Records, RecordResult{
				Title:   fmt.Sprintf("statement %s", res.Statement.ExternalID),
				Outcome: OutcomeRejected,
				Reason:  e.Error(),
			})
			return nil
		}
		rejectedIDs[e.ID] = e.Message
	}

	stmt, err := p.upsertStatement(ctx, res.Statement, report)
	if err != nil {
		return err
	}

	for i, txn := range res.Transactions {
		record := RecordResult{Title: txn.Title, ExternalID: txn.ExternalID}

		id := txn.ExternalID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		if reason, bad := rejectedIDs[id]; bad {
			record.Outcome = OutcomeRejected
			record.Reason = reason
			report.Rejected++
			report.Records = append(report.Records, record)
			continue
		}

		dup, err := p.repo.FindDuplicate(ctx, txn)
		if err != nil {
			return err
		}
		if dup != nil {
			record.Outcome = OutcomeDuplicate
			record.Reason = fmt.Sprintf("already staged as transaction %d", dup.ID)
			report.Duplicates++
			report.Records = append(report.Records, record)
			continue
		}

		txn.StatementID = stmt.ID
		if err := p.repo.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		record.Outcome = OutcomeInserted
		report.Inserted++
		report.Records = append(report.Records, record)
	}

	log.Debug().Str("statement", stmt.ExternalID).Int("transactions", len(res.Transactions)).
		Msg("statement staged")
	return nil
}

// upsertStatement inserts a new statement or refreshes the balances of one
// staged by an earlier import of the same export.
func (p *Pipeline) upsertStatement(ctx context.Context, stmt *domain.Statement, report *FileReport) (*domain.Statement, error) {
	existing, err := p.repo.FindStatement(ctx, stmt.Bank, stmt.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := p.repo.UpdateStatementBalances(ctx, existing.ID, stmt.StartBalance, stmt.EndBalance); err != nil {
			return nil, err
		}
		report.StatementsUpdated++
		return existing, nil
	}

	if err := p.repo.InsertStatement(ctx, stmt); err != nil {
		return nil, err
	}
	report.Statements++
	return stmt, nil
}
