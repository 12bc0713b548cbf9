package transfer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/staging"
)

// Orchestrator posts transfers: it resolves both staged records, infers the
// direction, and commits the ledger post together with both staged-row
// updates as one database transaction. Failures roll everything back and the
// records stay Unprocessed; there is no automatic retry.
type Orchestrator struct {
	repo   *staging.Repository
	ledger ledger.Ledger
	logger zerolog.Logger
}

// NewOrchestrator creates a posting orchestrator.
func NewOrchestrator(repo *staging.Repository, l ledger.Ledger, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:   repo,
		ledger: l,
		logger: logger.With().Str("component", "transfer").Logger(),
	}
}

// Result reports a completed transfer post.
type Result struct {
	Request *domain.TransferRequest
	Ledger  domain.LedgerRef
}

// Post reconciles two staged transactions as one transfer. The two ids may
// arrive in either order; the direction flags decide which side is the
// source.
func (o *Orchestrator) Post(ctx context.Context, idA, idB int64) (*Result, error) {
	if idA == idB {
		return nil, &domain.InvalidArgumentError{Message: "a transfer needs two distinct staged records"}
	}

	a, err := o.repo.GetTransaction(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := o.repo.GetTransaction(ctx, idB)
	if err != nil {
		return nil, err
	}

	for _, txn := range []*domain.Transaction{a, b} {
		if txn.Status != domain.StatusUnprocessed {
			return nil, &domain.LogicError{Op: "post transfer",
				Message: fmt.Sprintf("transaction %d is %s; only unprocessed records can be posted", txn.ID, txn.Status)}
		}
	}

	acctA, err := o.ledger.LookupBankAccountByNumber(ctx, a.AccountID)
	if err != nil {
		return nil, err
	}
	acctB, err := o.ledger.LookupBankAccountByNumber(ctx, b.AccountID)
	if err != nil {
		return nil, err
	}

	req, err := Analyze(a, b, acctA, acctB)
	if err != nil {
		return nil, err
	}

	tx, err := o.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	posted, err := o.ledger.CreateTransfer(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	ref := domain.LedgerRef{TransType: posted.TransType, TransNo: posted.TransNo}

	if err := o.repo.MarkPosted(ctx, tx, a.ID, domain.StatusCreated, ref, b.AccountID); err != nil {
		return nil, err
	}
	if err := o.repo.MarkPosted(ctx, tx, b.ID, domain.StatusCreated, ref, a.AccountID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer post: %w", err)
	}

	o.logger.Info().Int64("from", req.FromTransactionID).Int64("to", req.ToTransactionID).
		Int64("trans_no", ref.TransNo).Float64("amount", req.Amount).
		Msg("transfer posted and staged records updated")

	return &Result{Request: req, Ledger: ref}, nil
}
