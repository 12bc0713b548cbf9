// Package ledger defines the boundary to the accounting system that staged
// bank records are reconciled against, plus a SQLite-backed implementation.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
)

// BankAccount is an account registered in the ledger's chart of accounts.
type BankAccount struct {
	ID       string
	Number   string
	Name     string
	Currency string
}

// Entry is one posted ledger line. Amount is signed: negative means money
// left the account.
type Entry struct {
	Ref         domain.LedgerRef
	AccountID   string
	Date        time.Time
	Amount      float64
	Description string
	PartnerID   string
	// IsInvoice marks entries that represent an open invoice awaiting
	// settlement rather than a completed movement.
	IsInvoice bool
}

// TransferResult identifies the transaction a successful transfer post
// created in the ledger.
type TransferResult struct {
	TransType string
	TransNo   int64
}

// Ledger is the accounting-system boundary used by matching and posting.
//
// CreateTransfer takes the caller's open database transaction so a transfer
// post and the staged-row updates that record it commit or roll back as one
// unit. Implementations backed by a remote system should post inside the
// callback-free contract anyway and let the caller treat a commit failure as
// a reconciliation discrepancy to flag.
type Ledger interface {
	// LookupBankAccountByNumber resolves an account number (or a suffix of
	// one, as truncated by export files) to a registered bank account.
	// Returns *domain.NotFoundError when no account matches.
	LookupBankAccountByNumber(ctx context.Context, number string) (*BankAccount, error)

	// FindEntriesNear returns posted entries for the account dated within
	// windowDays of the given date, ordered by date distance.
	FindEntriesNear(ctx context.Context, accountID string, date time.Time, windowDays int) ([]Entry, error)

	// CreateTransfer posts a two-legged transfer inside tx.
	CreateTransfer(ctx context.Context, tx *sql.Tx, req *domain.TransferRequest) (*TransferResult, error)
}
