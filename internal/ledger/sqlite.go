package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
)

// TransTypeTransfer is the ledger transaction type assigned to two-legged
// bank transfers.
const TransTypeTransfer = "TRANSFER"

const dateLayout = "2006-01-02"

// SQLite is a Ledger backed by tables in the staging database. Keeping the
// books and the staging rows in one database is what makes the posting
// boundary a single transaction.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLite creates the ledger on an open database handle and initializes
// its schema.
func NewSQLite(db *sql.DB, logger zerolog.Logger) (*SQLite, error) {
	l := &SQLite{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
	if err := l.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *SQLite) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS bank_accounts (
			id       TEXT PRIMARY KEY,
			number   TEXT NOT NULL UNIQUE,
			name     TEXT NOT NULL,
			currency TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bank_accounts table: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			trans_no   INTEGER PRIMARY KEY AUTOINCREMENT,
			trans_type TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger_transactions table: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			trans_type  TEXT NOT NULL,
			trans_no    INTEGER NOT NULL REFERENCES ledger_transactions(trans_no),
			account_id  TEXT NOT NULL,
			entry_date  TEXT NOT NULL,
			amount      REAL NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			partner_id  TEXT NOT NULL DEFAULT '',
			is_invoice  INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger_entries table: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_date
		ON ledger_entries(account_id, entry_date)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger_entries index: %w", err)
	}

	return nil
}

// RegisterBankAccount adds an account to the chart of accounts. Re-registering
// the same number updates name and currency.
func (l *SQLite) RegisterBankAccount(ctx context.Context, acct BankAccount) error {
	if acct.ID == "" || acct.Number == "" {
		return &domain.InvalidArgumentError{Message: "bank account needs both an id and a number"}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, number, name, currency)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET name = excluded.name, currency = excluded.currency
	`, acct.ID, acct.Number, acct.Name, acct.Currency)
	if err != nil {
		return fmt.Errorf("failed to register bank account %s: %w", acct.Number, err)
	}
	return nil
}

// LookupBankAccountByNumber resolves an exact account number first, then
// falls back to a suffix match for numbers truncated by export files. An
// ambiguous suffix resolves to nothing.
func (l *SQLite) LookupBankAccountByNumber(ctx context.Context, number string) (*BankAccount, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, &domain.InvalidArgumentError{Message: "account number cannot be empty"}
	}

	acct := &BankAccount{}
	err := l.db.QueryRowContext(ctx, `
		SELECT id, number, name, currency FROM bank_accounts WHERE number = ?
	`, number).Scan(&acct.ID, &acct.Number, &acct.Name, &acct.Currency)
	if err == nil {
		return acct, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up bank account: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, number, name, currency FROM bank_accounts
		WHERE number LIKE '%' || ?
	`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to look up bank account by suffix: %w", err)
	}
	defer rows.Close()

	var matches []BankAccount
	for rows.Next() {
		var a BankAccount
		if err := rows.Scan(&a.ID, &a.Number, &a.Name, &a.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan bank account row: %w", err)
		}
		matches = append(matches, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank account rows: %w", err)
	}

	if len(matches) != 1 {
		if len(matches) > 1 {
			l.logger.Warn().Str("number", number).Int("matches", len(matches)).
				Msg("account number suffix is ambiguous")
		}
		return nil, &domain.NotFoundError{Kind: "bank account", Key: number}
	}
	return &matches[0], nil
}

// FindEntriesNear returns posted entries for the account within windowDays of
// date, nearest first.
func (l *SQLite) FindEntriesNear(ctx context.Context, accountID string, date time.Time, windowDays int) ([]Entry, error) {
	if windowDays < 0 {
		return nil, &domain.InvalidArgumentError{Message: "window days cannot be negative"}
	}

	from := date.AddDate(0, 0, -windowDays).Format(dateLayout)
	to := date.AddDate(0, 0, windowDays).Format(dateLayout)

	rows, err := l.db.QueryContext(ctx, `
		SELECT trans_type, trans_no, account_id, entry_date, amount, description, partner_id, is_invoice
		FROM ledger_entries
		WHERE account_id = ? AND entry_date BETWEEN ? AND ?
		ORDER BY ABS(JULIANDAY(entry_date) - JULIANDAY(?)), trans_no
	`, accountID, from, to, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var entryDate string
		var isInvoice int
		if err := rows.Scan(&e.Ref.TransType, &e.Ref.TransNo, &e.AccountID,
			&entryDate, &e.Amount, &e.Description, &e.PartnerID, &isInvoice); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		e.Date, err = time.Parse(dateLayout, entryDate)
		if err != nil {
			return nil, fmt.Errorf("corrupt entry date %q: %w", entryDate, err)
		}
		e.IsInvoice = isInvoice != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}

// CreateTransfer posts the two legs of a transfer inside the caller's
// transaction: money out of the source account, money into the destination.
func (l *SQLite) CreateTransfer(ctx context.Context, tx *sql.Tx, req *domain.TransferRequest) (*TransferResult, error) {
	if req == nil {
		return nil, &domain.InvalidArgumentError{Message: "transfer request cannot be nil"}
	}
	if req.Amount <= 0 {
		return nil, &domain.InvalidArgumentError{Message: fmt.Sprintf("transfer amount must be positive, got %f", req.Amount)}
	}
	if req.FromAccountID == "" || req.ToAccountID == "" {
		return nil, &domain.InvalidArgumentError{Message: "transfer needs both account ids"}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions (trans_type) VALUES (?)
	`, TransTypeTransfer)
	if err != nil {
		return nil, &domain.ExternalSystemError{System: "ledger", Op: "create transfer", Err: err}
	}
	transNo, err := res.LastInsertId()
	if err != nil {
		return nil, &domain.ExternalSystemError{System: "ledger", Op: "create transfer", Err: err}
	}

	date := req.Date.Format(dateLayout)
	for _, leg := range []struct {
		accountID string
		amount    float64
	}{
		{req.FromAccountID, -req.Amount},
		{req.ToAccountID, req.Amount},
	} {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (trans_type, trans_no, account_id, entry_date, amount, description)
			VALUES (?, ?, ?, ?, ?, ?)
		`, TransTypeTransfer, transNo, leg.accountID, date, leg.amount, req.Memo)
		if err != nil {
			return nil, &domain.ExternalSystemError{System: "ledger", Op: "create transfer", Err: err}
		}
	}

	l.logger.Info().Int64("trans_no", transNo).
		Str("from", req.FromAccountID).Str("to", req.ToAccountID).
		Float64("amount", req.Amount).Msg("transfer posted")

	return &TransferResult{TransType: TransTypeTransfer, TransNo: transNo}, nil
}

// PostEntry inserts a standalone ledger entry. Used to seed books in tests
// and to register opening entries.
func (l *SQLite) PostEntry(ctx context.Context, transType string, accountID string, date time.Time, amount float64, description, partnerID string, isInvoice bool) (domain.LedgerRef, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (trans_type) VALUES (?)
	`, transType)
	if err != nil {
		return domain.LedgerRef{}, fmt.Errorf("failed to allocate ledger transaction: %w", err)
	}
	transNo, err := res.LastInsertId()
	if err != nil {
		return domain.LedgerRef{}, fmt.Errorf("failed to read allocated transaction number: %w", err)
	}

	inv := 0
	if isInvoice {
		inv = 1
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (trans_type, trans_no, account_id, entry_date, amount, description, partner_id, is_invoice)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, transType, transNo, accountID, date.Format(dateLayout), amount, description, partnerID, inv)
	if err != nil {
		return domain.LedgerRef{}, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return domain.LedgerRef{TransType: transType, TransNo: transNo}, nil
}
