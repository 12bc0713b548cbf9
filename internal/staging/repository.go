// Package staging persists imported statements and transactions and enforces
// the duplicate-detection and lifecycle rules of the reconciliation store.
package staging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
)

const dateLayout = "2006-01-02"

// OpenDatabase opens (creating if necessary) the staging database. The same
// handle backs the ledger tables so posting can commit as one transaction.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Repository handles persistence of staged statements and transactions.
type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewRepository creates the repository on an open database handle and
// initializes its schema.
func NewRepository(db *sql.DB, logger zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:     db,
		logger: logger.With().Str("component", "staging").Logger(),
	}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize staging schema: %w", err)
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS statements (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			bank          TEXT NOT NULL,
			account_id    TEXT NOT NULL,
			currency      TEXT NOT NULL DEFAULT '',
			stmt_date     TEXT NOT NULL,
			sequence      TEXT NOT NULL DEFAULT '',
			external_id   TEXT NOT NULL,
			start_balance REAL NOT NULL DEFAULT 0,
			end_balance   REAL NOT NULL DEFAULT 0,
			UNIQUE (bank, external_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create statements table: %w", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			statement_id       INTEGER NOT NULL REFERENCES statements(id),
			value_date         TEXT NOT NULL,
			entry_date         TEXT NOT NULL,
			account_id         TEXT NOT NULL,
			account_name       TEXT NOT NULL DEFAULT '',
			direction          TEXT NOT NULL,
			label              TEXT NOT NULL,
			amount             REAL NOT NULL,
			title              TEXT NOT NULL,
			memo               TEXT NOT NULL DEFAULT '',
			merchant           TEXT NOT NULL DEFAULT '',
			category           TEXT NOT NULL DEFAULT '',
			partner_id         TEXT NOT NULL DEFAULT '',
			external_id        TEXT NOT NULL DEFAULT '',
			reference_code     TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			ledger_trans_type  TEXT NOT NULL DEFAULT '',
			ledger_trans_no    INTEGER NOT NULL DEFAULT 0,
			counter_account_id TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}

	// The primary dedup key. Partial index: records without an issuer id
	// fall back to the (reference, account, amount) probe in FindDuplicate.
	_, err = r.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external
		ON transactions(account_id, external_id) WHERE external_id != ''
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions external index: %w", err)
	}

	_, err = r.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_code, account_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions reference index: %w", err)
	}

	_, err = r.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_status
		ON transactions(status)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions status index: %w", err)
	}

	return nil
}

// BeginTx starts a database transaction for callers that need multiple writes
// to commit as one unit.
func (r *Repository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// InsertStatement persists a new statement and assigns its ID.
func (r *Repository) InsertStatement(ctx context.Context, stmt *domain.Statement) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO statements (bank, account_id, currency, stmt_date, sequence, external_id, start_balance, end_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, stmt.Bank, stmt.AccountID, stmt.Currency, stmt.Date.Format(dateLayout),
		stmt.Sequence, stmt.ExternalID, stmt.StartBalance, stmt.EndBalance)
	if err != nil {
		return fmt.Errorf("failed to insert statement %s/%s: %w", stmt.Bank, stmt.ExternalID, err)
	}
	stmt.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted statement id: %w", err)
	}
	return nil
}

// FindStatement looks up a statement by its identity key (bank, external id).
// Returns (nil, nil) when no statement matches.
func (r *Repository) FindStatement(ctx context.Context, bank, externalID string) (*domain.Statement, error) {
	stmt := &domain.Statement{}
	var date string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, bank, account_id, currency, stmt_date, sequence, external_id, start_balance, end_balance
		FROM statements WHERE bank = ? AND external_id = ?
	`, bank, externalID).Scan(&stmt.ID, &stmt.Bank, &stmt.AccountID, &stmt.Currency,
		&date, &stmt.Sequence, &stmt.ExternalID, &stmt.StartBalance, &stmt.EndBalance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find statement %s/%s: %w", bank, externalID, err)
	}
	if stmt.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("corrupt statement date %q: %w", date, err)
	}
	return stmt, nil
}

// UpdateStatementBalances refreshes the balances of an existing statement.
// Re-imports may carry corrected balances; identity fields never change.
func (r *Repository) UpdateStatementBalances(ctx context.Context, id int64, start, end float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE statements SET start_balance = ?, end_balance = ? WHERE id = ?
	`, start, end, id)
	if err != nil {
		return fmt.Errorf("failed to update statement %d balances: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "statement", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}

// InsertTransaction persists a new staged transaction and assigns its ID.
// The caller is responsible for running FindDuplicate first; a primary-key
// collision that slips through still fails on the unique index.
func (r *Repository) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.StatementID == 0 {
		return &domain.InvalidArgumentError{Message: "transaction must be linked to a statement before insert"}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (statement_id, value_date, entry_date, account_id, account_name,
			direction, label, amount, title, memo, merchant, category, partner_id, external_id,
			reference_code, status, ledger_trans_type, ledger_trans_no, counter_account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.StatementID, txn.ValueDate.Format(dateLayout), txn.EntryDate.Format(dateLayout),
		txn.AccountID, txn.AccountName, string(txn.Direction), txn.Label, txn.Amount,
		txn.Title, txn.Memo, txn.Merchant, txn.Category, txn.PartnerID, txn.ExternalID,
		txn.ReferenceCode, string(txn.Status), txn.Ledger.TransType, txn.Ledger.TransNo,
		txn.CounterAccountID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s on %s: %w", txn.Title, txn.AccountID, err)
	}
	txn.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted transaction id: %w", err)
	}
	return nil
}

const transactionColumns = `id, statement_id, value_date, entry_date, account_id, account_name,
	direction, label, amount, title, memo, merchant, category, partner_id, external_id,
	reference_code, status, ledger_trans_type, ledger_trans_no, counter_account_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	var valueDate, entryDate, direction, status string
	err := row.Scan(&txn.ID, &txn.StatementID, &valueDate, &entryDate, &txn.AccountID,
		&txn.AccountName, &direction, &txn.Label, &txn.Amount, &txn.Title, &txn.Memo,
		&txn.Merchant, &txn.Category, &txn.PartnerID, &txn.ExternalID, &txn.ReferenceCode,
		&status, &txn.Ledger.TransType, &txn.Ledger.TransNo, &txn.CounterAccountID)
	if err != nil {
		return nil, err
	}
	txn.Direction = domain.Direction(direction)
	txn.Status = domain.Status(status)
	if txn.ValueDate, err = time.Parse(dateLayout, valueDate); err != nil {
		return nil, fmt.Errorf("corrupt value date %q: %w", valueDate, err)
	}
	if txn.EntryDate, err = time.Parse(dateLayout, entryDate); err != nil {
		return nil, fmt.Errorf("corrupt entry date %q: %w", entryDate, err)
	}
	return txn, nil
}

// GetTransaction loads one staged transaction by ID.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Kind: "transaction", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	return txn, nil
}

// FindDuplicate probes for an already staged copy of the record. The issuer
// id is the primary key: (account, external id). Records without one fall
// back to (reference code, account, amount magnitude). Returns (nil, nil)
// when the record is new.
func (r *Repository) FindDuplicate(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	var row *sql.Row
	switch {
	case txn.ExternalID != "":
		row = r.db.QueryRowContext(ctx, `
			SELECT `+transactionColumns+` FROM transactions
			WHERE account_id = ? AND external_id = ?
		`, txn.AccountID, txn.ExternalID)
	case txn.ReferenceCode != "":
		row = r.db.QueryRowContext(ctx, `
			SELECT `+transactionColumns+` FROM transactions
			WHERE reference_code = ? AND account_id = ? AND ABS(amount - ?) < ?
		`, txn.ReferenceCode, txn.AccountID, txn.Amount, domain.AmountEpsilon)
	default:
		return nil, nil
	}

	dup, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to probe for duplicate of %s: %w", txn.Title, err)
	}
	return dup, nil
}

// ListTransactions returns staged transactions, optionally filtered by status
// and account, ordered by value date then ID.
func (r *Repository) ListTransactions(ctx context.Context, status domain.Status, accountID string) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY value_date, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txns, nil
}

// UpdateTransaction persists changes to a staged transaction, enforcing the
// posted-record rules: once a record is matched or created, its amount
// magnitude, matching key, and dates are frozen. Descriptive fields and the
// direction flag stay editable.
func (r *Repository) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	existing, err := r.GetTransaction(ctx, txn.ID)
	if err != nil {
		return err
	}

	if existing.Status.Posted() {
		switch {
		case !domain.SameAmount(existing.Amount, txn.Amount):
			return &domain.LogicError{Op: "update transaction",
				Message: fmt.Sprintf("transaction %d is posted; amount magnitude is frozen", txn.ID)}
		case existing.ReferenceCode != txn.ReferenceCode,
			existing.ExternalID != txn.ExternalID,
			existing.AccountID != txn.AccountID:
			return &domain.LogicError{Op: "update transaction",
				Message: fmt.Sprintf("transaction %d is posted; matching key is frozen", txn.ID)}
		case !existing.ValueDate.Equal(txn.ValueDate), !existing.EntryDate.Equal(txn.EntryDate):
			return &domain.LogicError{Op: "update transaction",
				Message: fmt.Sprintf("transaction %d is posted; dates are frozen", txn.ID)}
		}
	}

	return r.updateTransaction(ctx, r.db, txn)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) updateTransaction(ctx context.Context, ex execer, txn *domain.Transaction) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE transactions SET value_date = ?, entry_date = ?, account_id = ?, account_name = ?,
			direction = ?, label = ?, amount = ?, title = ?, memo = ?, merchant = ?, category = ?,
			partner_id = ?, external_id = ?, reference_code = ?, status = ?, ledger_trans_type = ?,
			ledger_trans_no = ?, counter_account_id = ?
		WHERE id = ?
	`, txn.ValueDate.Format(dateLayout), txn.EntryDate.Format(dateLayout), txn.AccountID,
		txn.AccountName, string(txn.Direction), txn.Label, txn.Amount, txn.Title, txn.Memo,
		txn.Merchant, txn.Category, txn.PartnerID, txn.ExternalID, txn.ReferenceCode,
		string(txn.Status), txn.Ledger.TransType, txn.Ledger.TransNo, txn.CounterAccountID, txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", txn.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "transaction", Key: fmt.Sprintf("%d", txn.ID)}
	}
	return nil
}

// MarkPosted records a successful ledger post inside the caller's database
// transaction: the row moves to the given posted status and gains its ledger
// reference and counter-account cross-reference.
func (r *Repository) MarkPosted(ctx context.Context, tx *sql.Tx, id int64, status domain.Status, ref domain.LedgerRef, counterAccountID string) error {
	if !status.Posted() {
		return &domain.InvalidArgumentError{Message: fmt.Sprintf("status %q is not a posted status", status)}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = ?, ledger_trans_type = ?, ledger_trans_no = ?, counter_account_id = ?
		WHERE id = ?
	`, string(status), ref.TransType, ref.TransNo, counterAccountID, id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %d posted: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "transaction", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}

// ToggleDirection flips the direction flag of one staged transaction. Allowed
// at every lifecycle stage: the flag is a correction aid, not part of the
// frozen matching key.
func (r *Repository) ToggleDirection(ctx context.Context, id int64) (*domain.Transaction, error) {
	txn, err := r.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txn.ToggleDirection(); err != nil {
		return nil, err
	}

	if err := r.updateTransaction(ctx, r.db, txn); err != nil {
		return nil, err
	}

	r.logger.Info().Int64("id", id).Str("direction", string(txn.Direction)).
		Msg("direction flag toggled")
	return txn, nil
}

// ResetByLedgerRef reverts every staged transaction posted under the given
// ledger reference back to Unprocessed. Called when the ledger transaction is
// voided so the records become matchable again.
func (r *Repository) ResetByLedgerRef(ctx context.Context, ref domain.LedgerRef) (int64, error) {
	if ref.IsZero() {
		return 0, &domain.InvalidArgumentError{Message: "ledger reference cannot be empty"}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, ledger_trans_type = '', ledger_trans_no = 0, counter_account_id = ''
		WHERE ledger_trans_type = ? AND ledger_trans_no = ?
	`, string(domain.StatusUnprocessed), ref.TransType, ref.TransNo)
	if err != nil {
		return 0, fmt.Errorf("failed to reset transactions for %s/%d: %w", ref.TransType, ref.TransNo, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	r.logger.Info().Str("trans_type", ref.TransType).Int64("trans_no", ref.TransNo).
		Int64("reset", n).Msg("staged records reset after ledger void")
	return n, nil
}
