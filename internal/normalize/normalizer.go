// Package normalize converts raw parsed statements into the canonical staging
// model: identity defaults are filled in, direction flags are corrected for
// known misclassifications, and counterparty data is prefilled from the
// vendor directory.
package normalize

import (
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/vendors"
)

// Normalizer converts RawStatement trees into domain types.
type Normalizer struct {
	vendors *vendors.Directory
}

// New creates a normalizer. The vendor directory is optional; without it,
// counterparty prefill is skipped.
func New(dir *vendors.Directory) *Normalizer {
	return &Normalizer{vendors: dir}
}

// Result is one normalized statement with its staged transactions.
// Transactions are not yet persisted; StatementID is linked during staging.
type Result struct {
	Statement    *domain.Statement
	Transactions []*domain.Transaction
}

// Normalize converts a raw statement into the canonical model. Identity
// fields the file omitted are filled from the import context defaults; a
// statement that still lacks bank or account identity fails with
// *domain.ValidationError.
func (n *Normalizer) Normalize(raw *parser.RawStatement, ictx *parser.ImportContext) (*Result, error) {
	if raw == nil {
		return nil, fmt.Errorf("raw statement cannot be nil")
	}
	if ictx == nil {
		return nil, fmt.Errorf("import context cannot be nil")
	}

	bank := raw.Bank
	if bank == "" {
		bank = ictx.DefaultBank()
	}
	accountID := raw.AccountID
	if accountID == "" {
		accountID = ictx.DefaultAccountID()
	}
	currency := raw.Currency
	if currency == "" {
		currency = ictx.DefaultCurrency()
	}

	if bank == "" {
		return nil, &domain.ValidationError{
			Entity: "statement", ID: raw.ExternalID, Field: "bank",
			Message: "file carries no bank identifier and no default was supplied",
		}
	}
	if accountID == "" {
		return nil, &domain.ValidationError{
			Entity: "statement", ID: raw.ExternalID, Field: "accountId",
			Message: "file carries no account identifier and no default was supplied",
		}
	}

	stmt, err := domain.NewStatement(bank, accountID, currency, raw.ExternalID, raw.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize statement: %w", err)
	}
	stmt.Sequence = raw.Sequence
	stmt.StartBalance = raw.StartBalance
	stmt.EndBalance = raw.EndBalance

	result := &Result{Statement: stmt}
	for i := range raw.Transactions {
		txn, err := n.normalizeTransaction(&raw.Transactions[i], stmt)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize transaction %d: %w", i, err)
		}
		result.Transactions = append(result.Transactions, txn)
	}

	return result, nil
}

func (n *Normalizer) normalizeTransaction(raw *parser.RawTransaction, stmt *domain.Statement) (*domain.Transaction, error) {
	dir := correctDirection(raw)

	txn, err := domain.NewTransaction(raw.ValueDate(), stmt.AccountID, dir, raw.Magnitude(), raw.Payee())
	if err != nil {
		return nil, err
	}
	txn.EntryDate = raw.EntryDate()
	if txn.EntryDate.IsZero() {
		txn.EntryDate = txn.ValueDate
	}
	txn.Memo = raw.Memo()
	txn.ExternalID = raw.ExternalID()
	txn.ReferenceCode = raw.Reference()
	txn.Merchant = DeriveDescriptor(raw.Payee())

	if n.vendors != nil && txn.Merchant != "" {
		if m, ok := n.vendors.Match(txn.Merchant); ok {
			txn.Category = m.Category
			txn.PartnerID = m.PartnerID
		}
	}

	return txn, nil
}

// correctDirection applies the interest misclassification heuristic. Some
// institutions emit interest earned with a debit type code; for records the
// parser flagged as ambiguous, a payee that reads as plain interest (no fee or
// charge wording) is treated as money in.
func correctDirection(raw *parser.RawTransaction) domain.Direction {
	dir := raw.Direction()
	if !raw.Ambiguous() {
		return dir
	}

	payee := strings.ToLower(raw.Payee())
	if !strings.Contains(payee, "interest") {
		return dir
	}
	if strings.Contains(payee, "charge") || strings.Contains(payee, "fee") || strings.Contains(payee, "debit") {
		return domain.DirectionDebit
	}
	return domain.DirectionCredit
}
