// Package domain defines the canonical staging model for bank export records.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Direction indicates whether money leaves (Debit) or arrives (Credit) at the
// account named on the statement. This is distinct from the ledger's signed
// amount convention: staged amounts are always non-negative magnitudes and the
// sign is carried here.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

var directionLabels = map[Direction]string{
	DirectionDebit:  "Withdrawal",
	DirectionCredit: "Deposit",
}

// ValidateDirection checks if the direction is one of the two valid values.
func ValidateDirection(d Direction) bool {
	_, ok := directionLabels[d]
	return ok
}

// Label returns the human-readable label for the direction.
func (d Direction) Label() string {
	return directionLabels[d]
}

// Opposite returns the flipped direction. Calling Opposite on an invalid
// direction returns the zero value; callers should validate first.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionDebit:
		return DirectionCredit
	case DirectionCredit:
		return DirectionDebit
	default:
		return ""
	}
}

// Status tracks a staged transaction through the reconciliation lifecycle.
type Status string

const (
	// StatusUnprocessed is the initial state after import.
	StatusUnprocessed Status = "unprocessed"
	// StatusMatched means the record was reconciled against an existing ledger entry.
	StatusMatched Status = "matched"
	// StatusCreated means a ledger transaction was posted from this record.
	StatusCreated Status = "created"
	// StatusFlagged marks records set aside for manual review.
	StatusFlagged Status = "flagged"
)

var validStatuses = map[Status]struct{}{
	StatusUnprocessed: {}, StatusMatched: {}, StatusCreated: {}, StatusFlagged: {},
}

// ValidateStatus checks if the status is valid.
func ValidateStatus(s Status) bool {
	_, ok := validStatuses[s]
	return ok
}

// Posted reports whether the record has been reconciled or posted to the
// ledger. Posted records have an immutable amount magnitude and matching key.
func (s Status) Posted() bool {
	return s == StatusMatched || s == StatusCreated
}

// LedgerRef identifies a transaction in the external ledger system.
type LedgerRef struct {
	TransType string `json:"transType"`
	TransNo   int64  `json:"transNo"`
}

// IsZero reports whether the reference is unset.
func (r LedgerRef) IsZero() bool {
	return r.TransType == "" && r.TransNo == 0
}

// Statement is one bank statement staged from an export file.
// Identity key: (Bank, ExternalID). Balances are updated on re-import;
// everything else is immutable after insert.
type Statement struct {
	ID           int64     `json:"id"`
	Bank         string    `json:"bank"`
	AccountID    string    `json:"accountId"`
	Currency     string    `json:"currency"`
	Date         time.Time `json:"date"`
	Sequence     string    `json:"sequence"`
	ExternalID   string    `json:"externalId"`
	StartBalance float64   `json:"startBalance"`
	EndBalance   float64   `json:"endBalance"`
}

// NewStatement creates a validated statement.
func NewStatement(bank, accountID, currency, externalID string, date time.Time) (*Statement, error) {
	if bank == "" {
		return nil, fmt.Errorf("statement bank cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("statement account ID cannot be empty")
	}
	if externalID == "" {
		return nil, fmt.Errorf("statement external ID cannot be empty")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("statement date cannot be zero")
	}

	return &Statement{
		Bank:       bank,
		AccountID:  accountID,
		Currency:   currency,
		Date:       date,
		ExternalID: externalID,
	}, nil
}

// Transaction is one staged bank export record awaiting reconciliation.
//
// Amount is always a non-negative magnitude; Direction carries the sign.
// Once the record is posted (Status.Posted), the magnitude and the matching
// key (ReferenceCode, AccountID, dates) become immutable. The direction flag
// and descriptive fields may still be corrected afterwards.
type Transaction struct {
	ID          int64     `json:"id"`
	StatementID int64     `json:"statementId"`
	ValueDate   time.Time `json:"valueDate"`
	EntryDate   time.Time `json:"entryDate"`
	AccountID   string    `json:"accountId"`
	AccountName string    `json:"accountName"`
	Direction   Direction `json:"direction"`
	// Label is the descriptive name of the direction flag as shown to users
	// ("Withdrawal"/"Deposit"). Toggled together with Direction.
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	Title    string  `json:"title"`
	Memo     string  `json:"memo"`
	Merchant string  `json:"merchant"`
	Category string  `json:"category"`
	// PartnerID is an advisory hint from the vendor directory, pre-filled when
	// the merchant descriptor matches a known partner. Never part of the dedup
	// key.
	PartnerID string `json:"partnerId"`
	// ExternalID is the issuer-assigned unique id from the source file.
	// May be empty; some institutions reuse ids across accounts.
	ExternalID string `json:"externalId"`
	// ReferenceCode is the account-scoped reference used as the fallback half
	// of the dedup key when ExternalID is absent or collides.
	ReferenceCode string    `json:"referenceCode"`
	Status        Status    `json:"status"`
	Ledger        LedgerRef `json:"ledger"`
	// CounterAccountID cross-references the other side of a posted transfer.
	CounterAccountID string `json:"counterAccountId"`
}

// NewTransaction creates a validated staged transaction in the Unprocessed state.
func NewTransaction(valueDate time.Time, accountID string, dir Direction, amount float64, title string) (*Transaction, error) {
	if valueDate.IsZero() {
		return nil, fmt.Errorf("transaction value date cannot be zero")
	}
	if accountID == "" {
		return nil, fmt.Errorf("transaction account ID cannot be empty")
	}
	if !ValidateDirection(dir) {
		return nil, fmt.Errorf("invalid direction: %q", dir)
	}
	if amount < 0 {
		return nil, fmt.Errorf("amount must be a non-negative magnitude, got %f", amount)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("transaction title cannot be empty")
	}

	return &Transaction{
		ValueDate: valueDate,
		EntryDate: valueDate,
		AccountID: accountID,
		Direction: dir,
		Label:     dir.Label(),
		Amount:    amount,
		Title:     title,
		Status:    StatusUnprocessed,
	}, nil
}

// SignedAmount returns the amount with the staging sign convention applied:
// negative for debits (money out), positive for credits (money in).
func (t *Transaction) SignedAmount() float64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// ToggleDirection flips the direction flag and its descriptive label.
// Fails when the current flag is not one of the two valid values.
func (t *Transaction) ToggleDirection() error {
	if !ValidateDirection(t.Direction) {
		return fmt.Errorf("cannot toggle invalid direction %q on transaction %d", t.Direction, t.ID)
	}
	t.Direction = t.Direction.Opposite()
	t.Label = t.Direction.Label()
	return nil
}

// DedupKey returns the primary uniqueness key (account external id scope).
// Empty when the issuer assigned no external id; callers then fall back to
// ReferenceKey.
func (t *Transaction) DedupKey() string {
	if t.ExternalID == "" {
		return ""
	}
	return fmt.Sprintf("%s|%s", t.AccountID, t.ExternalID)
}

// ReferenceKey returns the fallback uniqueness key:
// (reference code, account identifier, amount magnitude).
func (t *Transaction) ReferenceKey() string {
	return fmt.Sprintf("%s|%s|%.2f", t.ReferenceCode, t.AccountID, t.Amount)
}

// AmountEpsilon is the tolerance for comparing staged magnitudes. Bank exports
// carry at most two decimal places.
const AmountEpsilon = 0.005

// SameAmount reports whether two magnitudes are equal within AmountEpsilon.
func SameAmount(a, b float64) bool {
	return math.Abs(a-b) < AmountEpsilon
}

// MatchCandidate is an ephemeral scored ledger-entry reference produced by the
// matching engine. It lives only for the duration of one matching call and is
// never persisted.
type MatchCandidate struct {
	Ledger        LedgerRef
	Score         float64
	AmountDelta   float64
	DateDeltaDays int
	NameDistance  int
	// IsInvoice marks candidates that represent an open invoice the staged
	// transaction appears to settle; callers prefer posting those as invoice
	// payments rather than generic matches.
	IsInvoice bool
}

// TransferRequest is the ephemeral, fully resolved input to the ledger's
// create-transfer call. Built by the direction analyzer, consumed immediately
// by the orchestrator, never persisted.
type TransferRequest struct {
	FromAccountID     string
	ToAccountID       string
	FromTransactionID int64
	ToTransactionID   int64
	Amount            float64
	Date              time.Time
	Memo              string
}
