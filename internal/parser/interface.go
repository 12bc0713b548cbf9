// Package parser defines the strategy interface shared by all bank-file
// dialect parsers and the raw types they produce.
package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
)

// Parser is the strategy interface for all bank-file dialect parsers.
type Parser interface {
	// Name returns the parser identifier (e.g. "ofx", "csv", "telex").
	Name() string

	// CanParse checks if the parser can handle this file based on its path
	// and the first bytes of its content.
	CanParse(path string, header []byte) bool

	// Parse extracts raw statements from the file. Each statement owns its
	// transactions; one statement is produced per (balance-date, account)
	// tuple observed in the file. A structural grammar violation fails the
	// whole file with *domain.MalformedInputError.
	Parse(ctx context.Context, r io.Reader, ictx *ImportContext) ([]*RawStatement, error)
}

// RawStatement represents one parsed statement before normalization.
// Identity fields the file omits (Bank, AccountID, Currency) are left empty
// here and filled from ImportContext defaults by the normalizer.
type RawStatement struct {
	Bank         string
	AccountID    string
	Currency     string
	Date         time.Time
	Sequence     string
	ExternalID   string
	StartBalance float64
	EndBalance   float64
	Transactions []RawTransaction
}

// RawTransaction represents one transaction before normalization.
//
// SignedAmount keeps the sign exactly as the file carried it. Direction is
// the parser's classification from the dialect's own type vocabulary first,
// with sign-of-amount as the fallback. Ambiguous marks records whose type
// vocabulary is known to be mislabeled by some institutions (e.g. interest),
// letting the normalizer apply correction heuristics.
type RawTransaction struct {
	externalID   string
	valueDate    time.Time
	entryDate    time.Time
	payee        string
	memo         string
	typeCode     string
	reference    string
	signedAmount float64
	direction    domain.Direction
	ambiguous    bool
}

// ExternalID returns the issuer-assigned transaction id, if any.
func (r *RawTransaction) ExternalID() string { return r.externalID }

// ValueDate returns the value date.
func (r *RawTransaction) ValueDate() time.Time { return r.valueDate }

// EntryDate returns the booking date.
func (r *RawTransaction) EntryDate() time.Time { return r.entryDate }

// Payee returns the raw payee/merchant string.
func (r *RawTransaction) Payee() string { return r.payee }

// Memo returns the free-text memo.
func (r *RawTransaction) Memo() string { return r.memo }

// TypeCode returns the dialect's own type code (e.g. "DEBIT", "INT", "NTRF").
func (r *RawTransaction) TypeCode() string { return r.typeCode }

// Reference returns the account-scoped reference code.
func (r *RawTransaction) Reference() string { return r.reference }

// SignedAmount returns the amount with the file's original sign.
func (r *RawTransaction) SignedAmount() float64 { return r.signedAmount }

// Magnitude returns the non-negative amount magnitude.
func (r *RawTransaction) Magnitude() float64 {
	if r.signedAmount < 0 {
		return -r.signedAmount
	}
	return r.signedAmount
}

// Direction returns the parser's direction classification.
func (r *RawTransaction) Direction() domain.Direction { return r.direction }

// Ambiguous reports whether the dialect's type vocabulary was ambiguous for
// this record and the classification is a sign-heuristic fallback.
func (r *RawTransaction) Ambiguous() bool { return r.ambiguous }

// SetExternalID sets the issuer-assigned id.
func (r *RawTransaction) SetExternalID(id string) { r.externalID = id }

// SetEntryDate sets the booking date when it differs from the value date.
func (r *RawTransaction) SetEntryDate(d time.Time) {
	if !d.IsZero() {
		r.entryDate = d
	}
}

// SetMemo sets the optional memo field.
func (r *RawTransaction) SetMemo(memo string) { r.memo = memo }

// SetPayee replaces the payee string. Used by dialects whose description
// arrives on a separate line from the transaction record; empty values are
// ignored to preserve the constructor invariant.
func (r *RawTransaction) SetPayee(payee string) {
	payee = strings.TrimSpace(payee)
	if payee != "" {
		r.payee = payee
	}
}

// SetReference sets the account-scoped reference code.
func (r *RawTransaction) SetReference(ref string) { r.reference = ref }

// Classify records the direction derived from the dialect's type code.
// ambiguous marks classifications the normalizer may second-guess.
func (r *RawTransaction) Classify(typeCode string, dir domain.Direction, ambiguous bool) error {
	if !domain.ValidateDirection(dir) {
		return fmt.Errorf("invalid direction %q for type code %q", dir, typeCode)
	}
	r.typeCode = typeCode
	r.direction = dir
	r.ambiguous = ambiguous
	return nil
}

// NewRawTransaction creates a validated raw transaction. The direction is
// initialized from the amount sign; parsers should call Classify afterwards
// when the dialect carries its own type vocabulary.
func NewRawTransaction(valueDate time.Time, payee string, signedAmount float64) (*RawTransaction, error) {
	if valueDate.IsZero() {
		return nil, fmt.Errorf("transaction value date cannot be zero")
	}
	if strings.TrimSpace(payee) == "" {
		return nil, fmt.Errorf("transaction payee cannot be empty")
	}

	dir := domain.DirectionCredit
	if signedAmount < 0 {
		dir = domain.DirectionDebit
	}

	return &RawTransaction{
		valueDate:    valueDate,
		entryDate:    valueDate,
		payee:        strings.TrimSpace(payee),
		signedAmount: signedAmount,
		direction:    dir,
	}, nil
}
