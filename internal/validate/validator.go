// Package validate performs pre-staging checks on normalized statements.
package validate

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/normalize"
)

// Result contains all validation errors and warnings for one normalized
// statement. Errors block staging; warnings are reported but do not.
type Result struct {
	Errors   []domain.ValidationError
	Warnings []Warning
}

// Warning represents a non-critical validation issue
type Warning struct {
	Entity  string
	ID      string
	Field   string
	Message string
}

// Valid reports whether the statement may be staged.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) addError(entity, id, field, message string) {
	r.Errors = append(r.Errors, domain.ValidationError{
		Entity: entity, ID: id, Field: field, Message: message,
	})
}

func (r *Result) addWarning(entity, id, field, message string) {
	r.Warnings = append(r.Warnings, Warning{
		Entity: entity, ID: id, Field: field, Message: message,
	})
}

// Statement checks a normalized statement and its transactions against the
// staging invariants, including cross-record checks the per-entity
// constructors cannot see (in-batch external id collisions, balance
// consistency).
func Statement(res *normalize.Result) *Result {
	result := &Result{}
	if res == nil || res.Statement == nil {
		result.addError("statement", "", "", "nothing to validate")
		return result
	}

	stmt := res.Statement
	if stmt.Bank == "" {
		result.addError("statement", stmt.ExternalID, "bank", "bank cannot be empty")
	}
	if stmt.AccountID == "" {
		result.addError("statement", stmt.ExternalID, "accountId", "account ID cannot be empty")
	}
	if stmt.ExternalID == "" {
		result.addError("statement", stmt.ExternalID, "externalId", "external ID cannot be empty")
	}
	if stmt.Date.IsZero() {
		result.addError("statement", stmt.ExternalID, "date", "date cannot be zero")
	}
	if stmt.Currency == "" {
		result.addWarning("statement", stmt.ExternalID, "currency", "no currency; ledger default will apply")
	}

	seenExternal := make(map[string]bool)
	var net float64
	for i, txn := range res.Transactions {
		id := txn.ExternalID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}

		if !domain.ValidateDirection(txn.Direction) {
			result.addError("transaction", id, "direction", fmt.Sprintf("invalid direction %q", txn.Direction))
		}
		if txn.Amount < 0 {
			result.addError("transaction", id, "amount", "amount must be a non-negative magnitude")
		}
		if txn.ValueDate.IsZero() {
			result.addError("transaction", id, "valueDate", "value date cannot be zero")
		}
		if txn.Title == "" {
			result.addError("transaction", id, "title", "title cannot be empty")
		}
		if !domain.ValidateStatus(txn.Status) {
			result.addError("transaction", id, "status", fmt.Sprintf("invalid status %q", txn.Status))
		}
		if txn.AccountID != stmt.AccountID {
			result.addError("transaction", id, "accountId",
				fmt.Sprintf("account %q does not match statement account %q", txn.AccountID, stmt.AccountID))
		}

		if txn.ExternalID != "" {
			if seenExternal[txn.ExternalID] {
				result.addError("transaction", id, "externalId", "duplicate external ID within one statement")
			}
			seenExternal[txn.ExternalID] = true
		} else if txn.ReferenceCode == "" {
			result.addWarning("transaction", id, "externalId",
				"no external ID and no reference code; duplicate detection is limited to exact replays")
		}

		net += txn.SignedAmount()
	}

	// Balance consistency is a warning: some exports omit pending records, so
	// a mismatch is suspicious but not fatal.
	if stmt.StartBalance != 0 || stmt.EndBalance != 0 {
		if !domain.SameAmount(stmt.StartBalance+net, stmt.EndBalance) {
			result.addWarning("statement", stmt.ExternalID, "endBalance",
				fmt.Sprintf("start balance %.2f plus net movement %.2f does not reach end balance %.2f",
					stmt.StartBalance, net, stmt.EndBalance))
		}
	}

	return result
}
