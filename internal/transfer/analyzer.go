// Package transfer infers transfer direction between two staged bank records
// and orchestrates the atomic ledger post.
package transfer

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
)

// Analyze infers the direction of a transfer between two staged transactions
// and builds the fully resolved request for the ledger post.
//
// The record flagged as a debit names the source account: money leaves where
// the bank says it left. The pairing is order-independent; passing (a, b) or
// (b, a) yields the same request. Analysis is pure and touches no storage.
func Analyze(a, b *domain.Transaction, acctA, acctB *ledger.BankAccount) (*domain.TransferRequest, error) {
	if a == nil || b == nil {
		return nil, &domain.InvalidArgumentError{Message: "both transactions are required"}
	}
	if acctA == nil || acctB == nil {
		return nil, &domain.InvalidArgumentError{Message: "both bank accounts must be resolved before analysis"}
	}
	if !domain.ValidateDirection(a.Direction) || !domain.ValidateDirection(b.Direction) {
		return nil, &domain.InvalidArgumentError{Message: "both transactions need a valid direction flag"}
	}
	if a.Direction == b.Direction {
		return nil, &domain.InvalidArgumentError{
			Message: fmt.Sprintf("transactions %d and %d are both %ss; a transfer needs one of each",
				a.ID, b.ID, a.Direction),
		}
	}
	if a.Amount <= 0 || b.Amount <= 0 {
		return nil, &domain.InvalidArgumentError{Message: "transfer amounts must be positive"}
	}
	if !domain.SameAmount(a.Amount, b.Amount) {
		return nil, &domain.InvalidArgumentError{
			Message: fmt.Sprintf("amount mismatch: %.2f vs %.2f", a.Amount, b.Amount),
		}
	}
	if acctA.ID == acctB.ID {
		return nil, &domain.InvalidArgumentError{Message: "a transfer needs two distinct accounts"}
	}

	from, to := a, b
	fromAcct, toAcct := acctA, acctB
	if a.Direction == domain.DirectionCredit {
		from, to = b, a
		fromAcct, toAcct = acctB, acctA
	}

	return &domain.TransferRequest{
		FromAccountID:     fromAcct.ID,
		ToAccountID:       toAcct.ID,
		FromTransactionID: from.ID,
		ToTransactionID:   to.ID,
		Amount:            from.Amount,
		Date:              from.ValueDate,
		Memo:              fmt.Sprintf("%s / %s", from.Title, to.Title),
	}, nil
}
