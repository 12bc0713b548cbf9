package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
)

var (
	acctOps = &ledger.BankAccount{ID: "acc-ops", Number: "1061", Name: "Operating"}
	acctSav = &ledger.BankAccount{ID: "acc-sav", Number: "1062", Name: "Savings"}
)

func staged(t *testing.T, id int64, account string, dir domain.Direction, amount float64) *domain.Transaction {
	t.Helper()
	txn, err := domain.NewTransaction(time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
		account, dir, amount, "TRANSFER")
	require.NoError(t, err)
	txn.ID = id
	return txn
}

func TestAnalyze(t *testing.T) {
	debit := staged(t, 1, "1061", domain.DirectionDebit, 500.00)
	debit.Title = "TRANSFER TO 1062"
	credit := staged(t, 2, "1062", domain.DirectionCredit, 500.00)
	credit.Title = "TRANSFER FROM 1061"

	req, err := Analyze(debit, credit, acctOps, acctSav)
	require.NoError(t, err)

	assert.Equal(t, "acc-ops", req.FromAccountID, "the debit side is the source")
	assert.Equal(t, "acc-sav", req.ToAccountID)
	assert.Equal(t, int64(1), req.FromTransactionID)
	assert.Equal(t, int64(2), req.ToTransactionID)
	assert.Equal(t, 500.00, req.Amount)
	assert.Equal(t, debit.ValueDate, req.Date)
	assert.Equal(t, "TRANSFER TO 1062 / TRANSFER FROM 1061", req.Memo)
}

func TestAnalyze_OrderIndependent(t *testing.T) {
	debit := staged(t, 1, "1061", domain.DirectionDebit, 500.00)
	credit := staged(t, 2, "1062", domain.DirectionCredit, 500.00)

	forward, err := Analyze(debit, credit, acctOps, acctSav)
	require.NoError(t, err)
	reversed, err := Analyze(credit, debit, acctSav, acctOps)
	require.NoError(t, err)

	assert.Equal(t, forward, reversed)
}

func TestAnalyze_Invalid(t *testing.T) {
	debit := staged(t, 1, "1061", domain.DirectionDebit, 500.00)
	credit := staged(t, 2, "1062", domain.DirectionCredit, 500.00)

	tests := []struct {
		name    string
		a, b    *domain.Transaction
		acctA   *ledger.BankAccount
		acctB   *ledger.BankAccount
		wantMsg string
	}{
		{
			name: "nil transaction", a: nil, b: credit,
			acctA: acctOps, acctB: acctSav,
			wantMsg: "both transactions are required",
		},
		{
			name: "unresolved account", a: debit, b: credit,
			acctA: acctOps, acctB: nil,
			wantMsg: "bank accounts must be resolved",
		},
		{
			name: "two debits", a: debit, b: staged(t, 3, "1062", domain.DirectionDebit, 500.00),
			acctA: acctOps, acctB: acctSav,
			wantMsg: "both debits",
		},
		{
			name: "amount mismatch", a: debit, b: staged(t, 3, "1062", domain.DirectionCredit, 500.10),
			acctA: acctOps, acctB: acctSav,
			wantMsg: "amount mismatch",
		},
		{
			name: "same account", a: debit, b: credit,
			acctA: acctOps, acctB: acctOps,
			wantMsg: "two distinct accounts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(tt.a, tt.b, tt.acctA, tt.acctB)
			var invalid *domain.InvalidArgumentError
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, invalid.Message, tt.wantMsg)
		})
	}
}

func TestAnalyze_InvalidDirectionFlag(t *testing.T) {
	bad := staged(t, 1, "1061", domain.DirectionDebit, 500.00)
	bad.Direction = "sideways"
	credit := staged(t, 2, "1062", domain.DirectionCredit, 500.00)

	_, err := Analyze(bad, credit, acctOps, acctSav)
	var invalid *domain.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Message, "valid direction flag")
}
