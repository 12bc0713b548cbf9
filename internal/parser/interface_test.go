package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
)

func TestNewRawTransaction(t *testing.T) {
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		date    time.Time
		payee   string
		amount  float64
		wantDir domain.Direction
		wantErr string
	}{
		{name: "negative amount classifies debit", date: date, payee: "GROCER", amount: -12.34, wantDir: domain.DirectionDebit},
		{name: "positive amount classifies credit", date: date, payee: "PAYROLL", amount: 1000, wantDir: domain.DirectionCredit},
		{name: "zero amount classifies credit", date: date, payee: "ADJ", amount: 0, wantDir: domain.DirectionCredit},
		{name: "zero date rejected", payee: "X", amount: 1, wantErr: "value date cannot be zero"},
		{name: "blank payee rejected", date: date, payee: "  ", amount: 1, wantErr: "payee cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := NewRawTransaction(tt.date, tt.payee, tt.amount)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDir, raw.Direction())
			assert.Equal(t, tt.date, raw.EntryDate(), "entry date defaults to value date")
			assert.False(t, raw.Ambiguous())
		})
	}
}

func TestRawTransaction_Classify(t *testing.T) {
	raw, err := NewRawTransaction(time.Now(), "INTEREST PAYMENT", -3.21)
	require.NoError(t, err)
	require.Equal(t, domain.DirectionDebit, raw.Direction())

	// The dialect's type code takes precedence over the amount sign.
	require.NoError(t, raw.Classify("INT", domain.DirectionCredit, true))
	assert.Equal(t, domain.DirectionCredit, raw.Direction())
	assert.Equal(t, "INT", raw.TypeCode())
	assert.True(t, raw.Ambiguous())

	err = raw.Classify("INT", domain.Direction("neither"), false)
	assert.ErrorContains(t, err, "invalid direction")
}

func TestRawTransaction_Magnitude(t *testing.T) {
	raw, err := NewRawTransaction(time.Now(), "FEE", -7.50)
	require.NoError(t, err)
	assert.Equal(t, 7.50, raw.Magnitude())
	assert.Equal(t, -7.50, raw.SignedAmount())
}

func TestRawTransaction_SetEntryDate(t *testing.T) {
	value := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	entry := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	raw, err := NewRawTransaction(value, "CHECK 100", -50)
	require.NoError(t, err)

	raw.SetEntryDate(entry)
	assert.Equal(t, entry, raw.EntryDate())

	// A zero entry date is ignored rather than clearing the default.
	raw.SetEntryDate(time.Time{})
	assert.Equal(t, entry, raw.EntryDate())
}

func TestNewImportContext(t *testing.T) {
	now := time.Now()

	ictx, err := NewImportContext("/statements/anz/jan.ofx", now)
	require.NoError(t, err)
	assert.Equal(t, "/statements/anz/jan.ofx", ictx.FilePath())
	assert.Empty(t, ictx.DefaultBank())

	ictx.SetDefaultBank("ANZ")
	ictx.SetDefaultAccountID("1061")
	ictx.SetDefaultCurrency("USD")
	assert.Equal(t, "ANZ", ictx.DefaultBank())
	assert.Equal(t, "1061", ictx.DefaultAccountID())
	assert.Equal(t, "USD", ictx.DefaultCurrency())

	_, err = NewImportContext("", now)
	assert.ErrorContains(t, err, "file path cannot be empty")

	_, err = NewImportContext("/x", time.Time{})
	assert.ErrorContains(t, err, "detected time cannot be zero")
}
