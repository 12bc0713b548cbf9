package telex

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
)

const sampleTelex = `:20:STMT-2026-042
:25:ANZBAU3M/1061
:28C:42/1
:60F:C260201USD2000,00
:61:2602050205D500,00NTRFCHK-100//BR-77
:86:TRANSFER TO 1062
internal transfer
:61:260228C3,21NINTNONREF
:86:INTEREST PAYMENT
:62F:C260228USD1503,21
-
:20:STMT-2026-043
:25:1062
:28C:43/1
:60F:C260201USD100,00
:61:260205C500,00NTRFCHK-100
:86:TRANSFER FROM 1061
:62F:C260228USD600,00
-
`

func importContext(t *testing.T, path string) *parser.ImportContext {
	t.Helper()
	ictx, err := parser.NewImportContext(path, time.Now())
	require.NoError(t, err)
	return ictx
}

func TestParser_CanParse(t *testing.T) {
	p := NewParser()

	assert.True(t, p.CanParse("feb.sta", []byte(":20:STMT-1\n:25:1061\n")))
	assert.True(t, p.CanParse("feb.mt940", []byte(":20:STMT-1\n:25:1061\n")))
	assert.False(t, p.CanParse("feb.csv", []byte(":20:STMT-1\n:25:1061\n")))
	assert.False(t, p.CanParse("feb.sta", []byte("Date,Amount\n")))
}

func TestParser_Parse(t *testing.T) {
	p := NewParser()

	statements, err := p.Parse(context.Background(), strings.NewReader(sampleTelex), importContext(t, "/in/feb.sta"))
	require.NoError(t, err)
	require.Len(t, statements, 2, "one statement per block")

	first := statements[0]
	assert.Equal(t, "STMT-2026-042", first.ExternalID)
	assert.Equal(t, "ANZBAU3M", first.Bank)
	assert.Equal(t, "1061", first.AccountID)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "42/1", first.Sequence)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), first.Date)
	assert.InDelta(t, 2000.00, first.StartBalance, 0.001)
	assert.InDelta(t, 1503.21, first.EndBalance, 0.001)
	require.Len(t, first.Transactions, 2)

	debit := first.Transactions[0]
	assert.Equal(t, domain.DirectionDebit, debit.Direction())
	assert.Equal(t, "NTRF", debit.TypeCode())
	assert.Equal(t, -500.00, debit.SignedAmount())
	assert.Equal(t, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), debit.ValueDate())
	assert.Equal(t, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), debit.EntryDate())
	assert.Equal(t, "CHK-100", debit.Reference())
	assert.Equal(t, "BR-77", debit.ExternalID(), "bank reference after // becomes the external id")
	assert.Equal(t, "TRANSFER TO 1062", debit.Payee(), "first :86: line becomes the description")
	assert.Equal(t, "internal transfer", debit.Memo(), "continuation line lands in the memo")
	assert.False(t, debit.Ambiguous())

	interest := first.Transactions[1]
	assert.Equal(t, "NINT", interest.TypeCode())
	assert.Equal(t, domain.DirectionCredit, interest.Direction())
	assert.True(t, interest.Ambiguous(), "interest stays open for correction")
	assert.Empty(t, interest.Reference(), "NONREF means no reference")

	second := statements[1]
	assert.Empty(t, second.Bank, "no bank code in :25: leaves the field for defaults")
	assert.Equal(t, "1062", second.AccountID)
}

func TestParser_Parse_ReversalMarks(t *testing.T) {
	p := NewParser()
	input := ":20:S1\n:25:1061\n:60F:C260201USD100,00\n" +
		":61:260210RC25,00NTRFREF-1\n:86:REVERSED DEPOSIT\n" +
		":62F:C260228USD75,00\n-\n"

	statements, err := p.Parse(context.Background(), strings.NewReader(input), importContext(t, "/in/rev.sta"))
	require.NoError(t, err)
	require.Len(t, statements, 1)
	require.Len(t, statements[0].Transactions, 1)

	txn := statements[0].Transactions[0]
	assert.Equal(t, domain.DirectionDebit, txn.Direction(), "RC reverses a credit, so money leaves")
	assert.Equal(t, -25.00, txn.SignedAmount())
}

func TestParser_Parse_EntryDateYearBoundary(t *testing.T) {
	p := NewParser()
	input := ":20:S1\n:25:1061\n:60F:C251231USD100,00\n" +
		":61:2601021231D10,00NTRFREF-1\n:86:LATE BOOKING\n" +
		":62F:C260102USD90,00\n-\n"

	statements, err := p.Parse(context.Background(), strings.NewReader(input), importContext(t, "/in/ny.sta"))
	require.NoError(t, err)
	txn := statements[0].Transactions[0]
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), txn.ValueDate())
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), txn.EntryDate(),
		"December entry date with a January value date belongs to the prior year")
}

func TestParser_Parse_GrammarViolations(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{
			name:    "statement line before block",
			input:   ":61:260205D500,00NTRFX\n",
			wantMsg: ":61: before :20:",
		},
		{
			name:    "unparseable statement line",
			input:   ":20:S1\n:25:1061\n:60F:C260201USD1,00\n:61:garbage\n:62F:C260228USD1,00\n-\n",
			wantMsg: "unparseable :61: line",
		},
		{
			name:    "missing balances",
			input:   ":20:S1\n:25:1061\n:61:260205D500,00NTRFX\n:86:X\n-\n",
			wantMsg: "missing balance lines",
		},
		{
			name:    "missing account",
			input:   ":20:S1\n:60F:C260201USD1,00\n:62F:C260228USD1,00\n-\n",
			wantMsg: "missing the :25: account identification",
		},
		{
			name:    "empty file",
			input:   "\n",
			wantMsg: "no statement blocks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(context.Background(), strings.NewReader(tt.input), importContext(t, "/in/bad.sta"))
			require.Error(t, err)

			var malformed *domain.MalformedInputError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "telex", malformed.Dialect)
			assert.Contains(t, malformed.Message, tt.wantMsg)
			assert.Greater(t, malformed.Line, 0, "grammar errors carry a line number")
		})
	}
}
