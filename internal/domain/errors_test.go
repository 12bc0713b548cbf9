package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "malformed input with line",
			err:  &MalformedInputError{Dialect: "telex", Line: 12, Message: "missing :61: amount"},
			want: "malformed telex input at line 12: missing :61: amount",
		},
		{
			name: "malformed input with offset",
			err:  &MalformedInputError{Dialect: "ofx", Offset: 4096, Message: "truncated tag"},
			want: "malformed ofx input at offset 4096: truncated tag",
		},
		{
			name: "validation",
			err:  &ValidationError{Entity: "transaction", ID: "FIT-9", Field: "amount", Message: "missing"},
			want: "invalid transaction FIT-9 [amount]: missing",
		},
		{
			name: "logic",
			err:  &LogicError{Op: "update transaction 4", Message: "reference code is immutable once posted"},
			want: "update transaction 4: reference code is immutable once posted",
		},
		{
			name: "not found",
			err:  &NotFoundError{Kind: "account", Key: "1061"},
			want: "account not found: 1061",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestExternalSystemError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &ExternalSystemError{System: "ledger", Op: "CreateTransfer", Err: cause}

	assert.Equal(t, "ledger CreateTransfer failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("posting aborted: %w", err)
	var ext *ExternalSystemError
	assert.ErrorAs(t, wrapped, &ext)
	assert.Equal(t, "ledger", ext.System)
}
