package vendors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVendors = `
vendors:
  - name: "Acme Payroll"
    pattern: "acme payroll"
    match_type: "contains"
    priority: 100
    type: "customer"
    category: "salary"
    partner_id: "CUST-042"
    account_fragment: "99887766"

  - name: "Acme Anything"
    pattern: "acme"
    match_type: "contains"
    priority: 10
    type: "supplier"
    category: "misc"
    partner_id: "SUPP-001"

  - name: "Exact Utility"
    pattern: "city power"
    match_type: "exact"
    priority: 50
    type: "supplier"
    category: "utilities"
    partner_id: "SUPP-017"
`

func TestNewDirectory_Valid(t *testing.T) {
	dir, err := NewDirectory([]byte(testVendors))
	require.NoError(t, err)

	got := dir.Vendors()
	require.Len(t, got, 3)
	assert.Equal(t, "Acme Payroll", got[0].Name, "highest priority first")
	assert.Equal(t, "Acme Anything", got[2].Name)
}

func TestNewDirectory_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad yaml",
			yaml:    "vendors: [",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "empty pattern",
			yaml:    "vendors:\n  - name: x\n    pattern: \"  \"\n    match_type: contains\n    type: supplier\n",
			wantErr: "pattern cannot be empty",
		},
		{
			name:    "bad match type",
			yaml:    "vendors:\n  - name: x\n    pattern: p\n    match_type: regex\n    type: supplier\n",
			wantErr: "invalid match_type",
		},
		{
			name:    "bad partner type",
			yaml:    "vendors:\n  - name: x\n    pattern: p\n    match_type: contains\n    type: alien\n",
			wantErr: "invalid type",
		},
		{
			name:    "priority out of range",
			yaml:    "vendors:\n  - name: x\n    pattern: p\n    match_type: contains\n    type: supplier\n    priority: 1000\n",
			wantErr: "priority must be in [0,999]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirectory([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDirectory_Match(t *testing.T) {
	dir, err := NewDirectory([]byte(testVendors))
	require.NoError(t, err)

	tests := []struct {
		name       string
		descriptor string
		wantVendor string
		wantOK     bool
	}{
		{
			name:       "priority wins over file order",
			descriptor: "ACME PAYROLL FEB 2026",
			wantVendor: "Acme Payroll",
			wantOK:     true,
		},
		{
			name:       "lower priority catch-all",
			descriptor: "acme hardware",
			wantVendor: "Acme Anything",
			wantOK:     true,
		},
		{
			name:       "exact match requires full descriptor",
			descriptor: "city power and light",
			wantOK:     false,
		},
		{
			name:       "exact match hits",
			descriptor: "  City Power  ",
			wantVendor: "Exact Utility",
			wantOK:     true,
		},
		{
			name:       "no match",
			descriptor: "unknown shop",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := dir.Match(tt.descriptor)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.NotNil(t, m)
				assert.Equal(t, tt.wantVendor, m.VendorName)
			}
		})
	}
}

func TestDirectory_LookupPartnerByAccountFragment(t *testing.T) {
	dir, err := NewDirectory([]byte(testVendors))
	require.NoError(t, err)

	id, ok := dir.LookupPartnerByAccountFragment(PartnerTypeCustomer, "887766")
	require.True(t, ok)
	assert.Equal(t, "CUST-042", id)

	// Fully qualified number containing the known fragment resolves too.
	id, ok = dir.LookupPartnerByAccountFragment(PartnerTypeCustomer, "AU-99887766-001")
	require.True(t, ok)
	assert.Equal(t, "CUST-042", id)

	_, ok = dir.LookupPartnerByAccountFragment(PartnerTypeSupplier, "887766")
	assert.False(t, ok, "type scoping excludes the customer entry")

	_, ok = dir.LookupPartnerByAccountFragment(PartnerTypeCustomer, "  ")
	assert.False(t, ok)
}

func TestLoadEmbedded(t *testing.T) {
	dir, err := LoadEmbedded()
	require.NoError(t, err)

	m, ok := dir.Match("INTEREST PAYMENT")
	require.True(t, ok)
	assert.Equal(t, "interest", m.Category)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vendors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testVendors), 0644))

	dir, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, dir.Vendors(), 3)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read vendors file")
}
