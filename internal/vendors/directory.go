// Package vendors provides a YAML-based directory of known counterparties
// used to prefill partner and category data on staged transactions.
package vendors

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vendors.yaml
var embeddedVendors []byte

// MatchType defines how patterns are matched against counterparty descriptors
type MatchType string

const (
	// MatchTypeExact requires the pattern to match the entire descriptor exactly
	MatchTypeExact MatchType = "exact"
	// MatchTypeContains requires the pattern to be a substring of the descriptor
	MatchTypeContains MatchType = "contains"
)

// PartnerType classifies the counterparty side of a transaction.
type PartnerType string

const (
	PartnerTypeSupplier PartnerType = "supplier"
	PartnerTypeCustomer PartnerType = "customer"
	PartnerTypeBank     PartnerType = "bank"
)

// Vendor represents a single known counterparty.
//
// Vendors should be created via YAML loading (NewDirectory, LoadEmbedded,
// LoadFromFile), which validates all invariants:
//   - Priority in range [0, 999]
//   - Pattern must not be empty after trimming
//   - MatchType must be "exact" or "contains"
//   - Type must be a valid PartnerType
//
// Fields are exported for YAML unmarshaling and testing. Direct struct
// construction bypasses validation.
type Vendor struct {
	Name            string      `yaml:"name"`
	Pattern         string      `yaml:"pattern"`
	MatchType       MatchType   `yaml:"match_type"`
	Priority        int         `yaml:"priority"`
	Type            PartnerType `yaml:"type"`
	Category        string      `yaml:"category"`
	PartnerID       string      `yaml:"partner_id"`
	AccountFragment string      `yaml:"account_fragment"`
}

// VendorSet represents the top-level YAML structure
type VendorSet struct {
	Vendors []Vendor `yaml:"vendors"`
}

// Directory performs vendor matching on counterparty descriptors
type Directory struct {
	vendors []Vendor // Sorted by priority (highest first)
}

// Match contains the result of resolving a descriptor against the directory
type Match struct {
	VendorName string
	Type       PartnerType
	Category   string
	PartnerID  string
}

// NewDirectory creates a vendor directory from YAML data
func NewDirectory(data []byte) (*Directory, error) {
	var set VendorSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse YAML vendors (check syntax, indentation, and field names): %w", err)
	}

	for i, v := range set.Vendors {
		if v.Priority < 0 || v.Priority > 999 {
			return nil, fmt.Errorf("vendor %d (%s): priority must be in [0,999], got %d", i, v.Name, v.Priority)
		}
		if strings.TrimSpace(v.Pattern) == "" {
			return nil, fmt.Errorf("vendor %d (%s): pattern cannot be empty", i, v.Name)
		}
		if v.MatchType != MatchTypeExact && v.MatchType != MatchTypeContains {
			return nil, fmt.Errorf("vendor %d (%s): invalid match_type %q (must be 'exact' or 'contains')", i, v.Name, v.MatchType)
		}
		switch v.Type {
		case PartnerTypeSupplier, PartnerTypeCustomer, PartnerTypeBank:
		default:
			return nil, fmt.Errorf("vendor %d (%s): invalid type %q (must be 'supplier', 'customer', or 'bank')", i, v.Name, v.Type)
		}
	}

	// Sort vendors by priority (highest first). Use SliceStable to preserve
	// YAML file order for vendors with equal priority (guarantees
	// deterministic matching).
	sorted := make([]Vendor, len(set.Vendors))
	copy(sorted, set.Vendors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Directory{vendors: sorted}, nil
}

// LoadEmbedded loads the embedded vendors.yaml file
func LoadEmbedded() (*Directory, error) {
	dir, err := NewDirectory(embeddedVendors)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded vendors (possible binary corruption): %w", err)
	}
	return dir, nil
}

// LoadFromFile loads the vendor directory from a filesystem path
func LoadFromFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vendors file: %w", err)
	}
	dir, err := NewDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendors from %q: %w", path, err)
	}
	return dir, nil
}

// Match resolves a counterparty descriptor to the first matching vendor.
// Vendors are evaluated in priority order (highest first). Vendors with equal
// priority are evaluated in their original YAML file order. Returns
// (nil, false) if no vendor matches.
func (d *Directory) Match(descriptor string) (*Match, bool) {
	normalized := strings.ToLower(strings.TrimSpace(descriptor))

	for _, v := range d.vendors {
		pattern := strings.ToLower(strings.TrimSpace(v.Pattern))

		matched := false
		switch v.MatchType {
		case MatchTypeExact:
			matched = normalized == pattern
		case MatchTypeContains:
			matched = strings.Contains(normalized, pattern)
		}

		if matched {
			return &Match{
				VendorName: v.Name,
				Type:       v.Type,
				Category:   v.Category,
				PartnerID:  v.PartnerID,
			}, true
		}
	}

	return nil, false
}

// LookupPartnerByAccountFragment resolves a partner id from a fragment of a
// counterparty account number, scoped to one partner type. The fragment match
// is a case-insensitive substring test in either direction, so both truncated
// and fully qualified account numbers resolve.
func (d *Directory) LookupPartnerByAccountFragment(kind PartnerType, fragment string) (string, bool) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return "", false
	}

	for _, v := range d.vendors {
		if v.Type != kind || v.AccountFragment == "" {
			continue
		}
		known := strings.ToLower(v.AccountFragment)
		if strings.Contains(known, fragment) || strings.Contains(fragment, known) {
			return v.PartnerID, true
		}
	}

	return "", false
}

// Vendors returns a copy of the directory contents for inspection.
// Entries are returned in priority order (highest first).
func (d *Directory) Vendors() []Vendor {
	result := make([]Vendor, len(d.vendors))
	copy(result, d.vendors)
	return result
}
