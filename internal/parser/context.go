package parser

import (
	"fmt"
	"time"
)

// ImportContext carries the caller-supplied defaults and provenance for one
// file import. It replaces any ambient request/session state: every value a
// parser or normalizer needs is passed in here explicitly.
//
// DefaultBank, DefaultAccountID, and DefaultCurrency apply only when the file
// itself omits the corresponding identity field.
type ImportContext struct {
	filePath         string
	defaultBank      string
	defaultAccountID string
	defaultCurrency  string
	detectedAt       time.Time
}

// NewImportContext creates a validated import context.
func NewImportContext(filePath string, detectedAt time.Time) (*ImportContext, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &ImportContext{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the path of the file being imported.
func (c *ImportContext) FilePath() string { return c.filePath }

// DefaultBank returns the fallback bank identifier, or empty when none was supplied.
func (c *ImportContext) DefaultBank() string { return c.defaultBank }

// DefaultAccountID returns the fallback account identifier.
func (c *ImportContext) DefaultAccountID() string { return c.defaultAccountID }

// DefaultCurrency returns the fallback currency code.
func (c *ImportContext) DefaultCurrency() string { return c.defaultCurrency }

// DetectedAt returns when the file was discovered.
func (c *ImportContext) DetectedAt() time.Time { return c.detectedAt }

// SetDefaultBank sets the fallback bank identifier.
func (c *ImportContext) SetDefaultBank(bank string) { c.defaultBank = bank }

// SetDefaultAccountID sets the fallback account identifier.
func (c *ImportContext) SetDefaultAccountID(id string) { c.defaultAccountID = id }

// SetDefaultCurrency sets the fallback currency code.
func (c *ImportContext) SetDefaultCurrency(cur string) { c.defaultCurrency = cur }
