package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlpha    = regexp.MustCompile(`[^a-z ]+`)
	multiSpace  = regexp.MustCompile(` +`)
	noisePrefix = regexp.MustCompile(`^(pos |eftpos |card |visa |dd |so )`)
)

// descriptorWordLimit caps the counterparty descriptor at the leading words of
// the cleaned payee string. Bank payee lines front-load the merchant name and
// trail off into branch codes and city names.
const descriptorWordLimit = 4

// DeriveDescriptor reduces a raw payee line to a stable counterparty
// descriptor used for vendor matching and display.
// Examples: "POS 4321 CAFÉ NERO LONDON GB" → "cafe nero london gb",
// "ACME PAYROLL /REF 2026-02" → "acme payroll ref".
//
// The descriptor is a display and matching aid only; it is never used as a
// uniqueness key.
func DeriveDescriptor(payee string) string {
	if payee == "" {
		return ""
	}

	// Strip diacritics so "Café" and "Cafe" derive the same descriptor.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	cleaned, _, err := transform.String(t, payee)
	if err != nil {
		cleaned = payee
	}

	cleaned = strings.ToLower(cleaned)
	cleaned = nonAlpha.ReplaceAllString(cleaned, " ")
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = noisePrefix.ReplaceAllString(cleaned, "")

	words := strings.Fields(cleaned)
	if len(words) > descriptorWordLimit {
		words = words[:descriptorWordLimit]
	}
	return strings.Join(words, " ")
}
