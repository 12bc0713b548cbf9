// Package registry selects the dialect parser for a given export file.
package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parsers/ofx"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/parsers/telex"
)

// Registry holds all registered dialect parsers.
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with all built-in dialect parsers. Order matters:
// more specific header checks run before the permissive delimited-text check.
func New() *Registry {
	return &Registry{
		parsers: []parser.Parser{
			ofx.NewParser(),
			telex.NewParser(),
			csv.NewParser(),
		},
	}
}

// Register adds a custom parser (for extensibility).
func (r *Registry) Register(p parser.Parser) {
	r.parsers = append(r.parsers, p)
}

// FindParser returns the parser for this file.
// Reads the first 512 bytes for format detection via header inspection, which
// is sufficient to spot the OFX header block, the telex :20:/:25: tags, and a
// delimited header row.
func (r *Registry) FindParser(path string) (parser.Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// EOF is OK - minimal files may be shorter than 512 bytes. Parsers
	// receive whatever was read and handle variable header sizes.
	header = header[:n]

	for _, p := range r.parsers {
		if p.CanParse(path, header) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("no parser found for file: %s", path)
}

// ListParsers returns the names of all registered parsers.
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
