// Package scanner walks a directory tree and finds bank export files,
// deriving import defaults from the directory layout.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
)

// Scanner walks a directory tree and finds export files.
type Scanner struct {
	rootDir string
}

// New creates a scanner for the given root directory.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// Scan walks the tree and builds one import context per export file found.
// Layout convention: {root}/{bank}/{account}/file.ext, with both directory
// levels optional. Files directly under root get no layout defaults; the
// caller's flag defaults still apply afterwards.
func (s *Scanner) Scan() ([]*parser.ImportContext, error) {
	rootDir := s.expandHome(s.rootDir)

	var results []*parser.ImportContext
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !s.isExportFile(path) {
			return nil
		}

		ictx, err := parser.NewImportContext(path, time.Now())
		if err != nil {
			return err
		}
		s.applyLayoutDefaults(ictx, path, rootDir)
		results = append(results, ictx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isExportFile checks for the known export extensions.
func (s *Scanner) isExportFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx", ".csv", ".sta", ".mt940", ".txt":
		return true
	}
	return false
}

// applyLayoutDefaults reads bank and account from the directory levels
// between root and the file.
func (s *Scanner) applyLayoutDefaults(ictx *parser.ImportContext, filePath, rootDir string) {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		return
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	if len(parts) >= 2 {
		ictx.SetDefaultBank(normalizeBankName(parts[0]))
	}
	if len(parts) >= 3 {
		ictx.SetDefaultAccountID(parts[1])
	}
}

// normalizeBankName converts a directory name to a readable bank name.
// "first_national" -> "First National"
func normalizeBankName(dirName string) string {
	words := strings.Split(strings.ReplaceAll(dirName, "_", " "), " ")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// expandHome expands ~ to the home directory.
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
