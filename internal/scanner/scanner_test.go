package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))
	return path
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "first_national", "1061", "feb.ofx")
	writeFile(t, root, "first_national", "1062", "feb.sta")
	writeFile(t, root, "loose.csv")
	writeFile(t, root, "first_national", "1061", "notes.pdf") // ignored

	results, err := New(root).Scan()
	require.NoError(t, err)
	require.Len(t, results, 3)

	sort.Slice(results, func(i, j int) bool {
		return results[i].FilePath() < results[j].FilePath()
	})

	first := results[0]
	assert.Equal(t, "First National", first.DefaultBank())
	assert.Equal(t, "1061", first.DefaultAccountID())
	assert.Equal(t, "feb.ofx", filepath.Base(first.FilePath()))

	second := results[1]
	assert.Equal(t, "1062", second.DefaultAccountID())

	loose := results[2]
	assert.Equal(t, "loose.csv", filepath.Base(loose.FilePath()))
	assert.Empty(t, loose.DefaultBank(), "files under root get no layout defaults")
	assert.Empty(t, loose.DefaultAccountID())
}

func TestScanner_Scan_BankOnlyLevel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "anz", "feb.mt940")

	results, err := New(root).Scan()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Anz", results[0].DefaultBank())
	assert.Empty(t, results[0].DefaultAccountID())
}

func TestScanner_Scan_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent")).Scan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan failed")
}

func TestScanner_Scan_EmptyTree(t *testing.T) {
	results, err := New(t.TempDir()).Scan()
	require.NoError(t, err)
	assert.Empty(t, results)
}
