package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/parser"
)

func TestImportContexts_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feb.ofx")
	require.NoError(t, os.WriteFile(path, []byte("OFXHEADER:100\n"), 0644))

	contexts, err := importContexts(path)
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	assert.Equal(t, path, contexts[0].FilePath())
	assert.Empty(t, contexts[0].DefaultBank(), "a bare file carries no layout defaults")
}

func TestImportContexts_Directory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "anz_bank", "1061")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feb.csv"), []byte("Date,Amount\n"), 0644))

	contexts, err := importContexts(root)
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	assert.Equal(t, "Anz Bank", contexts[0].DefaultBank())
	assert.Equal(t, "1061", contexts[0].DefaultAccountID())
}

func TestImportContexts_MissingPath(t *testing.T) {
	_, err := importContexts(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read import path")
}

func TestLoadImportDefaults(t *testing.T) {
	old := []string{*defaultsFile, *defaultBank, *defaultAcct, *defaultCur}
	t.Cleanup(func() {
		*defaultsFile, *defaultBank, *defaultAcct, *defaultCur = old[0], old[1], old[2], old[3]
	})

	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bank: ANZ\naccount: \"1061\"\ncurrency: USD\n"), 0644))
	*defaultsFile = path
	*defaultBank = "Kiwibank"
	*defaultAcct = ""
	*defaultCur = ""

	require.NoError(t, loadImportDefaults())
	assert.Equal(t, "Kiwibank", *defaultBank, "explicit flags win over the defaults file")
	assert.Equal(t, "1061", *defaultAcct)
	assert.Equal(t, "USD", *defaultCur)

	*defaultsFile = filepath.Join(t.TempDir(), "nope.yaml")
	require.Error(t, loadImportDefaults())
}

func TestApplyFlagDefaults(t *testing.T) {
	old := []string{*defaultBank, *defaultAcct, *defaultCur}
	t.Cleanup(func() {
		*defaultBank, *defaultAcct, *defaultCur = old[0], old[1], old[2]
	})
	*defaultBank = "ANZ"
	*defaultAcct = "1061"
	*defaultCur = "USD"

	t.Run("fills empty defaults", func(t *testing.T) {
		ictx, err := parser.NewImportContext("feb.ofx", time.Now())
		require.NoError(t, err)

		applyFlagDefaults(ictx)
		assert.Equal(t, "ANZ", ictx.DefaultBank())
		assert.Equal(t, "1061", ictx.DefaultAccountID())
		assert.Equal(t, "USD", ictx.DefaultCurrency())
	})

	t.Run("layout defaults win over flags", func(t *testing.T) {
		ictx, err := parser.NewImportContext("feb.ofx", time.Now())
		require.NoError(t, err)
		ictx.SetDefaultBank("Kiwibank")
		ictx.SetDefaultAccountID("9999")

		applyFlagDefaults(ictx)
		assert.Equal(t, "Kiwibank", ictx.DefaultBank())
		assert.Equal(t, "9999", ictx.DefaultAccountID())
		assert.Equal(t, "USD", ictx.DefaultCurrency())
	})
}
