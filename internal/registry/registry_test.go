package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRegistry_FindParser(t *testing.T) {
	tmpDir := t.TempDir()
	reg := New()

	tests := []struct {
		name     string
		file     string
		content  string
		wantName string
		wantErr  bool
	}{
		{
			name:     "ofx export",
			file:     "feb.ofx",
			content:  "OFXHEADER:100\nDATA:OFXSGML\n\n<OFX>",
			wantName: "ofx",
		},
		{
			name:     "telex export",
			file:     "feb.sta",
			content:  ":20:STMT-1\n:25:1061\n:60F:C260201USD1,00\n",
			wantName: "telex",
		},
		{
			name:     "delimited export",
			file:     "feb.csv",
			content:  "Date,Description,Amount\n2026-02-05,X,1.00\n",
			wantName: "csv",
		},
		{
			name:    "unsupported file",
			file:    "notes.pdf",
			content: "%PDF-1.4",
			wantErr: true,
		},
		{
			name:    "csv extension without header row",
			file:    "junk.csv",
			content: "just some text",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tmpDir, tt.file, tt.content)
			p, err := reg.FindParser(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "no parser found")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestRegistry_FindParser_MissingFile(t *testing.T) {
	reg := New()
	_, err := reg.FindParser(filepath.Join(t.TempDir(), "absent.ofx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestRegistry_ListParsers(t *testing.T) {
	reg := New()
	assert.Equal(t, []string{"ofx", "telex", "csv"}, reg.ListParsers())
}
