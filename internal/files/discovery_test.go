package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/shared/testutil"
	"ledgerlens/internal/tabular"
)

func touch(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFindSources(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		expected []string
	}{
		{
			name:     "mixed file types",
			files:    []string{"b.csv", "a.xlsx", "notes.pdf", "c.TSV", "d.txt"},
			expected: []string{"a.xlsx", "b.csv", "c.TSV", "d.txt"},
		},
		{
			name:     "lock and hidden files",
			files:    []string{"~$ledger.xlsx", ".cache.csv", "ledger.xlsx"},
			expected: []string{"ledger.xlsx"},
		},
		{
			name:     "nothing ingestible",
			files:    []string{"readme.md", "old.xls"},
			expected: nil,
		},
		{
			name:     "empty directory",
			files:    []string{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				touch(t, dir, f, "x")
			}
			require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

			logger, _ := testutil.NewTestLogger(t)
			got, err := NewDiscovery(logger).FindSources(dir)
			require.NoError(t, err)

			var names []string
			for _, f := range got {
				names = append(names, f.Name)
				assert.Equal(t, filepath.Join(dir, f.Name), f.Path)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestFindSources_Formats(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.csv", "x")
	touch(t, dir, "b.tsv", "x")
	touch(t, dir, "c.xlsx", "x")

	got, err := NewDiscovery(nil).FindSources(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, tabular.FormatCSV, got[0].Format)
	assert.Equal(t, tabular.FormatTSV, got[1].Format)
	assert.Equal(t, tabular.FormatExcel, got[2].Format)
}

func TestFindSources_MissingDirectory(t *testing.T) {
	_, err := NewDiscovery(nil).FindSources(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read directory")
}

func TestValidateSource(t *testing.T) {
	dir := t.TempDir()
	ok := touch(t, dir, "ledger.csv", "posted,amount\n2023-01-01,$1.00\n")
	empty := touch(t, dir, "empty.csv", "")
	lock := touch(t, dir, "~$ledger.xlsx", "x")
	pdf := touch(t, dir, "ledger.pdf", "x")

	d := NewDiscovery(nil)

	info, err := d.ValidateSource(ok)
	require.NoError(t, err)
	assert.Equal(t, tabular.FormatCSV, info.Format)
	assert.Positive(t, info.Size)

	tests := []struct {
		path   string
		errMsg string
	}{
		{filepath.Join(dir, "missing.csv"), "does not exist"},
		{dir, "is a directory"},
		{empty, "is empty"},
		{lock, "temporary or hidden"},
		{pdf, "unsupported file type"},
	}
	for _, tt := range tests {
		_, err := d.ValidateSource(tt.path)
		require.Error(t, err, tt.path)
		assert.Contains(t, err.Error(), tt.errMsg)
	}
}
