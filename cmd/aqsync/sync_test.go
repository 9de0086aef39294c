package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadURLsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := `# backfill batch, 2024-06
https://example.org/a.parquet

https://example.org/b.parquet
  # stray comment
https://example.org/c.parquet
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	urls, err := readURLsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.org/a.parquet",
		"https://example.org/b.parquet",
		"https://example.org/c.parquet",
	}, urls)
}

func TestReadURLsFile_Missing(t *testing.T) {
	_, err := readURLsFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestEffectiveWorkers(t *testing.T) {
	assert.Equal(t, 4, effectiveWorkers(4, 8))
	assert.Equal(t, 8, effectiveWorkers(0, 8))
}
