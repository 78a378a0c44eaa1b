package feedlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeedsFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rss_feeds.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	path := writeFeedsFile(t, `{"feeds": ["https://example.com/a.xml", "https://example.com/b.xml"]}`)

	got := New(path).Load()
	assert.Equal(t, []string{"https://example.com/a.xml", "https://example.com/b.xml"}, got)
}

func TestLoad_MissingFile(t *testing.T) {
	got := New(filepath.Join(t.TempDir(), "nope.json")).Load()
	assert.Empty(t, got)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeFeedsFile(t, `{"feeds": [`)

	got := New(path).Load()
	assert.Empty(t, got)
}

func TestLoad_NoFeedsKey(t *testing.T) {
	path := writeFeedsFile(t, `{"other": true}`)

	got := New(path).Load()
	assert.Empty(t, got)
}
