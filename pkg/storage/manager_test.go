package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestPostDir(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, filepath.Join(m.BaseDir(), "55", "100"), m.PostDir("55", "100", ""))
	assert.Equal(t, filepath.Join(m.BaseDir(), "55", "100 - My Post"), m.PostDir("55", "100", "My Post"))

	// Unsafe title characters are replaced
	dir := m.PostDir("55", "100", `a/b\c:d?e`)
	assert.NotContains(t, filepath.Base(dir), "/")
	assert.NotContains(t, filepath.Base(dir), "?")
}

func TestSaveFile(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(m.BaseDir(), "55", "100", "001_000.jpg")

	require.NoError(t, m.SaveFile(strings.NewReader("image data"), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image data", string(data))
	assert.True(t, m.Exists(path))

	// No temp file left behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveFileOverwrites(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(m.BaseDir(), "file.txt")

	require.NoError(t, m.SaveBytes([]byte("old"), path))
	require.NoError(t, m.SaveBytes([]byte("new"), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestIncompleteMarker(t *testing.T) {
	m := newTestManager(t)
	dir := m.PostDir("55", "100", "")

	assert.False(t, m.IsIncomplete(dir))

	require.NoError(t, m.MarkIncomplete(dir))
	assert.True(t, m.IsIncomplete(dir))

	// Marking twice is fine
	require.NoError(t, m.MarkIncomplete(dir))

	require.NoError(t, m.ClearIncomplete(dir))
	assert.False(t, m.IsIncomplete(dir))

	// Clearing an absent marker is fine
	require.NoError(t, m.ClearIncomplete(dir))
}

func TestAppendExternalLinks(t *testing.T) {
	m := newTestManager(t)
	dir := m.PostDir("55", "100", "")

	require.NoError(t, m.AppendExternalLinks(dir, []string{
		"https://example.com/a",
		"https://example.com/b",
	}))

	// Re-appending skips URLs already recorded
	require.NoError(t, m.AppendExternalLinks(dir, []string{
		"https://example.com/b",
		"https://example.com/c",
	}))

	data, err := os.ReadFile(filepath.Join(dir, ExternalLinksFile))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a\nhttps://example.com/b\nhttps://example.com/c\n", string(data))
}

func TestAppendExternalLinksEmpty(t *testing.T) {
	m := newTestManager(t)
	dir := m.PostDir("55", "100", "")

	require.NoError(t, m.AppendExternalLinks(dir, nil))
	_, err := os.Stat(filepath.Join(dir, ExternalLinksFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.jpg", "plain.jpg"},
		{`a/b\c.png`, "a_b_c.png"},
		{`what?.zip`, "what_.zip"},
		{"  spaced  ", "spaced"},
		{"...", "_"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}
