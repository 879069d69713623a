package pdfextract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Run("Plain Text File", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("plain text body"), 0o600))

		text, err := New().Extract(path)
		require.NoError(t, err)
		assert.Equal(t, "plain text body", text)
	})

	t.Run("Markdown File", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "readme.md")
		require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody."), 0o600))

		text, err := New().Extract(path)
		require.NoError(t, err)
		assert.Contains(t, text, "# Title")
	})

	t.Run("Unsupported Extension", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "image.png")
		require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50}, 0o600))

		_, err := New().Extract(path)
		assert.Error(t, err)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := New().Extract("/nonexistent/file.txt")
		assert.Error(t, err)
	})

	t.Run("Corrupt PDF", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.pdf")
		require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o600))

		_, err := New().Extract(path)
		assert.Error(t, err)
	})
}
