package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagecast/internal/config"
)

func newPaths(t *testing.T) *Paths {
	t.Helper()
	return NewPaths(config.StorageConfig{
		BaseDir:         t.TempDir(),
		BrowserDir:      "browser",
		PreprocessorDir: "preprocessor",
		SynthesizerDir:  "synthesizer",
		FontDir:         "local_font",
	})
}

func TestDirsCreatedOnDemand(t *testing.T) {
	p := newPaths(t)

	dir, err := p.PreprocessorDir()
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(p.Base(), "preprocessor"), dir)
}

func TestCleanRemovesContents(t *testing.T) {
	p := newPaths(t)

	dir, err := p.SynthesizerDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk_0.ts"), []byte("x"), 0o644))

	require.NoError(t, p.CleanSynthesizer())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanIsIdempotent(t *testing.T) {
	p := newPaths(t)

	// Never created, cleaned twice: both succeed.
	require.NoError(t, p.CleanFonts())
	require.NoError(t, p.CleanFonts())

	require.NoError(t, p.CleanAll())
	require.NoError(t, p.CleanAll())
}
