// Package storage lays out the temporary working tree and its per-subtree
// clean operations.
//
// Layout under the base directory:
//
//	browser/              shared browser user-data directory
//	preprocessor/         content-addressed media cache (crc32 of source URL)
//	synthesizer/          per-render chunk intermediates (chunk_*.ts)
//	local_font/<host>/... cached font files served to pages
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmylchreest/pagecast/internal/config"
)

// Paths resolves the temporary tree from configuration.
type Paths struct {
	base         string
	browser      string
	preprocessor string
	synthesizer  string
	fonts        string
}

// NewPaths creates the path resolver. Directories are created on demand.
func NewPaths(cfg config.StorageConfig) *Paths {
	return &Paths{
		base:         cfg.BaseDir,
		browser:      filepath.Join(cfg.BaseDir, cfg.BrowserDir),
		preprocessor: filepath.Join(cfg.BaseDir, cfg.PreprocessorDir),
		synthesizer:  filepath.Join(cfg.BaseDir, cfg.SynthesizerDir),
		fonts:        filepath.Join(cfg.BaseDir, cfg.FontDir),
	}
}

// Base returns the base directory.
func (p *Paths) Base() string { return p.base }

// BrowserDir returns the browser user-data directory, creating it if needed.
func (p *Paths) BrowserDir() (string, error) { return ensure(p.browser) }

// PreprocessorDir returns the media cache directory, creating it if needed.
func (p *Paths) PreprocessorDir() (string, error) { return ensure(p.preprocessor) }

// SynthesizerDir returns the chunk intermediate directory, creating it if
// needed.
func (p *Paths) SynthesizerDir() (string, error) { return ensure(p.synthesizer) }

// FontDir returns the font cache directory, creating it if needed.
func (p *Paths) FontDir() (string, error) { return ensure(p.fonts) }

// CleanBrowser removes the browser user-data directory.
func (p *Paths) CleanBrowser() error { return clean(p.browser) }

// CleanPreprocessor removes the media cache.
func (p *Paths) CleanPreprocessor() error { return clean(p.preprocessor) }

// CleanSynthesizer removes chunk intermediates.
func (p *Paths) CleanSynthesizer() error { return clean(p.synthesizer) }

// CleanFonts removes the font cache.
func (p *Paths) CleanFonts() error { return clean(p.fonts) }

// CleanAll removes every subtree.
func (p *Paths) CleanAll() error {
	for _, fn := range []func() error{
		p.CleanBrowser, p.CleanPreprocessor, p.CleanSynthesizer, p.CleanFonts,
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// ensure creates dir (and parents) and returns it.
func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// clean removes a subtree. Removing a missing directory is not an error, so
// the operation is idempotent.
func clean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("cleaning %s: %w", dir, err)
	}
	return nil
}
