package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "jpeg", cfg.Capture.FrameFormat)
	assert.Equal(t, 80, cfg.Capture.FrameQuality)
	assert.Equal(t, 5*time.Second, cfg.Capture.FrameTimeout)
	assert.Equal(t, 30*time.Second, cfg.Capture.FrameAcquireTimeout)
	assert.True(t, cfg.Capture.DateNowEpsilon)
	assert.False(t, cfg.Capture.TimeActionsDrain)

	assert.Equal(t, 1, cfg.Pool.NumBrowserMin)
	assert.Equal(t, 5, cfg.Pool.NumBrowserMax)
	assert.Equal(t, 5*time.Second, cfg.Pool.SaturationInterval)

	assert.Equal(t, 10, cfg.Preprocess.MaxDownloads)
	assert.Equal(t, 10, cfg.Preprocess.MaxProcesses)
	assert.Equal(t, 60*time.Second, cfg.Preprocess.DemuxTimeout)

	assert.Equal(t, 10, cfg.Encoder.ParallelWriteFrames)
	assert.Equal(t, "tmp", cfg.Storage.BaseDir)

	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"browser min above max", func(c *Config) {
			c.Pool.NumBrowserMin = 10
		}, "num_browser_max"},
		{"page min above max", func(c *Config) {
			c.Pool.NumPageMin = 10
		}, "num_page_max"},
		{"zero browser max", func(c *Config) {
			c.Pool.NumBrowserMax = 0
		}, "num_browser_max"},
		{"bad frame format", func(c *Config) {
			c.Capture.FrameFormat = "webp"
		}, "frame_format"},
		{"frame quality out of range", func(c *Config) {
			c.Capture.FrameQuality = 101
		}, "frame_quality"},
		{"bad decoder hint", func(c *Config) {
			c.Capture.VideoDecoderHardwareAcceleration = "gpu-please"
		}, "video_decoder_hardware_acceleration"},
		{"encoder quality out of range", func(c *Config) {
			c.Encoder.Quality = 0
		}, "quality"},
		{"zero parallel frames", func(c *Config) {
			c.Encoder.ParallelWriteFrames = 0
		}, "parallel_write_frames"},
		{"zero downloads", func(c *Config) {
			c.Preprocess.MaxDownloads = 0
		}, "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagecast.yaml")

	content := []byte(`
pool:
  num_browser_max: 2
  num_page_max: 3
capture:
  frame_format: png
  allow_unsafe_context: true
preprocess:
  max_download_size: 64MB
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pool.NumBrowserMax)
	assert.Equal(t, 3, cfg.Pool.NumPageMax)
	assert.Equal(t, "png", cfg.Capture.FrameFormat)
	assert.True(t, cfg.Capture.AllowUnsafeContext)
	assert.Equal(t, int64(64*1024*1024), cfg.Preprocess.MaxDownloadSize.Int64())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Point the search path at an empty directory so no config is found.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", cfg.Capture.FrameFormat)
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagecast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  frame_format: bmp\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_format")
}
