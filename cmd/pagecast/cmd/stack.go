package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/pagecast/internal/browser"
	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/ffmpeg"
	"github.com/jmylchreest/pagecast/internal/fonts"
	"github.com/jmylchreest/pagecast/internal/httpclient"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/preprocess"
	"github.com/jmylchreest/pagecast/internal/render"
	"github.com/jmylchreest/pagecast/internal/storage"
)

// stack wires the full capture pipeline for the serve and render commands.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	paths    *storage.Paths
	pre      *preprocess.Preprocessor
	fonts    *fonts.Cache
	browsers *browser.Manager
	renderer *render.Renderer
}

// buildStack resolves the FFmpeg binaries, fetches the Lottie runtime and
// assembles the preprocessor, font cache, browser pool and renderer.
func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	info, err := detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting ffmpeg: %w", err)
	}
	cfg.FFmpeg.FFmpegPath = info.FFmpegPath
	cfg.FFmpeg.FFprobePath = info.FFprobePath
	logger.Info("ffmpeg detected",
		slog.String("ffmpeg", info.FFmpegPath),
		slog.String("version", info.Version))

	paths := storage.NewPaths(cfg.Storage)

	lottieSource, err := loadLottie(ctx, cfg, paths, logger)
	if err != nil {
		// Lottie captures degrade to blank canvases without the runtime;
		// everything else still works.
		logger.Warn("lottie runtime unavailable", observability.Err(err))
	}

	pre := preprocess.New(cfg.Preprocess, paths,
		cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, cfg.FFmpeg.LogLevel, logger)

	client := httpclient.New(httpclient.DefaultConfig())
	fontCache := fonts.NewCache(paths, client, logger)

	browsers := browser.NewManager(cfg, paths, pre, fontCache, lottieSource, logger)
	renderer := render.New(cfg, browsers, pre, logger)

	return &stack{
		cfg:      cfg,
		logger:   logger,
		paths:    paths,
		pre:      pre,
		fonts:    fontCache,
		browsers: browsers,
		renderer: renderer,
	}, nil
}

func (s *stack) Close() {
	s.browsers.Close()
}

// loadLottie returns the Lottie renderer source, fetching and caching it on
// first use.
func loadLottie(ctx context.Context, cfg *config.Config, paths *storage.Paths, logger *slog.Logger) (string, error) {
	if cfg.Capture.LottieURL == "" {
		return "", nil
	}

	cachePath := filepath.Join(paths.Base(), "lottie.min.js")
	if data, err := os.ReadFile(cachePath); err == nil {
		return string(data), nil
	}

	client := httpclient.New(httpclient.DefaultConfig())
	resp, err := client.Get(ctx, cfg.Capture.LottieURL)
	if err != nil {
		return "", fmt.Errorf("fetching lottie runtime: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("fetching lottie runtime: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(paths.Base(), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		logger.Warn("caching lottie runtime", observability.Err(err))
	}
	return string(data), nil
}
