// Package browser manages headless Chromium processes and the two-tier
// browser/page pool capture runs draw from.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/fonts"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/page"
	"github.com/jmylchreest/pagecast/internal/page/scripts"
	"github.com/jmylchreest/pagecast/internal/pool"
	"github.com/jmylchreest/pagecast/internal/preprocess"
	"github.com/jmylchreest/pagecast/internal/storage"
)

const defaultSaturationInterval = 5 * time.Second

// Browser is one Chromium process plus its tab pool.
type Browser struct {
	ID string

	allocCancel context.CancelFunc
	cancel      context.CancelFunc
	ctx         context.Context

	pages  *pool.Pool[*page.Page]
	logger *slog.Logger
}

// Ctx exposes the browser-level chromedp context for creating tabs.
func (b *Browser) Ctx() context.Context { return b.ctx }

// Close shuts down the tab pool and the Chromium process.
func (b *Browser) Close() {
	b.pages.Close()
	b.cancel()
	b.allocCancel()
}

// Manager owns the browser pool and hands out initialized pages. Acquisition
// is two-tier: a browser slot is held only while its inner page pool still
// has room, so page capacity is spread across processes before any single
// process is loaded up.
type Manager struct {
	cfg    *config.Config
	paths  *storage.Paths
	pre    *preprocess.Preprocessor
	fonts  *fonts.Cache
	logger *slog.Logger

	// lottieSource is injected into every page after navigation.
	lottieSource string

	browsers *pool.Pool[*Browser]
}

// NewManager creates the browser manager. Browsers launch lazily.
func NewManager(cfg *config.Config, paths *storage.Paths, pre *preprocess.Preprocessor, fontCache *fonts.Cache, lottieSource string, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:          cfg,
		paths:        paths,
		pre:          pre,
		fonts:        fontCache,
		lottieSource: lottieSource,
		logger:       observability.WithComponent(logger, "browser"),
	}
	m.browsers = pool.New(pool.Config[*Browser]{
		Min:            cfg.Pool.NumBrowserMin,
		Max:            cfg.Pool.NumBrowserMax,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		Create:         m.launch,
		Destroy:        func(b *Browser) { b.Close() },
	})
	return m
}

// Warmup pre-launches the minimum browser count.
func (m *Manager) Warmup(ctx context.Context) error {
	return m.browsers.Warmup(ctx)
}

// launch starts one Chromium process and verifies it answers within the
// launch timeout.
func (m *Manager) launch(ctx context.Context) (*Browser, error) {
	browserDir, err := m.paths.BrowserDir()
	if err != nil {
		return nil, err
	}
	id := ulid.Make().String()
	userDataDir := filepath.Join(browserDir, id)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		allocatorOptions(m.cfg.Browser, userDataDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	timeout := m.cfg.Browser.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	launchCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	// A trivial navigation forces the process to start and connect.
	if err := chromedp.Run(launchCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := &Browser{
		ID:          id,
		allocCancel: allocCancel,
		cancel:      browserCancel,
		ctx:         browserCtx,
		logger:      m.logger.With(slog.String("browser_id", id)),
	}
	b.pages = pool.New(pool.Config[*page.Page]{
		Min:            m.cfg.Pool.NumPageMin,
		Max:            m.cfg.Pool.NumPageMax,
		AcquireTimeout: m.cfg.Pool.AcquireTimeout,
		Create:         func(ctx context.Context) (*page.Page, error) { return m.newPage(ctx, b) },
		Destroy:        func(p *page.Page) { _ = p.Close() },
	})

	b.logger.Info("browser launched", slog.String("user_data_dir", userDataDir))
	return b, nil
}

func (m *Manager) newPage(ctx context.Context, b *Browser) (*page.Page, error) {
	p := page.New(b.ctx, page.Options{
		Capture:        m.cfg.Capture,
		Settings:       m.defaultSettings(),
		Preprocessor:   m.pre,
		Fonts:          m.fonts,
		CompatibleMode: m.cfg.Browser.CompatibleRenderingMode,
		LottieSource:   m.lottieSource,
		Logger:         m.logger,
	})
	if err := p.Init(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (m *Manager) defaultSettings() scripts.Settings {
	return scripts.Settings{
		DateNowEpsilon:                   m.cfg.Capture.DateNowEpsilon,
		FrameAcquireTimeout:              m.cfg.Capture.FrameAcquireTimeout.Milliseconds(),
		VideoDecoderHardwareAcceleration: m.cfg.Capture.VideoDecoderHardwareAcceleration,
	}
}

// Lease is a page checked out of the pool. Release returns it or discards
// it depending on its state.
type Lease struct {
	Page *page.Page

	browser *Browser
}

// AcquirePage checks out a ready page. The outer browser slot is released
// immediately unless this browser's page pool just saturated, in which case
// the slot stays held until the page comes back so new work spills to other
// browsers.
func (m *Manager) AcquirePage(ctx context.Context) (*Lease, error) {
	b, err := m.browsers.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	p, err := b.pages.Acquire(ctx)
	if err != nil {
		m.browsers.Release(b)
		return nil, err
	}

	// A saturated page pool keeps the browser slot parked until headroom
	// returns so new work spills to other processes.
	if b.pages.Saturated() {
		m.waitForHeadroom(b)
	} else {
		m.browsers.Release(b)
	}
	return &Lease{Page: p, browser: b}, nil
}

// waitForHeadroom releases a held browser slot once its page pool has idle
// capacity again, polling on the saturation interval.
func (m *Manager) waitForHeadroom(b *Browser) {
	interval := m.cfg.Pool.SaturationInterval
	if interval <= 0 {
		interval = defaultSaturationInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if b.ctx.Err() != nil {
				return
			}
			if !b.pages.Saturated() {
				m.browsers.Release(b)
				return
			}
		}
	}()
}

// Release returns the leased page to its pool, discarding pages that are no
// longer reusable.
func (l *Lease) Release() {
	if l.Page.Reusable() {
		l.browser.pages.Release(l.Page)
	} else {
		l.browser.pages.Discard(l.Page)
	}
}

// Close shuts every browser down.
func (m *Manager) Close() {
	m.browsers.Close()
}
