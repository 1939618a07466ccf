// Package render drives capture runs end to end: it leases pages from the
// browser pool, feeds captured frames into the chunk encoder and funnels
// audio descriptors onto the composite timeline.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/browser"
	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/encoder"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/page"
	"github.com/jmylchreest/pagecast/internal/page/scripts"
	"github.com/jmylchreest/pagecast/internal/preprocess"
	"github.com/jmylchreest/pagecast/internal/synthesis"
)

// Renderer captures scenes through pooled pages. It implements
// synthesis.ChunkRenderer.
type Renderer struct {
	cfg      *config.Config
	browsers *browser.Manager
	pre      *preprocess.Preprocessor
	logger   *slog.Logger
}

// New creates a renderer on top of an existing browser manager.
func New(cfg *config.Config, browsers *browser.Manager, pre *preprocess.Preprocessor, logger *slog.Logger) *Renderer {
	return &Renderer{
		cfg:      cfg,
		browsers: browsers,
		pre:      pre,
		logger:   observability.WithComponent(logger, "renderer"),
	}
}

// RenderChunk captures one scene into the running encoder. Audio emitted by
// the page during capture is resolved to local files and appended to the
// chunk so the synthesizer picks it up at encode time.
func (r *Renderer) RenderChunk(ctx context.Context, chunk *synthesis.VideoChunk, enc *encoder.FrameEncoder) error {
	return r.renderChunk(ctx, chunk, enc, nil)
}

func (r *Renderer) renderChunk(ctx context.Context, chunk *synthesis.VideoChunk, enc *encoder.FrameEncoder, ctrl *Control) error {
	// Pre-declared tracks are fetched up front so a dead source fails the
	// chunk before any frames are burned.
	for i := range chunk.Audios {
		resolved, err := r.pre.ProcessAudio(ctx, &chunk.Audios[i])
		if err != nil {
			return fmt.Errorf("audio %d: %w", i, err)
		}
		chunk.Audios[i] = *resolved
	}

	lease, err := r.browsers.AcquirePage(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	p := lease.Page

	if err := p.SetViewport(ctx, chunk.Width, chunk.Height); err != nil {
		return err
	}
	if err := p.Configure(ctx, r.chunkSettings(chunk)); err != nil {
		return err
	}
	// Pooled pages keep the previous chunk's override; always reset.
	opacity := 1.0
	if chunk.BackgroundOpacity != nil {
		opacity = *chunk.BackgroundOpacity
	}
	if err := p.SetBackgroundOpacity(opacity); err != nil {
		return err
	}

	collector := newAudioCollector()
	var failure captureFailure

	p.OnFrame(func(data []byte) {
		if err := enc.WriteFrame(data); err != nil {
			failure.set(fmt.Errorf("writing frame: %w", err))
			_ = p.Abort(ctx)
		}
	})
	p.OnAudio(func(a audio.Audio) { collector.add(a) })
	p.OnError(failure.set)
	p.OnComplete(nil)

	if err := p.Goto(ctx, chunk.URL); err != nil {
		return err
	}
	// Navigation clears pending actions; register after Goto, before the
	// capture loop starts.
	for _, ta := range chunk.TimeActions {
		script := ta.Script
		p.AddTimeAction(ta.Time, func(pg *page.Page) error {
			return pg.Evaluate(ctx, script)
		})
	}
	if ctrl != nil {
		ctrl.bind(p)
		defer ctrl.bind(nil)
	}
	if err := p.StartCapture(ctx); err != nil {
		return err
	}
	if err := p.WaitComplete(ctx); err != nil {
		return err
	}

	if err := failure.get(); err != nil {
		return err
	}

	for _, a := range collector.tracks() {
		resolved, perr := r.pre.ProcessAudio(ctx, &a)
		if perr != nil {
			r.logger.Warn("dropping unfetchable audio track",
				slog.String("url", a.URL), observability.Err(perr))
			continue
		}
		chunk.Audios = append(chunk.Audios, *resolved)
	}

	r.logger.Info("chunk rendered",
		slog.String("url", chunk.URL),
		slog.Int64("frames", enc.FramesWritten()),
		slog.Int("audio_tracks", len(chunk.Audios)))
	return nil
}

func (r *Renderer) chunkSettings(chunk *synthesis.VideoChunk) scripts.Settings {
	return scripts.Settings{
		FPS:                              chunk.FPS,
		Duration:                         chunk.Duration,
		FrameCount:                       chunk.FrameCount(),
		Autostart:                        false,
		DateNowEpsilon:                   r.cfg.Capture.DateNowEpsilon,
		FrameAcquireTimeout:              r.cfg.Capture.FrameAcquireTimeout.Milliseconds(),
		VideoDecoderHardwareAcceleration: r.cfg.Capture.VideoDecoderHardwareAcceleration,
	}
}

// RenderFrame captures a single still of a page at virtual time `at`.
// Returns the encoded screenshot bytes.
func (r *Renderer) RenderFrame(ctx context.Context, url string, width, height int, fps float64, at int64) ([]byte, error) {
	if fps <= 0 {
		fps = 30
	}
	lease, err := r.browsers.AcquirePage(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	p := lease.Page

	if err := p.SetViewport(ctx, width, height); err != nil {
		return nil, err
	}

	// Ticks before `at` are skipped; exactly one frame is captured.
	frameInterval := int64(1000 / fps)
	err = p.Configure(ctx, scripts.Settings{
		FPS:        fps,
		StartTime:  at,
		Duration:   at + frameInterval,
		FrameCount: at/frameInterval + 1,
		Autostart:  false,
	})
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		frame   []byte
		failure captureFailure
	)
	p.OnFrame(func(data []byte) {
		mu.Lock()
		if frame == nil {
			frame = append([]byte(nil), data...)
		}
		mu.Unlock()
	})
	p.OnAudio(nil)
	p.OnComplete(nil)
	p.OnError(failure.set)

	if err := p.Goto(ctx, url); err != nil {
		return nil, err
	}
	if err := p.StartCapture(ctx); err != nil {
		return nil, err
	}
	if err := p.WaitComplete(ctx); err != nil {
		return nil, err
	}
	if err := failure.get(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if frame == nil {
		return nil, fmt.Errorf("no frame captured for %s", url)
	}
	return frame, nil
}

// captureFailure records the first error reported from capture callbacks,
// which run on the page's RPC dispatch goroutines.
type captureFailure struct {
	mu  sync.Mutex
	err error
}

func (f *captureFailure) set(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *captureFailure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// audioCollector merges descriptor adds with later end-time updates that
// arrive keyed by id only.
type audioCollector struct {
	mu    sync.Mutex
	order []int64
	byID  map[int64]audio.Audio
}

func newAudioCollector() *audioCollector {
	return &audioCollector{byID: make(map[int64]audio.Audio)}
}

func (c *audioCollector) add(a audio.Audio) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byID[a.ID]
	if !ok {
		c.byID[a.ID] = a
		c.order = append(c.order, a.ID)
		return
	}
	// End-time-only updates carry no source fields.
	if a.EndTime != 0 {
		existing.EndTime = a.EndTime
	}
	if a.URL != "" {
		existing = a
	}
	c.byID[a.ID] = existing
}

func (c *audioCollector) tracks() []audio.Audio {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Audio, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
