// Package synthesis coordinates multi-scene renders: each scene is encoded
// to an MPEG-TS chunk, chunks are spliced with optional Xfade transitions,
// and the result gets one audio mix pass.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/encoder"
	"github.com/jmylchreest/pagecast/internal/ffmpeg"
	"github.com/jmylchreest/pagecast/internal/mixer"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/storage"
)

// Progress weighting between the chunk-render stage and the mix stage.
const (
	chunkStageWeight = 95.0
	mixStageWeight   = 5.0
)

// ChunkRenderer produces the frames for one chunk, feeding them into the
// running encoder. The page driver implements this.
type ChunkRenderer interface {
	RenderChunk(ctx context.Context, chunk *VideoChunk, enc *encoder.FrameEncoder) error
}

// Options configures the composite output.
type Options struct {
	OutputPath   string
	Format       encoder.Format
	VideoEncoder string
	Bitrate      string
	Quality      int
	AudioBitrate string
	// VideoVolume is the master volume percent applied to every track.
	VideoVolume     int
	AttachCoverPath string
	// PixelFormat applies to chunk encodes and the splice re-encode;
	// empty means the per-stage defaults (yuv420p).
	PixelFormat string
	LogLevel    string
	// ParallelWriteFrames is the encoder pipe batch size.
	ParallelWriteFrames int
}

// Synthesizer owns the ordered chunk list and the audio timeline.
type Synthesizer struct {
	opts       Options
	paths      *storage.Paths
	ffmpegPath string
	logger     *slog.Logger

	mu       sync.Mutex
	chunks   []*VideoChunk
	audios   []audio.Audio
	rendered int64 // frames across finished chunks
	current  *encoder.FrameEncoder
	progress func(percent float64)
}

// New creates a synthesizer.
func New(opts Options, paths *storage.Paths, ffmpegPath string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		opts:       opts,
		paths:      paths,
		ffmpegPath: ffmpegPath,
		logger:     observability.WithComponent(logger, "synthesizer"),
	}
}

// SetProgress registers a percent callback (0-100).
func (s *Synthesizer) SetProgress(fn func(percent float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = fn
}

// AddChunk appends a chunk to the sequence.
func (s *Synthesizer) AddChunk(c *VideoChunk) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
	return nil
}

// Validate runs the cross-chunk checks before any encoding starts.
func (s *Synthesizer) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chunks) == 0 {
		return errors.New("synthesizer has no chunks")
	}

	first := s.chunks[0]
	for i, c := range s.chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if c.Width != first.Width || c.Height != first.Height || c.FPS != first.FPS {
			return fmt.Errorf("chunk %d geometry %dx%d@%v differs from %dx%d@%v",
				i, c.Width, c.Height, c.FPS, first.Width, first.Height, first.FPS)
		}
		if c.Transition == nil {
			continue
		}
		if i == len(s.chunks)-1 {
			return fmt.Errorf("chunk %d has a transition but no successor", i)
		}
		next := s.chunks[i+1]
		if c.Transition.Duration >= next.Duration {
			return fmt.Errorf("chunk %d transition %dms exceeds next chunk duration %dms",
				i, c.Transition.Duration, next.Duration)
		}
	}
	return nil
}

// OffsetFor returns the composite-timeline offset of a chunk: the sum of
// the effective durations of every chunk before it.
func (s *Synthesizer) OffsetFor(index int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsetLocked(index)
}

func (s *Synthesizer) offsetLocked(index int) int64 {
	var offset int64
	for i := 0; i < index && i < len(s.chunks); i++ {
		offset += s.chunks[i].EffectiveDuration()
	}
	return offset
}

// AddAudio re-tags a descriptor emitted by a chunk into composite time and
// appends it in arrival order.
func (s *Synthesizer) AddAudio(chunkIndex int, a audio.Audio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audios = append(s.audios, a.Shifted(s.offsetLocked(chunkIndex)))
}

// TotalDuration returns the composite length in milliseconds.
func (s *Synthesizer) TotalDuration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, c := range s.chunks {
		total += c.EffectiveDuration()
	}
	return total
}

// totalFrames sums the expected frame counts across chunks.
func (s *Synthesizer) totalFrames() int64 {
	var total int64
	for _, c := range s.chunks {
		total += c.FrameCount()
	}
	return total
}

// reportChunkProgress maps rendered frames into the 0-95 band.
func (s *Synthesizer) reportChunkProgress(total int64) {
	s.mu.Lock()
	fn := s.progress
	rendered := s.rendered
	enc := s.current
	s.mu.Unlock()

	if fn == nil || total == 0 {
		return
	}
	if enc != nil {
		rendered += enc.FramesWritten()
	}
	fn(chunkStageWeight * float64(rendered) / float64(total))
}

// Synthesize encodes every chunk, splices them and mixes the audio.
// Returns the final output path.
func (s *Synthesizer) Synthesize(ctx context.Context, renderer ChunkRenderer) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	dir, err := s.paths.SynthesizerDir()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	chunks := s.chunks
	s.mu.Unlock()
	total := s.totalFrames()

	for i, c := range chunks {
		if c.OutputPath == "" {
			c.OutputPath = filepath.Join(dir, fmt.Sprintf("chunk_%d.ts", i))
		}
		if err := s.renderChunk(ctx, i, c, renderer, total); err != nil {
			return "", fmt.Errorf("chunk %d: %w", i, err)
		}

		// Pre-declared per-chunk audios join the timeline at encode time,
		// same as descriptors emitted during capture.
		for _, a := range c.Audios {
			s.AddAudio(i, a)
		}

		if _, err := ProbeChunk(ctx, c.OutputPath); err != nil {
			return "", err
		}
	}

	if err := s.splice(ctx, chunks); err != nil {
		return "", err
	}

	if fn := s.progressFn(); fn != nil {
		fn(100)
	}
	return s.opts.OutputPath, nil
}

func (s *Synthesizer) progressFn() func(float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// renderChunk runs one encoder pass fed by the renderer.
func (s *Synthesizer) renderChunk(ctx context.Context, index int, c *VideoChunk, renderer ChunkRenderer, totalFrames int64) error {
	encOpts := encoder.Options{
		OutputPath:   c.OutputPath,
		Width:        c.Width,
		Height:       c.Height,
		FPS:          c.FPS,
		Duration:     c.Duration,
		Format:       s.opts.Format,
		VideoEncoder: s.chunkEncoder(c),
		Bitrate:      s.opts.Bitrate,
		Quality:      s.opts.Quality,
		PixelFormat:  s.opts.PixelFormat,
		Intermediate: true,
	}

	enc := encoder.New(encOpts, s.ffmpegPath, s.opts.LogLevel, s.opts.Quality,
		s.opts.ParallelWriteFrames, s.logger)
	if err := enc.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = enc
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.reportChunkProgress(totalFrames)
			}
		}
	}()

	renderErr := renderer.RenderChunk(ctx, c, enc)
	close(done)

	if renderErr != nil {
		_ = enc.Abort()
		s.clearCurrent(0)
		return renderErr
	}
	if err := enc.Finish(); err != nil {
		s.clearCurrent(0)
		return err
	}

	s.clearCurrent(enc.FramesWritten())
	s.reportChunkProgress(totalFrames)

	s.logger.Info("chunk encoded",
		slog.Int("index", index),
		slog.String("path", c.OutputPath),
		slog.Int64("frames", enc.FramesWritten()),
	)
	return nil
}

func (s *Synthesizer) clearCurrent(frames int64) {
	s.mu.Lock()
	s.current = nil
	s.rendered += frames
	s.mu.Unlock()
}

// splice concatenates the chunk intermediates and runs the mix pass.
func (s *Synthesizer) splice(ctx context.Context, chunks []*VideoChunk) error {
	s.mu.Lock()
	audios := append([]audio.Audio(nil), s.audios...)
	s.mu.Unlock()

	spliceOut := s.opts.OutputPath
	if len(audios) > 0 {
		dir, err := s.paths.SynthesizerDir()
		if err != nil {
			return err
		}
		spliceOut = filepath.Join(dir, "spliced"+filepath.Ext(s.opts.OutputPath))
	}

	args, err := BuildSpliceArgs(chunks, &SpliceOptions{
		OutputPath:      spliceOut,
		Format:          s.opts.Format,
		VideoEncoder:    s.opts.VideoEncoder,
		Bitrate:         s.opts.Bitrate,
		Quality:         s.opts.Quality,
		AttachCoverPath: s.opts.AttachCoverPath,
		PixelFormat:     s.opts.PixelFormat,
		LogLevel:        s.opts.LogLevel,
	}, s.ffmpegPath)
	if err != nil {
		return err
	}

	s.logger.Debug("splicing chunks", slog.Int("chunks", len(chunks)))
	cmd := ffmpeg.NewCommand(s.ffmpegPath, args)
	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("splicing chunks: %w", err)
	}

	if len(audios) == 0 {
		return nil
	}

	m := mixer.New(s.ffmpegPath, s.opts.LogLevel, s.logger)
	return m.Mix(ctx, &mixer.Options{
		VideoPath:      spliceOut,
		OutputPath:     s.opts.OutputPath,
		Format:         s.opts.Format,
		AudioBitrate:   s.opts.AudioBitrate,
		VideoVolume:    s.opts.VideoVolume,
		DurationMillis: s.TotalDuration(),
		Audios:         audios,
	})
}

// chunkEncoder resolves the encoder for a chunk.
func (s *Synthesizer) chunkEncoder(c *VideoChunk) string {
	if c.VideoEncoder != "" {
		return c.VideoEncoder
	}
	if s.opts.VideoEncoder != "" {
		return s.opts.VideoEncoder
	}
	return encoder.DefaultVideoEncoder(s.opts.Format)
}
