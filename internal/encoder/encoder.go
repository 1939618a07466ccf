// Package encoder streams captured page frames into an FFmpeg image2pipe
// encode, producing either a final MP4/WebM or an MPEG-TS chunk
// intermediate for the synthesizer.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/jmylchreest/pagecast/internal/ffmpeg"
	"github.com/jmylchreest/pagecast/internal/observability"
)

// ErrNotStarted is returned when frames arrive before Start.
var ErrNotStarted = errors.New("frame encoder not started")

// Options configures one encode.
type Options struct {
	OutputPath string
	Width      int
	Height     int
	FPS        float64
	// Duration is the target length in milliseconds; used with FPS to derive
	// the expected frame count.
	Duration int64

	Format       Format
	VideoEncoder string
	// Bitrate overrides the computed default when non-empty (e.g. "2500k").
	Bitrate string
	// Quality scales the computed default bitrate (1-100).
	Quality int
	// PixelFormat defaults to yuv420p, or yuva420p for WebM with alpha.
	PixelFormat string
	// AttachCoverPath overlays an image scaled to the output dimensions.
	AttachCoverPath string
	// Intermediate selects the MPEG-TS chunk output with the bitstream
	// filter required for later concatenation.
	Intermediate bool
}

// Validate checks the options; violations are configuration errors raised
// before any browser work starts.
func (o *Options) Validate() error {
	if o.OutputPath == "" {
		return errors.New("encoder output path is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", o.Width, o.Height)
	}
	if o.Width%2 != 0 || o.Height%2 != 0 {
		return fmt.Errorf("dimensions %dx%d must be even", o.Width, o.Height)
	}
	if o.FPS <= 0 || math.IsInf(o.FPS, 0) || math.IsNaN(o.FPS) {
		return fmt.Errorf("invalid fps %v", o.FPS)
	}
	if o.Duration <= 0 {
		return fmt.Errorf("invalid duration %dms", o.Duration)
	}
	switch o.Format {
	case FormatMP4, FormatWebM:
	default:
		return fmt.Errorf("unknown output format %q", o.Format)
	}
	if o.VideoEncoder != "" && !EncoderValidForFormat(o.VideoEncoder, o.Format) {
		return fmt.Errorf("video encoder %q not valid for %s output", o.VideoEncoder, o.Format)
	}
	return nil
}

// FrameCount returns the number of frames this encode expects.
func (o *Options) FrameCount() int64 {
	return int64(float64(o.Duration) * o.FPS / 1000)
}

// videoEncoder resolves the effective encoder name.
func (o *Options) videoEncoder() string {
	if o.VideoEncoder != "" {
		return o.VideoEncoder
	}
	return DefaultVideoEncoder(o.Format)
}

// pixelFormat resolves the effective pixel format.
func (o *Options) pixelFormat() string {
	if o.PixelFormat != "" {
		return o.PixelFormat
	}
	return "yuv420p"
}

// DefaultBitrateKbps computes the bitrate from resolution and quality:
// 2560 kbps at 1280x720 (921600 px), scaled linearly by pixel count and by
// quality percent.
func DefaultBitrateKbps(width, height, quality int) int64 {
	if quality <= 0 {
		quality = 100
	}
	pixels := float64(width * height)
	return int64(2560 * pixels / 921600 * float64(quality) / 100)
}

// BuildArgs assembles the FFmpeg argument list for this encode.
// Exposed separately from Start so synthesis runs are reproducible and
// testable: identical options yield an identical command line.
func BuildArgs(o *Options, ffmpegPath, logLevel string, quality int) ([]string, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	enc := o.videoEncoder()

	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(logLevel).
		HideBanner().
		Overwrite().
		ImagePipeInput(o.FPS)

	if o.AttachCoverPath != "" {
		b.Input(o.AttachCoverPath)
		b.FilterComplex(fmt.Sprintf(
			"[1:v]scale=%d:%d[cover];[0:v][cover]overlay=0:0:enable='between(t,0,1)'[v]",
			o.Width, o.Height))
		b.OutputArgs("-map", "[v]")
	}

	b.VideoCodec(enc)

	if o.Bitrate != "" {
		b.VideoBitrate(o.Bitrate)
	} else {
		b.VideoBitrate(strconv.FormatInt(DefaultBitrateKbps(o.Width, o.Height, quality), 10) + "k")
	}

	if h264ClassEncoders[enc] {
		b.OutputArgs("-profile:v", "main", "-preset", "medium")
	}

	b.PixelFormat(o.pixelFormat())

	if o.Intermediate {
		bsf, err := ffmpeg.ChunkBitstreamFilter(enc)
		if err != nil {
			return nil, err
		}
		b.BitstreamFilter(bsf).Format("mpegts")
	} else {
		switch o.Format {
		case FormatMP4:
			b.Faststart().Format("mp4")
		case FormatWebM:
			b.Format("webm")
		}
	}

	b.Output(o.OutputPath)
	return b.Args(), nil
}

// FrameEncoder feeds frames into a running FFmpeg process.
type FrameEncoder struct {
	opts       Options
	ffmpegPath string
	logLevel   string
	quality    int
	batchSize  int
	logger     *slog.Logger

	mu      sync.Mutex
	cmd     *ffmpeg.Command
	stdin   io.WriteCloser
	monitor *ffmpeg.ProcessMonitor
	batch   [][]byte
	batched int
	frames  int64
	aborted bool
}

// New creates a frame encoder. batchSize frames are coalesced into a single
// pipe write to reduce syscall churn (parallelWriteFrames).
func New(opts Options, ffmpegPath, logLevel string, quality, batchSize int, logger *slog.Logger) *FrameEncoder {
	if batchSize < 1 {
		batchSize = 1
	}
	return &FrameEncoder{
		opts:       opts,
		ffmpegPath: ffmpegPath,
		logLevel:   logLevel,
		quality:    quality,
		batchSize:  batchSize,
		logger:     observability.WithComponent(logger, "frame_encoder"),
	}
}

// Start validates options and launches the FFmpeg process.
func (e *FrameEncoder) Start(ctx context.Context) error {
	args, err := BuildArgs(&e.opts, e.ffmpegPath, e.logLevel, e.quality)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := ffmpeg.NewCommand(e.ffmpegPath, args)
	stdin, err := cmd.StartWithStdin(ctx)
	if err != nil {
		return err
	}

	e.cmd = cmd
	e.stdin = stdin
	e.monitor = ffmpeg.NewProcessMonitor(cmd.Pid())
	e.monitor.Start()

	e.logger.Debug("encoder started",
		slog.String("output", e.opts.OutputPath),
		slog.String("encoder", e.opts.videoEncoder()),
		slog.Int64("frame_count", e.opts.FrameCount()),
	)
	return nil
}

// WriteFrame appends one encoded image to the batch, flushing when the batch
// is full.
func (e *FrameEncoder) WriteFrame(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotStarted
	}

	e.batch = append(e.batch, frame)
	e.batched += len(frame)
	e.frames++

	if len(e.batch) >= e.batchSize {
		return e.flushLocked()
	}
	return nil
}

// flushLocked writes the batched frames as one contiguous buffer.
func (e *FrameEncoder) flushLocked() error {
	if len(e.batch) == 0 {
		return nil
	}

	buf := make([]byte, 0, e.batched)
	for _, frame := range e.batch {
		buf = append(buf, frame...)
	}
	e.batch = e.batch[:0]
	e.batched = 0

	n, err := e.stdin.Write(buf)
	if n > 0 && e.monitor != nil {
		e.monitor.AddBytesWritten(uint64(n))
	}
	if err != nil {
		return fmt.Errorf("writing frames to encoder: %w", err)
	}
	return nil
}

// FramesWritten returns the number of frames accepted so far.
func (e *FrameEncoder) FramesWritten() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Stats returns process statistics for the running encode.
func (e *FrameEncoder) Stats() *ffmpeg.ProcessStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitor == nil {
		return nil
	}
	stats := e.monitor.Stats()
	return &stats
}

// Finish flushes remaining frames, closes the pipe and waits for FFmpeg to
// finalize the container.
func (e *FrameEncoder) Finish() error {
	e.mu.Lock()
	if e.stdin == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	flushErr := e.flushLocked()
	closeErr := e.stdin.Close()
	cmd := e.cmd
	monitor := e.monitor
	e.stdin = nil
	e.mu.Unlock()

	waitErr := cmd.Wait()
	if monitor != nil {
		monitor.Stop()
	}

	if flushErr != nil {
		return flushErr
	}
	if waitErr != nil {
		return waitErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing encoder pipe: %w", closeErr)
	}

	e.logger.Debug("encoder finished", slog.String("output", e.opts.OutputPath))
	return nil
}

// Abort asks FFmpeg to stop early; the partial output is left in place for
// inspection.
func (e *FrameEncoder) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.aborted {
		return nil
	}
	e.aborted = true
	if e.monitor != nil {
		e.monitor.Stop()
	}
	return e.cmd.Abort()
}
