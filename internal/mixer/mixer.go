// Package mixer runs the second encoder pass: it overlays every audio
// descriptor onto the video-only intermediate through an FFmpeg filter
// graph and remuxes without re-encoding the video stream.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/encoder"
	"github.com/jmylchreest/pagecast/internal/ffmpeg"
	"github.com/jmylchreest/pagecast/internal/observability"
)

// ErrNoAudio is returned when a mix is requested with no audio tracks.
var ErrNoAudio = errors.New("no audio tracks to mix")

// Options configures one mix pass.
type Options struct {
	VideoPath  string
	OutputPath string
	Format     encoder.Format
	// AudioEncoder defaults to the format's encoder (aac or libopus).
	AudioEncoder string
	AudioBitrate string
	// VideoVolume is the master volume in percent applied to every track.
	VideoVolume int
	// DurationMillis clamps the output length to the video duration.
	DurationMillis int64
	Audios         []audio.Audio
}

// Mixer executes mix passes.
type Mixer struct {
	ffmpegPath string
	logLevel   string
	logger     *slog.Logger
}

// New creates a mixer.
func New(ffmpegPath, logLevel string, logger *slog.Logger) *Mixer {
	return &Mixer{
		ffmpegPath: ffmpegPath,
		logLevel:   logLevel,
		logger:     observability.WithComponent(logger, "audio_mixer"),
	}
}

// filterChain renders one track's filter chain. The input label is the
// track's position in the input list (video is input 0).
func filterChain(index int, a *audio.Audio, videoVolume int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d]", index+1)

	var steps []string

	if a.EndTime > a.StartTime {
		steps = append(steps, fmt.Sprintf("atrim=0:%s", seconds(a.EndTime-a.StartTime)))
	}
	if a.Loop {
		steps = append(steps, "aloop=loop=-1:size=2000000000")
	}
	steps = append(steps, fmt.Sprintf("adelay=%d|%d", a.StartTime, a.StartTime))

	volume := float64(a.Volume*videoVolume) / 10000
	steps = append(steps, fmt.Sprintf("volume=%s", trimFloat(volume)))

	if a.FadeInDuration > 0 {
		steps = append(steps, fmt.Sprintf("afade=t=in:st=%s:d=%s",
			seconds(a.StartTime), seconds(a.FadeInDuration)))
	}
	if a.FadeOutDuration > 0 && a.EndTime > 0 {
		steps = append(steps, fmt.Sprintf("afade=t=out:st=%s:d=%s",
			seconds(a.EndTime-a.FadeOutDuration), seconds(a.FadeOutDuration)))
	}

	sb.WriteString(strings.Join(steps, ","))
	fmt.Fprintf(&sb, "[a%d]", index)
	return sb.String()
}

// BuildFilterGraph renders the complete filter_complex for the mix.
func BuildFilterGraph(audios []audio.Audio, videoVolume int) string {
	if videoVolume <= 0 {
		videoVolume = 100
	}

	chains := make([]string, 0, len(audios)+1)
	labels := make([]string, 0, len(audios))
	for i := range audios {
		chains = append(chains, filterChain(i, &audios[i], videoVolume))
		labels = append(labels, fmt.Sprintf("[a%d]", i))
	}

	mix := fmt.Sprintf("%samix=inputs=%d:normalize=0[aout]",
		strings.Join(labels, ""), len(audios))
	return strings.Join(append(chains, mix), ";")
}

// BuildArgs assembles the FFmpeg argument list for the mix pass.
func BuildArgs(o *Options, ffmpegPath, logLevel string) ([]string, error) {
	if len(o.Audios) == 0 {
		return nil, ErrNoAudio
	}
	if o.VideoPath == "" || o.OutputPath == "" {
		return nil, errors.New("mixer requires video and output paths")
	}
	for i := range o.Audios {
		if err := o.Audios[i].Validate(); err != nil {
			return nil, fmt.Errorf("audio %d: %w", o.Audios[i].ID, err)
		}
		o.Audios[i].ClampEndTime(o.DurationMillis)
	}

	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(logLevel).
		HideBanner().
		Overwrite().
		Input(o.VideoPath)

	for i := range o.Audios {
		a := &o.Audios[i]
		if a.SeekStart > 0 {
			b.InputArgs("-ss", seconds(a.SeekStart))
		}
		if a.SeekEnd > 0 {
			b.InputArgs("-to", seconds(a.SeekEnd))
		}
		b.Input(a.Path)
	}

	b.FilterComplex(BuildFilterGraph(o.Audios, o.VideoVolume))

	audioEncoder := o.AudioEncoder
	if audioEncoder == "" {
		audioEncoder = encoder.DefaultAudioEncoder(o.Format)
	}

	b.OutputArgs("-map", "0:v", "-map", "[aout]").
		VideoCodec("copy").
		AudioCodec(audioEncoder)
	if o.AudioBitrate != "" {
		b.AudioBitrate(o.AudioBitrate)
	}
	if o.DurationMillis > 0 {
		b.OutputArgs("-t", seconds(o.DurationMillis))
	}

	b.Output(o.OutputPath)
	return b.Args(), nil
}

// Mix runs the mix pass.
func (m *Mixer) Mix(ctx context.Context, o *Options) error {
	args, err := BuildArgs(o, m.ffmpegPath, m.logLevel)
	if err != nil {
		return err
	}

	m.logger.Debug("mixing audio",
		slog.Int("tracks", len(o.Audios)),
		slog.String("output", o.OutputPath),
	)

	cmd := ffmpeg.NewCommand(m.ffmpegPath, args)
	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("mixing audio: %w", err)
	}
	return nil
}

// seconds formats milliseconds as decimal seconds.
func seconds(ms int64) string {
	return trimFloat(float64(ms) / 1000)
}

// trimFloat renders a float without a trailing zero fraction.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
