package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult represents the output of ffprobe.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container-level information.
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// ProbeStream contains stream-level information.
type ProbeStream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"` // video, audio
	Width      int               `json:"width,omitempty"`
	Height     int               `json:"height,omitempty"`
	PixFmt     string            `json:"pix_fmt,omitempty"`
	RFrameRate string            `json:"r_frame_rate,omitempty"`
	NbFrames   string            `json:"nb_frames,omitempty"`
	Duration   string            `json:"duration,omitempty"`
	Channels   int               `json:"channels,omitempty"`
	SampleRate string            `json:"sample_rate,omitempty"`
	Tags       map[string]string `json:"tags"`
}

// Prober wraps ffprobe execution.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     60 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe against the given path or URL.
func (p *Prober) Probe(ctx context.Context, target string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		target,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ffprobe timed out after %s: %w", p.timeout, ctx.Err())
		}
		return nil, fmt.Errorf("running ffprobe: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoStream returns the first video stream, or nil.
func (r *ProbeResult) VideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// AudioStream returns the first audio stream, or nil.
func (r *ProbeResult) AudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// HasAudio reports whether any audio stream is present.
func (r *ProbeResult) HasAudio() bool {
	return r.AudioStream() != nil
}

// DurationMillis returns the container duration in milliseconds.
func (r *ProbeResult) DurationMillis() int64 {
	if r.Format.Duration == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return int64(secs * 1000)
}

// IsWebM reports whether the container is WebM/Matroska.
func (r *ProbeResult) IsWebM() bool {
	return strings.Contains(r.Format.FormatName, "webm") ||
		strings.Contains(r.Format.FormatName, "matroska")
}

// AlphaMode returns the ALPHA_MODE tag of the first video stream. A value
// above zero marks a transparent source whose alpha plane must be extracted
// into a mask track.
func (r *ProbeResult) AlphaMode() int {
	v := r.VideoStream()
	if v == nil {
		return 0
	}
	for key, val := range v.Tags {
		if strings.EqualFold(key, "ALPHA_MODE") {
			mode, err := strconv.Atoi(val)
			if err != nil {
				return 0
			}
			return mode
		}
	}
	return 0
}

// Framerate parses the stream frame rate (e.g. "30000/1001").
func (s *ProbeStream) Framerate() float64 {
	return parseFramerate(s.RFrameRate)
}

// FrameCount parses nb_frames, returning 0 when absent.
func (s *ProbeStream) FrameCount() int64 {
	if s.NbFrames == "" {
		return 0
	}
	n, err := strconv.ParseInt(s.NbFrames, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseFramerate parses an ffprobe rational frame rate.
func parseFramerate(fr string) float64 {
	if fr == "" || fr == "0/0" {
		return 0
	}
	parts := strings.SplitN(fr, "/", 2)
	if len(parts) == 1 {
		f, _ := strconv.ParseFloat(parts[0], 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
