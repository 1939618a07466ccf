package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/encoder"
	"github.com/jmylchreest/pagecast/internal/storage"
	"github.com/jmylchreest/pagecast/internal/synthesis"
)

// Scene is one page captured into one chunk of the composite.
type Scene struct {
	URL string `json:"url"`
	// Duration is the scene length in milliseconds.
	Duration     int64                 `json:"duration"`
	VideoEncoder string                `json:"videoEncoder,omitempty"`
	Transition   *synthesis.Transition `json:"transition,omitempty"`
	Audios       []audio.Audio         `json:"audios,omitempty"`
	// TimeActions are scripts evaluated in the page at virtual timestamps.
	TimeActions []synthesis.TimeAction `json:"timeActions,omitempty"`
}

// Request describes a full render job.
type Request struct {
	OutputPath string  `json:"outputPath"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	Format     string  `json:"format"`

	VideoEncoder string `json:"videoEncoder,omitempty"`
	Bitrate      string `json:"bitrate,omitempty"`
	Quality      int    `json:"quality,omitempty"`
	AudioBitrate string `json:"audioBitrate,omitempty"`
	// VideoVolume is the master volume percent applied to every track.
	VideoVolume     int    `json:"videoVolume,omitempty"`
	AttachCoverPath string `json:"attachCoverPath,omitempty"`
	// BackgroundOpacity sets the page background alpha (0-1). Values below
	// 1 produce transparent output and require the webm format.
	BackgroundOpacity *float64 `json:"backgroundOpacity,omitempty"`

	Scenes []Scene `json:"scenes"`
	// Audios are composite-level tracks, timed against the final timeline.
	Audios []audio.Audio `json:"audios,omitempty"`
}

// Validate checks the request shape before any browser work starts.
func (r *Request) Validate() error {
	if r.OutputPath == "" {
		return errors.New("render request needs an output path")
	}
	if len(r.Scenes) == 0 {
		return errors.New("render request needs at least one scene")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid render dimensions %dx%d", r.Width, r.Height)
	}
	if r.FPS <= 0 {
		return fmt.Errorf("invalid render fps %v", r.FPS)
	}
	switch encoder.Format(r.Format) {
	case encoder.FormatMP4, encoder.FormatWebM:
	case "":
	default:
		return fmt.Errorf("unknown render format %q", r.Format)
	}
	if r.BackgroundOpacity != nil {
		if *r.BackgroundOpacity < 0 || *r.BackgroundOpacity > 1 {
			return fmt.Errorf("background opacity %v out of range 0-1", *r.BackgroundOpacity)
		}
		if r.alpha() && r.format() != encoder.FormatWebM {
			return errors.New("transparent output requires the webm format")
		}
	}
	for i, s := range r.Scenes {
		if s.URL == "" {
			return fmt.Errorf("scene %d has no url", i)
		}
		if s.Duration <= 0 {
			return fmt.Errorf("scene %d duration must be positive", i)
		}
		for j, ta := range s.TimeActions {
			if ta.Time < 0 || ta.Script == "" {
				return fmt.Errorf("scene %d time action %d needs a non-negative time and a script", i, j)
			}
		}
	}
	return nil
}

// alpha reports whether the output carries transparency.
func (r *Request) alpha() bool {
	return r.BackgroundOpacity != nil && *r.BackgroundOpacity < 1
}

// pixelFormat returns the pixel format forced by the request, or empty for
// the per-stage defaults.
func (r *Request) pixelFormat() string {
	if r.alpha() {
		return "yuva420p"
	}
	return ""
}

func (r *Request) format() encoder.Format {
	if r.Format == "" {
		return encoder.FormatMP4
	}
	return encoder.Format(r.Format)
}

// Render runs a full job: one chunk per scene, splice, audio mix. The
// progress callback receives percentages in 0-100.
func (rd *Renderer) Render(ctx context.Context, req *Request, paths *storage.Paths, progress func(float64)) (string, error) {
	return rd.RenderControlled(ctx, req, paths, progress, nil)
}

// RenderControlled runs a full job with an optional capture control. The
// control's pause and resume follow the job's active page across scenes.
func (rd *Renderer) RenderControlled(ctx context.Context, req *Request, paths *storage.Paths, progress func(float64), ctrl *Control) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	quality := req.Quality
	if quality == 0 {
		quality = rd.cfg.Encoder.Quality
	}
	audioBitrate := req.AudioBitrate
	if audioBitrate == "" {
		audioBitrate = rd.cfg.Encoder.AudioBitrate
	}

	syn := synthesis.New(synthesis.Options{
		OutputPath:          req.OutputPath,
		Format:              req.format(),
		VideoEncoder:        req.VideoEncoder,
		Bitrate:             req.Bitrate,
		Quality:             quality,
		AudioBitrate:        audioBitrate,
		VideoVolume:         req.VideoVolume,
		AttachCoverPath:     req.AttachCoverPath,
		PixelFormat:         req.pixelFormat(),
		LogLevel:            rd.cfg.FFmpeg.LogLevel,
		ParallelWriteFrames: rd.cfg.Encoder.ParallelWriteFrames,
	}, paths, rd.cfg.FFmpeg.FFmpegPath, rd.logger)

	if progress != nil {
		syn.SetProgress(progress)
	}

	for i, scene := range req.Scenes {
		err := syn.AddChunk(&synthesis.VideoChunk{
			URL:               scene.URL,
			Width:             req.Width,
			Height:            req.Height,
			FPS:               req.FPS,
			Duration:          scene.Duration,
			VideoEncoder:      scene.VideoEncoder,
			BackgroundOpacity: req.BackgroundOpacity,
			Transition:        scene.Transition,
			Audios:            scene.Audios,
			TimeActions:       scene.TimeActions,
		})
		if err != nil {
			return "", fmt.Errorf("scene %d: %w", i, err)
		}
	}

	// Composite-level tracks sit on the final timeline already; they join
	// at offset zero.
	for _, a := range req.Audios {
		resolved, err := rd.pre.ProcessAudio(ctx, &a)
		if err != nil {
			return "", fmt.Errorf("composite audio: %w", err)
		}
		syn.AddAudio(0, *resolved)
	}

	return syn.Synthesize(ctx, &jobRun{rd: rd, ctrl: ctrl})
}

// jobRun binds one job's capture control to the renderer for the duration
// of a synthesis run.
type jobRun struct {
	rd   *Renderer
	ctrl *Control
}

func (j *jobRun) RenderChunk(ctx context.Context, chunk *synthesis.VideoChunk, enc *encoder.FrameEncoder) error {
	return j.rd.renderChunk(ctx, chunk, enc, j.ctrl)
}
