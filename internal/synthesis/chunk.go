package synthesis

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/ffmpeg"
)

// VideoChunk is one scene of the composite. Chunks are encoded separately
// into MPEG-TS intermediates and spliced afterwards.
type VideoChunk struct {
	// OutputPath is the intermediate .ts location, assigned by the
	// synthesizer when unset.
	OutputPath string `json:"outputPath,omitempty"`

	URL    string  `json:"url"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	// Duration is the scene length in milliseconds.
	Duration int64 `json:"duration"`

	// VideoEncoder must produce an H.264, H.265 or VP9 bitstream so the
	// chunk can be concatenated.
	VideoEncoder string `json:"videoEncoder,omitempty"`

	// BackgroundOpacity sets the page background alpha (0-1). Unset means
	// opaque. Values below 1 need a pixel format that carries alpha.
	BackgroundOpacity *float64 `json:"backgroundOpacity,omitempty"`

	Transition  *Transition   `json:"transition,omitempty"`
	Audios      []audio.Audio `json:"audios,omitempty"`
	TimeActions []TimeAction  `json:"timeActions,omitempty"`
}

// TimeAction is a script evaluated in the page when the virtual clock
// reaches Time.
type TimeAction struct {
	// Time is the virtual timestamp in milliseconds.
	Time   int64  `json:"time"`
	Script string `json:"script"`
}

// Validate checks chunk-local invariants. Cross-chunk checks (shared
// geometry, neighbor durations) live on the synthesizer.
func (c *VideoChunk) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid chunk dimensions %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("invalid chunk fps %v", c.FPS)
	}
	if c.Duration <= 0 {
		return errors.New("chunk duration must be positive")
	}
	if c.VideoEncoder != "" {
		if _, err := ffmpeg.ChunkBitstreamFilter(c.VideoEncoder); err != nil {
			return err
		}
	}
	if c.BackgroundOpacity != nil && (*c.BackgroundOpacity < 0 || *c.BackgroundOpacity > 1) {
		return fmt.Errorf("background opacity %v out of range 0-1", *c.BackgroundOpacity)
	}
	for i, ta := range c.TimeActions {
		if ta.Time < 0 {
			return fmt.Errorf("time action %d has negative time %d", i, ta.Time)
		}
		if ta.Script == "" {
			return fmt.Errorf("time action %d has no script", i)
		}
	}
	if err := c.Transition.Validate(); err != nil {
		return err
	}
	if c.Transition != nil && c.Transition.Duration >= c.Duration {
		return fmt.Errorf("transition duration %dms exceeds chunk duration %dms",
			c.Transition.Duration, c.Duration)
	}
	return nil
}

// EffectiveDuration is the chunk's contribution to the composite timeline.
// The transition window overlaps the next chunk and is attributed here.
func (c *VideoChunk) EffectiveDuration() int64 {
	if c.Transition != nil {
		return c.Duration - c.Transition.Duration
	}
	return c.Duration
}

// FrameCount returns the number of frames this chunk renders.
func (c *VideoChunk) FrameCount() int64 {
	return int64(float64(c.Duration) * c.FPS / 1000)
}
