package synthesis

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/encoder"
	"github.com/jmylchreest/pagecast/internal/storage"
)

func testChunk(duration int64) *VideoChunk {
	return &VideoChunk{
		Width:    1280,
		Height:   720,
		FPS:      30,
		Duration: duration,
	}
}

func newSynthesizer(t *testing.T, opts Options) *Synthesizer {
	t.Helper()
	paths := storage.NewPaths(config.StorageConfig{
		BaseDir:        t.TempDir(),
		SynthesizerDir: "synthesizer",
	})
	return New(opts, paths, "ffmpeg", slog.New(slog.DiscardHandler))
}

func TestTransitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		tr      *Transition
		wantErr string
	}{
		{"nil is fine", nil, ""},
		{"fade", &Transition{ID: "fade", Duration: 1000}, ""},
		{"circlecrop", &Transition{ID: "circlecrop", Duration: 500}, ""},
		{"unknown id", &Transition{ID: "sparkle", Duration: 1000}, "unknown transition"},
		{"zero duration", &Transition{ID: "fade"}, "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestChunkEffectiveDuration(t *testing.T) {
	c := testChunk(5000)
	assert.Equal(t, int64(5000), c.EffectiveDuration())

	c.Transition = &Transition{ID: "fade", Duration: 1000}
	assert.Equal(t, int64(4000), c.EffectiveDuration())
}

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*VideoChunk)
		wantErr string
	}{
		{"valid", func(c *VideoChunk) {}, ""},
		{"chunkable encoder", func(c *VideoChunk) { c.VideoEncoder = encoder.VideoEncoderLibX264 }, ""},
		{"vp8 not chunkable", func(c *VideoChunk) { c.VideoEncoder = encoder.VideoEncoderLibVPX }, "concatenable"},
		{"zero fps", func(c *VideoChunk) { c.FPS = 0 }, "invalid chunk fps"},
		{"transition too long", func(c *VideoChunk) {
			c.Transition = &Transition{ID: "fade", Duration: 5000}
		}, "exceeds chunk duration"},
		{"transparent background", func(c *VideoChunk) {
			opacity := 0.0
			c.BackgroundOpacity = &opacity
		}, ""},
		{"opacity above one", func(c *VideoChunk) {
			opacity := 1.5
			c.BackgroundOpacity = &opacity
		}, "out of range"},
		{"time action", func(c *VideoChunk) {
			c.TimeActions = []TimeAction{{Time: 1000, Script: "go()"}}
		}, ""},
		{"time action without script", func(c *VideoChunk) {
			c.TimeActions = []TimeAction{{Time: 1000}}
		}, "no script"},
		{"time action negative time", func(c *VideoChunk) {
			c.TimeActions = []TimeAction{{Time: -1, Script: "go()"}}
		}, "negative time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testChunk(5000)
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSynthesizerValidate(t *testing.T) {
	t.Run("rejects empty", func(t *testing.T) {
		s := newSynthesizer(t, Options{OutputPath: "out.mp4", Format: encoder.FormatMP4})
		assert.ErrorContains(t, s.Validate(), "no chunks")
	})

	t.Run("rejects mixed geometry", func(t *testing.T) {
		s := newSynthesizer(t, Options{OutputPath: "out.mp4", Format: encoder.FormatMP4})
		require.NoError(t, s.AddChunk(testChunk(5000)))
		odd := testChunk(5000)
		odd.Width = 1920
		odd.Height = 1080
		require.NoError(t, s.AddChunk(odd))
		assert.ErrorContains(t, s.Validate(), "geometry")
	})

	t.Run("rejects transition longer than successor", func(t *testing.T) {
		s := newSynthesizer(t, Options{OutputPath: "out.mp4", Format: encoder.FormatMP4})
		a := testChunk(5000)
		a.Transition = &Transition{ID: "fade", Duration: 3000}
		require.NoError(t, s.AddChunk(a))
		require.NoError(t, s.AddChunk(testChunk(2000)))
		assert.ErrorContains(t, s.Validate(), "exceeds next chunk duration")
	})

	t.Run("rejects trailing transition", func(t *testing.T) {
		s := newSynthesizer(t, Options{OutputPath: "out.mp4", Format: encoder.FormatMP4})
		require.NoError(t, s.AddChunk(testChunk(5000)))
		last := testChunk(5000)
		last.Transition = &Transition{ID: "fade", Duration: 1000}
		require.NoError(t, s.AddChunk(last))
		assert.ErrorContains(t, s.Validate(), "no successor")
	})
}

func TestOffsetsAndAudioRetagging(t *testing.T) {
	s := newSynthesizer(t, Options{OutputPath: "out.mp4", Format: encoder.FormatMP4})

	a := testChunk(5000)
	a.Transition = &Transition{ID: "fade", Duration: 1000}
	require.NoError(t, s.AddChunk(a))
	require.NoError(t, s.AddChunk(testChunk(5000)))

	assert.Equal(t, int64(0), s.OffsetFor(0))
	assert.Equal(t, int64(4000), s.OffsetFor(1))
	assert.Equal(t, int64(9000), s.TotalDuration())

	s.AddAudio(1, audio.Audio{Path: "a.mp3", Volume: 100, StartTime: 500, EndTime: 2500})
	require.Len(t, s.audios, 1)
	assert.Equal(t, int64(4500), s.audios[0].StartTime)
	assert.Equal(t, int64(6500), s.audios[0].EndTime)
}

func TestInputGroups(t *testing.T) {
	a := testChunk(5000)
	b := testChunk(5000)
	c := testChunk(5000)
	b.Transition = &Transition{ID: "fade", Duration: 1000}
	a.OutputPath, b.OutputPath, c.OutputPath = "a.ts", "b.ts", "c.ts"

	groups := inputGroups([]*VideoChunk{a, b, c})
	require.Len(t, groups, 2)
	assert.Equal(t, "concat:a.ts|b.ts", groupInput(groups[0]))
	assert.Equal(t, "c.ts", groupInput(groups[1]))
}

func TestBuildSpliceArgsPureRemux(t *testing.T) {
	a := testChunk(5000)
	b := testChunk(5000)
	a.OutputPath, b.OutputPath = "a.ts", "b.ts"

	args, err := BuildSpliceArgs([]*VideoChunk{a, b}, &SpliceOptions{
		OutputPath: "out.mp4",
		Format:     encoder.FormatMP4,
		LogLevel:   "error",
	}, "ffmpeg")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i concat:a.ts|b.ts")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.NotContains(t, joined, "filter_complex")
}

func TestBuildSpliceArgsXfadeCascade(t *testing.T) {
	a := testChunk(5000)
	b := testChunk(5000)
	c := testChunk(5000)
	a.Transition = &Transition{ID: "fade", Duration: 1000}
	b.Transition = &Transition{ID: "wipeleft", Duration: 500}
	a.OutputPath, b.OutputPath, c.OutputPath = "a.ts", "b.ts", "c.ts"

	args, err := BuildSpliceArgs([]*VideoChunk{a, b, c}, &SpliceOptions{
		OutputPath: "out.mp4",
		Format:     encoder.FormatMP4,
		Quality:    100,
		LogLevel:   "error",
	}, "ffmpeg")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	// First boundary at a's effective end, second accumulates b's.
	assert.Contains(t, joined, "[0][1]xfade=transition=fade:duration=1:offset=4[v0]")
	assert.Contains(t, joined, "[v0][2]xfade=transition=wipeleft:duration=0.5:offset=8.5[v1]")
	assert.Contains(t, joined, "-map [v1]")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-b:v 2560k")
}

func TestBuildSpliceArgsCoverOverlay(t *testing.T) {
	a := testChunk(5000)
	a.OutputPath = "a.ts"

	args, err := BuildSpliceArgs([]*VideoChunk{a}, &SpliceOptions{
		OutputPath:      "out.mp4",
		Format:          encoder.FormatMP4,
		Quality:         100,
		AttachCoverPath: "cover.png",
		LogLevel:        "error",
	}, "ffmpeg")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i cover.png")
	assert.Contains(t, joined, "[0][1]overlay=0:0:repeatlast=0[vout]")
	assert.Contains(t, joined, "-map [vout]")
}

func TestBuildSpliceArgsPixelFormat(t *testing.T) {
	a := testChunk(5000)
	b := testChunk(5000)
	a.Transition = &Transition{ID: "fade", Duration: 1000}
	a.OutputPath, b.OutputPath = "a.ts", "b.ts"

	t.Run("defaults to yuv420p", func(t *testing.T) {
		args, err := BuildSpliceArgs([]*VideoChunk{a, b}, &SpliceOptions{
			OutputPath: "out.mp4",
			Format:     encoder.FormatMP4,
			Quality:    100,
			LogLevel:   "error",
		}, "ffmpeg")
		require.NoError(t, err)
		assert.Contains(t, strings.Join(args, " "), "-pix_fmt yuv420p")
	})

	t.Run("alpha webm keeps the alpha plane", func(t *testing.T) {
		args, err := BuildSpliceArgs([]*VideoChunk{a, b}, &SpliceOptions{
			OutputPath:  "out.webm",
			Format:      encoder.FormatWebM,
			Quality:     100,
			PixelFormat: "yuva420p",
			LogLevel:    "error",
		}, "ffmpeg")
		require.NoError(t, err)

		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-pix_fmt yuva420p")
		assert.Contains(t, joined, "-f webm")
		assert.NotContains(t, joined, "yuv420p ")
	})
}

func TestBuildSpliceArgsErrors(t *testing.T) {
	a := testChunk(5000)
	a.OutputPath = "a.ts"

	_, err := BuildSpliceArgs(nil, &SpliceOptions{OutputPath: "o.mp4"}, "ffmpeg")
	assert.ErrorContains(t, err, "no chunks")

	_, err = BuildSpliceArgs([]*VideoChunk{a}, &SpliceOptions{}, "ffmpeg")
	assert.ErrorContains(t, err, "output path")

	missing := testChunk(5000)
	_, err = BuildSpliceArgs([]*VideoChunk{missing}, &SpliceOptions{OutputPath: "o.mp4"}, "ffmpeg")
	assert.ErrorContains(t, err, "missing intermediate path")
}
