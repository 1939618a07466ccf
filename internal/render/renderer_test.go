package render

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/synthesis"
)

func TestRequestValidate(t *testing.T) {
	valid := func() *Request {
		return &Request{
			OutputPath: "/tmp/out.mp4",
			Width:      1280,
			Height:     720,
			FPS:        30,
			Scenes: []Scene{
				{URL: "https://example.com", Duration: 5000},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"valid", func(*Request) {}, ""},
		{"missing output", func(r *Request) { r.OutputPath = "" }, "output path"},
		{"no scenes", func(r *Request) { r.Scenes = nil }, "at least one scene"},
		{"bad dimensions", func(r *Request) { r.Width = 0 }, "dimensions"},
		{"bad fps", func(r *Request) { r.FPS = -1 }, "fps"},
		{"unknown format", func(r *Request) { r.Format = "avi" }, "format"},
		{"scene without url", func(r *Request) { r.Scenes[0].URL = "" }, "no url"},
		{"scene zero duration", func(r *Request) { r.Scenes[0].Duration = 0 }, "positive"},
		{"opaque background", func(r *Request) { r.BackgroundOpacity = opacityPtr(1) }, ""},
		{"alpha webm", func(r *Request) {
			r.Format = "webm"
			r.OutputPath = "/tmp/out.webm"
			r.BackgroundOpacity = opacityPtr(0)
		}, ""},
		{"alpha requires webm", func(r *Request) { r.BackgroundOpacity = opacityPtr(0.5) }, "requires the webm format"},
		{"opacity out of range", func(r *Request) { r.BackgroundOpacity = opacityPtr(1.2) }, "out of range"},
		{"time action without script", func(r *Request) {
			r.Scenes[0].TimeActions = []synthesis.TimeAction{{Time: 1000}}
		}, "time action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRequestFormatDefault(t *testing.T) {
	r := &Request{}
	assert.Equal(t, "mp4", string(r.format()))
	r.Format = "webm"
	assert.Equal(t, "webm", string(r.format()))
}

func opacityPtr(v float64) *float64 { return &v }

func TestRequestPixelFormat(t *testing.T) {
	r := &Request{Format: "webm"}
	assert.Equal(t, "", r.pixelFormat())

	r.BackgroundOpacity = opacityPtr(1)
	assert.Equal(t, "", r.pixelFormat())

	r.BackgroundOpacity = opacityPtr(0.5)
	assert.Equal(t, "yuva420p", r.pixelFormat())
}

func TestControlWithoutActiveCapture(t *testing.T) {
	ctrl := &Control{}
	assert.ErrorIs(t, ctrl.Pause(context.Background()), ErrNoActiveCapture)
	assert.ErrorIs(t, ctrl.Resume(context.Background()), ErrNoActiveCapture)
}

func TestCaptureFailureKeepsFirstError(t *testing.T) {
	var f captureFailure
	assert.NoError(t, f.get())

	first := errors.New("renderer stalled")
	var wg sync.WaitGroup
	f.set(first)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.set(errors.New("later failure"))
		}()
	}
	wg.Wait()

	assert.ErrorIs(t, f.get(), first)
}

func TestAudioCollectorMergesEndTimeUpdates(t *testing.T) {
	c := newAudioCollector()

	c.add(audio.Audio{ID: 1, URL: "https://cdn/a.mp3", StartTime: 500, Volume: 80})
	c.add(audio.Audio{ID: 2, URL: "https://cdn/b.mp3", StartTime: 1000, Volume: 50})
	// The element was removed at 3200; only id and endTime arrive.
	c.add(audio.Audio{ID: 1, EndTime: 3200})

	tracks := c.tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, int64(1), tracks[0].ID)
	assert.Equal(t, "https://cdn/a.mp3", tracks[0].URL)
	assert.Equal(t, int64(3200), tracks[0].EndTime)
	assert.Equal(t, 80, tracks[0].Volume)
	assert.Equal(t, int64(2), tracks[1].ID)
}

func TestAudioCollectorPreservesArrivalOrder(t *testing.T) {
	c := newAudioCollector()
	c.add(audio.Audio{ID: 7, URL: "https://cdn/late.mp3"})
	c.add(audio.Audio{ID: 3, URL: "https://cdn/early.mp3"})

	tracks := c.tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, int64(7), tracks[0].ID)
	assert.Equal(t, int64(3), tracks[1].ID)
}
