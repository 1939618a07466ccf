package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		audio   Audio
		wantErr string
	}{
		{"valid", Audio{Path: "a.mp3", Volume: 80}, ""},
		{"valid url", Audio{URL: "https://x/a.mp3", Volume: 100}, ""},
		{"missing source", Audio{Volume: 50}, "path or url"},
		{"volume too high", Audio{Path: "a.mp3", Volume: 101}, "volume"},
		{"volume negative", Audio{Path: "a.mp3", Volume: -1}, "volume"},
		{"seek inverted", Audio{Path: "a.mp3", Volume: 50, SeekStart: 5000, SeekEnd: 2000}, "seekStart"},
		{"times inverted", Audio{Path: "a.mp3", Volume: 50, StartTime: 9000, EndTime: 1000}, "startTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.audio.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClampEndTime(t *testing.T) {
	tests := []struct {
		name     string
		endTime  int64
		duration int64
		want     int64
	}{
		{"unset becomes duration", 0, 10000, 10000},
		{"infinite becomes duration", math.MaxInt64, 10000, 10000},
		{"overlong clamped", 20000, 10000, 10000},
		{"in range kept", 6000, 10000, 6000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Audio{Path: "a.mp3", EndTime: tt.endTime}
			a.ClampEndTime(tt.duration)
			assert.Equal(t, tt.want, a.EndTime)
		})
	}
}

func TestShifted(t *testing.T) {
	a := Audio{Path: "a.mp3", StartTime: 1000, EndTime: 5000}
	b := a.Shifted(4000)

	assert.Equal(t, int64(5000), b.StartTime)
	assert.Equal(t, int64(9000), b.EndTime)
	// Original untouched.
	assert.Equal(t, int64(1000), a.StartTime)

	open := Audio{Path: "a.mp3", StartTime: 0}
	assert.Equal(t, int64(0), open.Shifted(4000).EndTime)
}
