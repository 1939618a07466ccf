package mixer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/encoder"
)

func TestFilterChain(t *testing.T) {
	tests := []struct {
		name        string
		audio       audio.Audio
		videoVolume int
		want        string
	}{
		{
			name:        "plain track",
			audio:       audio.Audio{Path: "a.mp3", Volume: 100, StartTime: 0, EndTime: 10000},
			videoVolume: 100,
			want:        "[1]atrim=0:10,adelay=0|0,volume=1[a0]",
		},
		{
			name:        "delayed half volume",
			audio:       audio.Audio{Path: "a.mp3", Volume: 50, StartTime: 2500, EndTime: 10000},
			videoVolume: 100,
			want:        "[1]atrim=0:7.5,adelay=2500|2500,volume=0.5[a0]",
		},
		{
			name:        "master volume compounds",
			audio:       audio.Audio{Path: "a.mp3", Volume: 50, EndTime: 4000},
			videoVolume: 50,
			want:        "[1]atrim=0:4,adelay=0|0,volume=0.25[a0]",
		},
		{
			name:        "looped",
			audio:       audio.Audio{Path: "a.mp3", Volume: 100, EndTime: 30000, Loop: true},
			videoVolume: 100,
			want:        "[1]atrim=0:30,aloop=loop=-1:size=2000000000,adelay=0|0,volume=1[a0]",
		},
		{
			name: "fades",
			audio: audio.Audio{
				Path: "a.mp3", Volume: 100,
				StartTime: 1000, EndTime: 11000,
				FadeInDuration: 500, FadeOutDuration: 2000,
			},
			videoVolume: 100,
			want:        "[1]atrim=0:10,adelay=1000|1000,volume=1,afade=t=in:st=1:d=0.5,afade=t=out:st=9:d=2[a0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterChain(0, &tt.audio, tt.videoVolume))
		})
	}
}

func TestBuildFilterGraphMultipleTracks(t *testing.T) {
	audios := []audio.Audio{
		{Path: "a.mp3", Volume: 100, EndTime: 5000},
		{Path: "b.mp3", Volume: 80, StartTime: 5000, EndTime: 10000},
	}

	graph := BuildFilterGraph(audios, 100)

	parts := strings.Split(graph, ";")
	require.Len(t, parts, 3)
	assert.Equal(t, "[1]atrim=0:5,adelay=0|0,volume=1[a0]", parts[0])
	assert.Equal(t, "[2]atrim=0:5,adelay=5000|5000,volume=0.8[a1]", parts[1])
	assert.Equal(t, "[a0][a1]amix=inputs=2:normalize=0[aout]", parts[2])
}

func TestBuildArgsMP4(t *testing.T) {
	o := &Options{
		VideoPath:      "video.mp4",
		OutputPath:     "out.mp4",
		Format:         encoder.FormatMP4,
		DurationMillis: 10000,
		Audios: []audio.Audio{
			{Path: "a.mp3", Volume: 100},
		},
	}

	args, err := BuildArgs(o, "ffmpeg", "error")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i video.mp4")
	assert.Contains(t, joined, "-i a.mp3")
	assert.Contains(t, joined, "-map 0:v -map [aout]")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-t 10")
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestBuildArgsWebMUsesOpus(t *testing.T) {
	o := &Options{
		VideoPath:      "video.webm",
		OutputPath:     "out.webm",
		Format:         encoder.FormatWebM,
		DurationMillis: 5000,
		Audios:         []audio.Audio{{Path: "a.mp3", Volume: 100}},
	}

	args, err := BuildArgs(o, "ffmpeg", "error")
	require.NoError(t, err)
	assert.Contains(t, strings.Join(args, " "), "-c:a libopus")
}

func TestBuildArgsSeekClipsInput(t *testing.T) {
	o := &Options{
		VideoPath:      "video.mp4",
		OutputPath:     "out.mp4",
		Format:         encoder.FormatMP4,
		DurationMillis: 10000,
		Audios: []audio.Audio{
			{Path: "a.mp3", Volume: 100, SeekStart: 1500, SeekEnd: 6500},
		},
	}

	args, err := BuildArgs(o, "ffmpeg", "error")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-ss 1.5 -to 6.5 -i a.mp3")
}

func TestBuildArgsClampsOpenEndedTrack(t *testing.T) {
	o := &Options{
		VideoPath:      "video.mp4",
		OutputPath:     "out.mp4",
		Format:         encoder.FormatMP4,
		DurationMillis: 8000,
		Audios: []audio.Audio{
			{Path: "a.mp3", Volume: 100}, // no end time
		},
	}

	args, err := BuildArgs(o, "ffmpeg", "error")
	require.NoError(t, err)
	assert.Contains(t, strings.Join(args, " "), "atrim=0:8")
}

func TestBuildArgsErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "no audios",
			opts:    Options{VideoPath: "v.mp4", OutputPath: "o.mp4"},
			wantErr: "no audio tracks",
		},
		{
			name: "missing video path",
			opts: Options{
				OutputPath: "o.mp4",
				Audios:     []audio.Audio{{Path: "a.mp3", Volume: 100}},
			},
			wantErr: "video and output paths",
		},
		{
			name: "invalid track",
			opts: Options{
				VideoPath:  "v.mp4",
				OutputPath: "o.mp4",
				Audios:     []audio.Audio{{Path: "a.mp3", Volume: 150}},
			},
			wantErr: "volume 150 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildArgs(&tt.opts, "ffmpeg", "error")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
