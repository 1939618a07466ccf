// Package scripts carries the JavaScript injected into every captured page:
// the virtual clock shim, the media adapter and the capture context. The
// sources are embedded and prefixed with a serialized settings object.
package scripts

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"
)

//go:embed timeshim.js
var timeShim string

//go:embed mediaadapter.js
var mediaAdapter string

//go:embed capturecontext.js
var captureContext string

// Settings is serialized to window.____config before any shim runs.
type Settings struct {
	FPS       float64 `json:"fps"`
	StartTime int64   `json:"startTime"`
	Duration  int64   `json:"duration"`
	// FrameCount overrides the derived floor(duration*fps/1000) when set.
	FrameCount int64 `json:"frameCount,omitempty"`
	Autostart  bool  `json:"autostart"`

	DateNowEpsilon      bool  `json:"dateNowEpsilon,omitempty"`
	FrameAcquireTimeout int64 `json:"frameAcquireTimeout,omitempty"` // ms

	// VideoDecoderHardwareAcceleration is the WebCodecs hint
	// (no-preference, prefer-hardware, prefer-software).
	VideoDecoderHardwareAcceleration string `json:"videoDecoderHardwareAcceleration,omitempty"`
}

// ConfigScript renders the settings prelude.
func ConfigScript(s Settings) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshaling capture settings: %w", err)
	}
	return "window.____config = " + string(data) + ";", nil
}

// Bootstrap assembles the full document-start injection in load order:
// settings, clock shim, media adapter, capture context.
func Bootstrap(s Settings) (string, error) {
	cfg, err := ConfigScript(s)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(len(cfg) + len(timeShim) + len(mediaAdapter) + len(captureContext) + 8)
	for _, part := range []string{cfg, timeShim, mediaAdapter, captureContext} {
		sb.WriteString(part)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// TimeShim returns the clock shim alone; used when re-injecting after a
// navigation reset.
func TimeShim() string { return timeShim }

// MediaAdapter returns the adapter source.
func MediaAdapter() string { return mediaAdapter }

// CaptureContext returns the capture loop source.
func CaptureContext() string { return captureContext }
