package scripts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigScriptSerialization(t *testing.T) {
	s := Settings{
		FPS:                 30,
		StartTime:           0,
		Duration:            10000,
		Autostart:           true,
		DateNowEpsilon:      true,
		FrameAcquireTimeout: 30000,
	}

	script, err := ConfigScript(s)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(script, "window.____config = {"))
	assert.Contains(t, script, `"fps":30`)
	assert.Contains(t, script, `"duration":10000`)
	assert.Contains(t, script, `"dateNowEpsilon":true`)
	assert.Contains(t, script, `"autostart":true`)
}

func TestBootstrapOrder(t *testing.T) {
	out, err := Bootstrap(Settings{FPS: 25, Duration: 5000, Autostart: true})
	require.NoError(t, err)

	config := strings.Index(out, "window.____config")
	shim := strings.Index(out, "____timeShimInstalled")
	adapter := strings.Index(out, "____mediaAdapterInstalled")
	capture := strings.Index(out, "____CaptureContext")

	require.NotEqual(t, -1, config)
	require.NotEqual(t, -1, shim)
	require.NotEqual(t, -1, adapter)
	require.NotEqual(t, -1, capture)
	assert.Less(t, config, shim)
	assert.Less(t, shim, adapter)
	assert.Less(t, adapter, capture)
}

func TestEmbeddedSourcesExposeContract(t *testing.T) {
	// The host evaluates these entry points; renames break capture.
	assert.Contains(t, TimeShim(), "____rpcResolve")
	assert.Contains(t, TimeShim(), "____pagecastEmit")
	assert.Contains(t, MediaAdapter(), "____scheduleMedia")
	assert.Contains(t, MediaAdapter(), "____convertMedia")
	assert.Contains(t, CaptureContext(), "____captureCtx")
	assert.Contains(t, CaptureContext(), "screencastCompleted")
}

func TestBootstrapOmitsUnsetOptionals(t *testing.T) {
	script, err := ConfigScript(Settings{FPS: 30, Duration: 1000})
	require.NoError(t, err)
	assert.NotContains(t, script, "dateNowEpsilon")
	assert.NotContains(t, script, "frameCount")
	assert.NotContains(t, script, "videoDecoderHardwareAcceleration")
}
