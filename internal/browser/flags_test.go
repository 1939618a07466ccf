package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/pagecast/internal/config"
)

func TestLaunchArgsDeterministic(t *testing.T) {
	args := launchArgs(config.BrowserConfig{UseGPU: true, UseAngle: true})

	assert.Contains(t, args, "--enable-begin-frame-control")
	assert.Contains(t, args, "--run-all-compositor-stages-before-draw")
	assert.Contains(t, args, "--deterministic-mode")
	assert.Contains(t, args, "--disable-threaded-animation")
	assert.Contains(t, args, "--disable-threaded-scrolling")
	assert.Contains(t, args, "--mute-audio")
	assert.Contains(t, args, "--use-angle=gl")
	assert.NotContains(t, args, "--disable-gpu")
}

func TestLaunchArgsCompatibleMode(t *testing.T) {
	args := launchArgs(config.BrowserConfig{CompatibleRenderingMode: true})

	assert.NotContains(t, args, "--enable-begin-frame-control")
	// The rest of the deterministic block still applies.
	assert.Contains(t, args, "--deterministic-mode")
}

func TestLaunchArgsGPUDisabled(t *testing.T) {
	args := launchArgs(config.BrowserConfig{UseGPU: false})

	assert.Contains(t, args, "--disable-gpu")
	assert.NotContains(t, args, "--enable-gpu-rasterization")
	assert.NotContains(t, args, "--use-angle=gl")
}

func TestLaunchArgsExtraArgsAppended(t *testing.T) {
	args := launchArgs(config.BrowserConfig{ExtraArgs: []string{"--lang=en-US"}})
	assert.Equal(t, "--lang=en-US", args[len(args)-1])
}

func TestAllocatorOptionsBuild(t *testing.T) {
	// Option construction must not panic and must include one option per
	// switch plus the base options.
	opts := allocatorOptions(config.BrowserConfig{
		ExecutablePath: "/usr/bin/chromium",
		Headless:       true,
		UseGPU:         true,
	}, t.TempDir())
	assert.Greater(t, len(opts), 20)
}
