package browser

import (
	goruntime "runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/pagecast/internal/config"
)

// launchArgs builds the Chromium switch list for a capture browser. The
// deterministic block forces a single externally driven compositor so that
// beginFrame produces identical pixels for identical inputs.
func launchArgs(cfg config.BrowserConfig) []string {
	args := []string{
		"--run-all-compositor-stages-before-draw",
		"--deterministic-mode",
		"--disable-threaded-animation",
		"--disable-threaded-scrolling",
		"--disable-checker-imaging",
		"--disable-image-animation-resync",
		"--disable-new-content-rendering-timeout",
		"--disable-partial-raster",
		"--disable-skia-runtime-opts",
		"--disable-background-media-suspend",
		"--disable-renderer-backgrounding",
		"--disable-backgrounding-occluded-windows",
		"--disable-ipc-flooding-protection",
		"--autoplay-policy=no-user-gesture-required",
		"--mute-audio",
		"--hide-scrollbars",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-extensions",
		"--disable-default-apps",
		"--disable-sync",
		"--disable-breakpad",
		"--disable-component-update",
		"--disable-domain-reliability",
		"--disable-client-side-phishing-detection",
		"--disable-hang-monitor",
		"--disable-popup-blocking",
		"--disable-prompt-on-repost",
		"--metrics-recording-only",
	}

	// beginFrame control is the deterministic capture transport; compatible
	// mode leaves the compositor free-running and uses plain screenshots.
	if !cfg.CompatibleRenderingMode {
		args = append(args, "--enable-begin-frame-control")
	}

	if cfg.UseGPU {
		args = append(args,
			"--enable-gpu-rasterization",
			"--enable-zero-copy",
			"--ignore-gpu-blocklist",
		)
		if cfg.UseAngle {
			args = append(args, "--use-angle=gl")
		}
	} else {
		args = append(args, "--disable-gpu", "--disable-software-rasterizer")
	}

	// Renderer process multiplexing defeats beginFrame ordering on Linux.
	if goruntime.GOOS == "linux" {
		args = append(args, "--no-sandbox", "--single-process", "--no-zygote")
	}

	if cfg.DebugFrontend {
		args = append(args, "--auto-open-devtools-for-tabs")
	}

	args = append(args, cfg.ExtraArgs...)
	return args
}

// allocatorOptions converts the switch list into chromedp allocator options.
func allocatorOptions(cfg config.BrowserConfig, userDataDir string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(userDataDir),
	}
	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	for _, arg := range launchArgs(cfg) {
		name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}
