// Package page drives one browser tab through a capture run: script
// injection, request interception, the page RPC surface, CSS animation
// seeking and frame capture via the DevTools protocol.
package page

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/animation"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/headlessexperimental"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/fonts"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/page/scripts"
	"github.com/jmylchreest/pagecast/internal/preprocess"
)

const bindingName = "____pagecastEmit"

// ErrUnavailable marks a page whose renderer stalled; it must be discarded,
// never reused.
var ErrUnavailable = errors.New("page unavailable")

// preprocessRoute and fontRoute are the intercepted URL paths.
const preprocessRoute = "/api/video_preprocess"

// Options wires a page's collaborators.
type Options struct {
	Capture      config.CaptureConfig
	Settings     scripts.Settings
	Preprocessor *preprocess.Preprocessor
	Fonts        *fonts.Cache
	// CompatibleMode captures with Page.captureScreenshot instead of
	// beginFrame (platforms where beginFrame is unreliable).
	CompatibleMode bool
	// LottieSource, when non-empty, is evaluated after navigation and
	// re-homed to ____lottie so page code cannot observe it.
	LottieSource string
	Logger       *slog.Logger
}

// Page is the host-side controller for one tab.
type Page struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	logger *slog.Logger

	mu                sync.Mutex
	state             State
	captureURL        string
	backgroundOpacity float64
	lastSeekTime      int64

	anims       *animationTracker
	timeActions *timeActionStore

	onFrame    func(data []byte)
	onAudio    func(a audio.Audio)
	onComplete func()
	onError    func(err error)

	completed chan struct{}
	audioSeen map[int64]bool
}

// New attaches a page to a browser context. The tab is created lazily by
// chromedp on the first action.
func New(browserCtx context.Context, opts Options) *Page {
	ctx, cancel := chromedp.NewContext(browserCtx)
	p := &Page{
		ID:                ulid.Make().String(),
		ctx:               ctx,
		cancel:            cancel,
		opts:              opts,
		logger:            observability.WithComponent(opts.Logger, "page"),
		state:             StateUninitialized,
		backgroundOpacity: 1,
		anims:             newAnimationTracker(),
		timeActions:       newTimeActionStore(opts.Capture.TimeActionsDrain),
		completed:         make(chan struct{}),
		audioSeen:         make(map[int64]bool),
	}
	p.logger = p.logger.With(slog.String("page_id", p.ID))
	return p
}

// OnFrame registers the captured-frame sink.
func (p *Page) OnFrame(fn func([]byte)) { p.mu.Lock(); p.onFrame = fn; p.mu.Unlock() }

// OnAudio registers the audio descriptor sink.
func (p *Page) OnAudio(fn func(audio.Audio)) { p.mu.Lock(); p.onAudio = fn; p.mu.Unlock() }

// OnComplete registers the completion hook.
func (p *Page) OnComplete(fn func()) { p.mu.Lock(); p.onComplete = fn; p.mu.Unlock() }

// OnError registers the error sink.
func (p *Page) OnError(fn func(error)) { p.mu.Lock(); p.onError = fn; p.mu.Unlock() }

// State returns the current lifecycle state.
func (p *Page) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Page) setState(to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == to {
		return nil
	}
	if !canTransition(p.state, to) {
		return fmt.Errorf("invalid page transition %s -> %s", p.state, to)
	}
	p.logger.Debug("page state", slog.String("from", p.state.String()), slog.String("to", to.String()))
	p.state = to
	return nil
}

// Init prepares the tab: user agent, CSP bypass, request interception, the
// RPC binding and the document-start script injection.
func (p *Page) Init(ctx context.Context) error {
	bootstrap, err := scripts.Bootstrap(p.opts.Settings)
	if err != nil {
		return err
	}

	chromedp.ListenTarget(p.ctx, p.handleEvent)

	err = chromedp.Run(p.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if ua := p.opts.Capture.UserAgent; ua != "" {
				if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
					return err
				}
			}
			if err := cdppage.SetBypassCSP(true).Do(ctx); err != nil {
				return err
			}
			if err := runtime.AddBinding(bindingName).Do(ctx); err != nil {
				return err
			}
			if _, err := cdppage.AddScriptToEvaluateOnNewDocument(bootstrap).Do(ctx); err != nil {
				return err
			}
			return fetch.Enable().WithPatterns([]*fetch.RequestPattern{
				{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
			}).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("initializing page: %w", err)
	}
	return p.setState(StateReady)
}

// Configure overrides the capture settings for the next navigation.
// Document-start scripts run in registration order, so a later config
// assignment wins over the one injected at Init.
func (p *Page) Configure(ctx context.Context, s scripts.Settings) error {
	cfg, err := scripts.ConfigScript(s)
	if err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(cfg).Do(ctx)
		return err
	}))
}

// SetViewport resizes the capture surface.
func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	return chromedp.Run(p.ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

// Goto navigates to the capture target and prepares the capture context.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := checkNavigable(url, p.opts.Capture.AllowUnsafeContext); err != nil {
		return err
	}
	p.resetNavigationState(url)

	err := chromedp.Run(p.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return animation.Enable().Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return p.preparePage()
}

// SetContent loads literal HTML instead of a URL.
func (p *Page) SetContent(ctx context.Context, html string) error {
	p.resetNavigationState("about:blank")

	err := chromedp.Run(p.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return animation.Enable().Do(ctx)
		}),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := cdppage.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return cdppage.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("setting page content: %w", err)
	}
	return p.preparePage()
}

func (p *Page) resetNavigationState(url string) {
	p.mu.Lock()
	p.captureURL = url
	p.mu.Unlock()
	p.anims.Reset()
	p.timeActions.Reset()
	p.mu.Lock()
	p.audioSeen = make(map[int64]bool)
	p.mu.Unlock()
}

// preparePage injects the post-navigation extras and initializes the
// in-page capture context.
func (p *Page) preparePage() error {
	actions := []chromedp.Action{
		chromedp.Evaluate(baseStyleScript, nil),
	}
	if p.opts.LottieSource != "" {
		wrapped := "(() => {" + p.opts.LottieSource +
			";window.____lottie = window.lottie; try { delete window.lottie; } catch (e) {}})();"
		actions = append(actions, chromedp.Evaluate(wrapped, nil))
	}
	actions = append(actions, chromedp.Evaluate("window.____captureCtx.init();", nil))

	if err := chromedp.Run(p.ctx, actions...); err != nil {
		return fmt.Errorf("preparing page: %w", err)
	}
	return nil
}

// baseStyleScript normalizes the capture viewport.
const baseStyleScript = `(() => {
	const style = document.createElement('style');
	style.textContent = 'html,body{margin:0;padding:0;overflow:hidden;}::-webkit-scrollbar{display:none;}';
	document.head.appendChild(style);
})();`

// SetBackgroundOpacity adjusts the page background alpha; opacity below 1
// switches frame capture to png.
func (p *Page) SetBackgroundOpacity(opacity float64) error {
	p.mu.Lock()
	p.backgroundOpacity = opacity
	p.mu.Unlock()
	return chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDefaultBackgroundColorOverride().
			WithColor(&cdp.RGBA{R: 255, G: 255, B: 255, A: opacity}).Do(ctx)
	}))
}

// AddTimeAction schedules a host callback at virtual time t.
func (p *Page) AddTimeAction(t int64, fn TimeAction) {
	p.timeActions.Add(t, fn)
}

// Evaluate runs a script in the page, discarding its result.
func (p *Page) Evaluate(ctx context.Context, script string) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(script, nil))
}

// StartCapture flips the page into CAPTURING and starts the in-page loop
// when autostart was disabled.
func (p *Page) StartCapture(ctx context.Context) error {
	if err := p.setState(StateCapturing); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate("window.____captureCtx.start();", nil))
}

// Pause suspends the capture loop at the next tick boundary.
func (p *Page) Pause(ctx context.Context) error {
	if err := p.setState(StatePaused); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate("window.____captureCtx.pause();", nil))
}

// Resume releases a paused loop.
func (p *Page) Resume(ctx context.Context) error {
	if err := p.setState(StateCapturing); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate("window.____captureCtx.resume();", nil))
}

// Abort asks the loop to stop; completion still drains through
// screencastCompleted.
func (p *Page) Abort(ctx context.Context) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate("window.____captureCtx.abort();", nil))
}

// WaitComplete blocks until the capture run finishes or the context ends.
func (p *Page) WaitComplete(ctx context.Context) error {
	select {
	case <-p.completed:
		if p.State() == StateUnavailabled {
			return ErrUnavailable
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf("page closed during capture: %w", p.ctx.Err())
	}
}

// Reusable reports whether the page can be returned to the pool.
func (p *Page) Reusable() bool {
	s := p.State()
	return s == StateReady || s == StateStopped
}

// Close tears the tab down.
func (p *Page) Close() error {
	_ = p.setState(StateClosed)
	p.cancel()
	return nil
}

// markUnavailable flags a fatal renderer condition and releases waiters.
func (p *Page) markUnavailable(cause error) {
	p.mu.Lock()
	if p.state == StateUnavailabled || p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateUnavailabled
	onError := p.onError
	p.mu.Unlock()

	p.logger.Error("page unavailable", observability.Err(cause))
	if onError != nil {
		onError(fmt.Errorf("%w: %v", ErrUnavailable, cause))
	}
	p.signalComplete()
}

func (p *Page) signalComplete() {
	p.mu.Lock()
	select {
	case <-p.completed:
	default:
		close(p.completed)
	}
	p.mu.Unlock()
}

// handleEvent dispatches CDP events from the tab.
func (p *Page) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *fetch.EventRequestPaused:
		go p.interceptRequest(e)
	case *runtime.EventBindingCalled:
		if e.Name == bindingName {
			go p.handleRPC(e.Payload)
		}
	case *animation.EventAnimationStarted:
		p.observeAnimation(e)
	case *cdppage.EventDomContentEventFired:
		if p.State() == StateCapturing {
			p.markUnavailable(errors.New("page navigated mid-capture"))
		}
	}
}

// execCtx returns an executor bound to the tab's target, usable from event
// handlers.
func (p *Page) execCtx() context.Context {
	c := chromedp.FromContext(p.ctx)
	return cdp.WithExecutor(p.ctx, c.Target)
}

// interceptRequest implements the fetch interception policy.
func (p *Page) interceptRequest(e *fetch.EventRequestPaused) {
	ctx := p.execCtx()
	reqURL := e.Request.URL

	switch {
	case e.Request.Method == "POST" && strings.Contains(reqURL, preprocessRoute):
		p.servePreprocess(ctx, e)
	case e.Request.Method == "GET" && strings.Contains(reqURL, fonts.RoutePrefix):
		p.serveFont(ctx, e)
	case e.ResourceType == network.ResourceTypeDocument && p.State() == StateCapturing:
		// User code must not swap the document out mid-capture.
		_ = fetch.FailRequest(e.RequestID, network.ErrorReasonAborted).Do(ctx)
	default:
		_ = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}
}

func (p *Page) servePreprocess(ctx context.Context, e *fetch.EventRequestPaused) {
	respond := func(status int, body []byte, contentType string) {
		_ = fetch.FulfillRequest(e.RequestID, int64(status)).
			WithResponseHeaders([]*fetch.HeaderEntry{
				{Name: "Content-Type", Value: contentType},
			}).
			WithBody(base64.StdEncoding.EncodeToString(body)).
			Do(ctx)
	}

	var postData []byte
	for _, entry := range e.Request.PostDataEntries {
		b, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			respond(500, []byte("invalid video config: "+err.Error()), "text/plain")
			return
		}
		postData = append(postData, b...)
	}

	var vc preprocess.VideoConfig
	if err := json.Unmarshal(postData, &vc); err != nil {
		respond(500, []byte("invalid video config: "+err.Error()), "text/plain")
		return
	}

	result, err := p.opts.Preprocessor.Process(ctx, &vc)
	if err != nil {
		if errors.Is(err, preprocess.ErrSourceUnavailable) {
			respond(404, nil, "text/plain")
			return
		}
		p.logger.Error("preprocess failed", slog.String("url", vc.URL), observability.Err(err))
		respond(500, []byte(err.Error()), "text/plain")
		return
	}

	if result.Audio != nil {
		p.emitAudio(*result.Audio)
	}
	respond(200, result.Payload, "application/octet-stream")
}

func (p *Page) serveFont(ctx context.Context, e *fetch.EventRequestPaused) {
	path := e.Request.URL
	if i := strings.Index(path, fonts.RoutePrefix); i >= 0 {
		path = path[i:]
	}
	data, err := p.opts.Fonts.ReadOrFetch(ctx, path)
	if err != nil {
		p.logger.Warn("font unavailable", slog.String("path", path), observability.Err(err))
		_ = fetch.FulfillRequest(e.RequestID, 404).Do(ctx)
		return
	}
	_ = fetch.FulfillRequest(e.RequestID, 200).
		WithResponseHeaders([]*fetch.HeaderEntry{
			{Name: "Content-Type", Value: fonts.ContentType(path)},
			{Name: "Cache-Control", Value: fonts.CacheControl},
		}).
		WithBody(base64.StdEncoding.EncodeToString(data)).
		Do(ctx)
}

// observeAnimation pins a newly started CSS animation to the virtual clock
// and pauses it for manual seeking.
func (p *Page) observeAnimation(e *animation.EventAnimationStarted) {
	a := e.Animation
	if a == nil || a.Source == nil {
		return
	}
	now := float64(p.virtualNow())
	if !p.anims.Observe(a.ID, now, a.Source.Delay, a.Source.Duration, a.Source.Iterations) {
		return
	}
	go func() {
		ctx := p.execCtx()
		if err := animation.SetPaused([]string{a.ID}, true).Do(ctx); err != nil {
			p.logger.Warn("pausing animation", slog.String("animation_id", a.ID), observability.Err(err))
		}
	}()
}

// virtualNow approximates the current virtual time from emitted frames.
func (p *Page) virtualNow() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeekTime
}

// rpcRequest is the envelope page code sends over the binding.
type rpcRequest struct {
	Seq    int64             `json:"seq"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// handleRPC serves one page-to-host call and resolves its promise.
func (p *Page) handleRPC(payload string) {
	var req rpcRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		p.logger.Warn("malformed rpc payload", observability.Err(err))
		return
	}

	result, err := p.dispatchRPC(&req)
	p.resolveRPC(req.Seq, result, err)
}

func (p *Page) resolveRPC(seq int64, result any, callErr error) {
	ok := callErr == nil
	var payload string
	if ok {
		data, err := json.Marshal(result)
		if err != nil {
			ok = false
			payload = fmt.Sprintf("%q", "marshal: "+err.Error())
		} else {
			payload = string(data)
		}
	} else {
		payload = fmt.Sprintf("%q", callErr.Error())
	}

	expr := fmt.Sprintf("window.____rpcResolve(%d, %t, %s);", seq, ok, payload)
	if _, _, err := runtime.Evaluate(expr).Do(p.execCtx()); err != nil {
		p.logger.Warn("resolving rpc", slog.Int64("seq", seq), observability.Err(err))
	}
}

func (p *Page) dispatchRPC(req *rpcRequest) (any, error) {
	switch req.Method {
	case "captureFrame":
		return p.rpcCaptureFrame()
	case "skipFrame":
		return nil, p.rpcSkipFrame()
	case "screencastCompleted":
		p.rpcScreencastCompleted()
		return nil, nil
	case "addAudio":
		return nil, p.rpcAddAudio(req.Params)
	case "updateAudioEndTime":
		return nil, p.rpcUpdateAudioEndTime(req.Params)
	case "seekCSSAnimations":
		return nil, p.rpcSeekCSSAnimations(req.Params)
	case "seekTimeActions":
		return nil, p.rpcSeekTimeActions(req.Params)
	case "throwError":
		return nil, p.rpcThrowError(req.Params)
	default:
		return nil, fmt.Errorf("unknown rpc method %q", req.Method)
	}
}

// rpcCaptureFrame renders and captures one frame. Returns false to tell the
// loop to stop.
func (p *Page) rpcCaptureFrame() (bool, error) {
	data, err := p.captureScreenshot()
	if err != nil {
		p.markUnavailable(err)
		return false, nil
	}

	p.mu.Lock()
	onFrame := p.onFrame
	p.mu.Unlock()
	// An empty screenshot is still a frame slot (no-damage tick).
	if onFrame != nil {
		onFrame(data)
	}
	return true, nil
}

func (p *Page) captureScreenshot() ([]byte, error) {
	timeout := p.opts.Capture.FrameTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(p.execCtx(), timeout)
	defer cancel()

	format, quality := p.frameEncoding()

	if p.opts.CompatibleMode {
		shot := cdppage.CaptureScreenshot().WithOptimizeForSpeed(true)
		if format == "png" {
			shot = shot.WithFormat(cdppage.CaptureScreenshotFormatPng)
		} else {
			shot = shot.WithFormat(cdppage.CaptureScreenshotFormatJpeg).WithQuality(quality)
		}
		data, err := shot.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("capturing screenshot: %w", err)
		}
		return data, nil
	}

	params := headlessexperimental.BeginFrame().
		WithScreenshot(&headlessexperimental.ScreenshotParams{
			Format:  headlessexperimental.ScreenshotParamsFormat(format),
			Quality: quality,
		})
	_, data, err := params.Do(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("beginFrame stalled after %s", timeout)
		}
		return nil, fmt.Errorf("beginFrame: %w", err)
	}
	return data, nil
}

// frameEncoding picks the screenshot format: png whenever the background is
// translucent, else the configured format.
func (p *Page) frameEncoding() (string, int64) {
	p.mu.Lock()
	opacity := p.backgroundOpacity
	p.mu.Unlock()

	format := p.opts.Capture.FrameFormat
	if format == "" {
		format = "jpeg"
	}
	if opacity < 1 {
		format = "png"
	}
	quality := int64(p.opts.Capture.FrameQuality)
	if quality <= 0 {
		quality = 80
	}
	return format, quality
}

// rpcSkipFrame advances rendering without emitting a frame.
func (p *Page) rpcSkipFrame() error {
	if p.opts.CompatibleMode {
		return nil
	}
	timeout := p.opts.Capture.FrameTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(p.execCtx(), timeout)
	defer cancel()
	_, _, err := headlessexperimental.BeginFrame().Do(ctx)
	if err != nil {
		p.markUnavailable(fmt.Errorf("beginFrame (skip): %w", err))
	}
	return nil
}

func (p *Page) rpcScreencastCompleted() {
	_ = p.setState(StateStopped)
	p.mu.Lock()
	onComplete := p.onComplete
	p.mu.Unlock()
	if onComplete != nil {
		onComplete()
	}
	p.signalComplete()
}

func (p *Page) rpcAddAudio(params []json.RawMessage) error {
	if len(params) < 1 {
		return errors.New("addAudio requires a descriptor")
	}
	var a audio.Audio
	if err := json.Unmarshal(params[0], &a); err != nil {
		return fmt.Errorf("parsing audio descriptor: %w", err)
	}
	p.emitAudio(a)
	return nil
}

func (p *Page) emitAudio(a audio.Audio) {
	p.mu.Lock()
	if a.ID != 0 && p.audioSeen[a.ID] {
		p.mu.Unlock()
		return
	}
	if a.ID != 0 {
		p.audioSeen[a.ID] = true
	}
	onAudio := p.onAudio
	p.mu.Unlock()
	if onAudio != nil {
		onAudio(a)
	}
}

func (p *Page) rpcUpdateAudioEndTime(params []json.RawMessage) error {
	if len(params) < 2 {
		return errors.New("updateAudioEndTime requires id and endTime")
	}
	var id, endTime int64
	if err := json.Unmarshal(params[0], &id); err != nil {
		return err
	}
	if err := json.Unmarshal(params[1], &endTime); err != nil {
		return err
	}
	p.mu.Lock()
	onAudio := p.onAudio
	p.mu.Unlock()
	if onAudio != nil {
		// Emitted as an end-time-only update; the synthesizer matches by id.
		onAudio(audio.Audio{ID: id, EndTime: endTime})
	}
	return nil
}

func (p *Page) rpcSeekCSSAnimations(params []json.RawMessage) error {
	if len(params) < 1 {
		return errors.New("seekCSSAnimations requires a timestamp")
	}
	var t float64
	if err := json.Unmarshal(params[0], &t); err != nil {
		return err
	}

	p.mu.Lock()
	p.lastSeekTime = int64(t)
	p.mu.Unlock()

	seeks := p.anims.Seeks(t)
	if len(seeks) == 0 {
		return nil
	}

	ctx := p.execCtx()
	for id, position := range seeks {
		if err := animation.SeekAnimations([]string{id}, position).Do(ctx); err != nil {
			p.logger.Warn("seeking animation", slog.String("animation_id", id), observability.Err(err))
		}
	}
	return nil
}

func (p *Page) rpcSeekTimeActions(params []json.RawMessage) error {
	if len(params) < 1 {
		return errors.New("seekTimeActions requires a timestamp")
	}
	var t float64
	if err := json.Unmarshal(params[0], &t); err != nil {
		return err
	}

	for _, fn := range p.timeActions.Take(int64(t)) {
		if err := fn(p); err != nil {
			p.logger.Error("time action failed", observability.Err(err))
			p.mu.Lock()
			onError := p.onError
			p.mu.Unlock()
			if onError != nil {
				onError(err)
			}
		}
	}
	return nil
}

func (p *Page) rpcThrowError(params []json.RawMessage) error {
	code, msg := "PAGE_ERROR", ""
	if len(params) > 0 {
		_ = json.Unmarshal(params[0], &code)
	}
	if len(params) > 1 {
		_ = json.Unmarshal(params[1], &msg)
	}
	err := fmt.Errorf("page error %s: %s", code, msg)
	if p.State() == StateCapturing || p.State() == StatePaused {
		p.markUnavailable(err)
		return nil
	}
	p.logger.Warn("page error outside capture", slog.String("code", code), slog.String("message", msg))
	return nil
}
