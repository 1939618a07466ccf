// Package preprocess implements the media preprocessor behind the
// /api/video_preprocess page RPC. It downloads source videos into a
// CRC32-addressed cache, normalizes WebM to H.264, extracts alpha masks and
// audio tracks, and packs the result into the binary payload the in-page
// adapter consumes.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/pagecast/internal/audio"
	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/ffmpeg"
	"github.com/jmylchreest/pagecast/internal/httpclient"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/storage"
)

// ErrSourceUnavailable marks a 4xx fetch. Callers skip the media instead of
// failing the render.
var ErrSourceUnavailable = errors.New("media source unavailable")

// VideoConfig is the JSON clone of a page video element's configuration.
type VideoConfig struct {
	URL     string `json:"url"`
	MaskSrc string `json:"maskSrc,omitempty"`

	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime,omitempty"`
	Loop      bool  `json:"loop,omitempty"`
	Muted     bool  `json:"muted,omitempty"`
	Volume    int   `json:"volume,omitempty"`

	SeekStart int64 `json:"seekStart,omitempty"`
	SeekEnd   int64 `json:"seekEnd,omitempty"`

	FadeInDuration  int64 `json:"fadeInDuration,omitempty"`
	FadeOutDuration int64 `json:"fadeOutDuration,omitempty"`

	RetryFetches int  `json:"retryFetchs,omitempty"`
	IgnoreCache  bool `json:"ignoreCache,omitempty"`
}

// Result is a processed video: the packed payload for the page and, when the
// source carries sound, the audio descriptor for the mixer.
type Result struct {
	Payload []byte
	Audio   *audio.Audio
}

// Preprocessor caches and normalizes media sources.
type Preprocessor struct {
	cfg         config.PreprocessConfig
	paths       *storage.Paths
	ffmpegPath  string
	ffprobePath string
	logLevel    string
	logger      *slog.Logger

	downloads *semaphore.Weighted
	processes *semaphore.Weighted
	locks     *keyedLocks
	audioSeq  atomic.Int64
}

// New creates a preprocessor.
func New(cfg config.PreprocessConfig, paths *storage.Paths, ffmpegPath, ffprobePath, logLevel string, logger *slog.Logger) *Preprocessor {
	maxDownloads := int64(cfg.MaxDownloads)
	if maxDownloads < 1 {
		maxDownloads = 1
	}
	maxProcesses := int64(cfg.MaxProcesses)
	if maxProcesses < 1 {
		maxProcesses = 1
	}
	return &Preprocessor{
		cfg:         cfg,
		paths:       paths,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logLevel:    logLevel,
		logger:      observability.WithComponent(logger, "preprocessor"),
		downloads:   semaphore.NewWeighted(maxDownloads),
		processes:   semaphore.NewWeighted(maxProcesses),
		locks:       newKeyedLocks(),
	}
}

// Process fulfils one video_preprocess request.
func (p *Preprocessor) Process(ctx context.Context, vc *VideoConfig) (*Result, error) {
	if vc.URL == "" {
		return nil, errors.New("video config requires a url")
	}

	dir, err := p.paths.PreprocessorDir()
	if err != nil {
		return nil, err
	}

	videoPath, maskPath, probe, err := p.fetchVideo(ctx, dir, vc.URL, vc.RetryFetches, vc.IgnoreCache)
	if err != nil {
		return nil, err
	}

	// An explicit mask source wins over an extracted alpha plane.
	if vc.MaskSrc != "" {
		explicit, _, _, err := p.fetchVideo(ctx, dir, vc.MaskSrc, vc.RetryFetches, vc.IgnoreCache)
		if err != nil {
			return nil, fmt.Errorf("mask source: %w", err)
		}
		maskPath = explicit
	}

	var track *audio.Audio
	if !vc.Muted && probe.HasAudio() {
		audioPath, err := p.demuxAudio(ctx, dir, vc.URL)
		if err != nil {
			return nil, err
		}
		track = p.audioDescriptor(vc, audioPath, probe.DurationMillis())
	}

	hasClip := vc.SeekStart > 0 || vc.SeekEnd > 0

	mainBuf, err := p.readOrClip(ctx, videoPath, vc, hasClip)
	if err != nil {
		return nil, err
	}
	var maskBuf []byte
	if maskPath != "" {
		maskBuf, err = p.readOrClip(ctx, maskPath, vc, hasClip)
		if err != nil {
			return nil, err
		}
	}

	payload, err := Pack(Descriptor{
		HasAudio: track != nil,
		HasClip:  hasClip,
	}, mainBuf, maskBuf)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("preprocessed video",
		slog.String("url", vc.URL),
		slog.Bool("mask", maskBuf != nil),
		slog.Bool("audio", track != nil),
		slog.Bool("clip", hasClip),
		slog.Int("payload_bytes", len(payload)),
	)
	return &Result{Payload: payload, Audio: track}, nil
}

// ProcessAudio prepares a standalone audio descriptor (page <audio> elements
// and host-side tracks). Remote sources are cached like video.
func (p *Preprocessor) ProcessAudio(ctx context.Context, a *audio.Audio) (*audio.Audio, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.URL == "" {
		// Already a local path.
		out := *a
		if out.ID == 0 {
			out.ID = p.audioSeq.Add(1)
		}
		return &out, nil
	}

	dir, err := p.paths.PreprocessorDir()
	if err != nil {
		return nil, err
	}

	cp := newCachePaths(dir, a.URL)
	unlock := p.locks.Lock(cp.key)
	defer unlock()

	dest := cp.audio()
	if a.IgnoreCache || !fileExists(dest) {
		if err := p.download(ctx, a.URL, dest, a.RetryFetches, audioMIMEAllowed); err != nil {
			return nil, err
		}
	}

	out := *a
	out.Path = dest
	if out.ID == 0 {
		out.ID = p.audioSeq.Add(1)
	}
	if out.Duration == 0 {
		if probe, err := p.prober().Probe(ctx, dest); err == nil {
			out.Duration = probe.DurationMillis()
		}
	}
	return &out, nil
}

// fetchVideo downloads (or reuses) a source and normalizes it to an
// MP4-compatible file. Returns the playable path, an extracted alpha mask
// path when the source is transparent WebM, and the source probe.
func (p *Preprocessor) fetchVideo(ctx context.Context, dir, url string, retries int, ignoreCache bool) (string, string, *ffmpeg.ProbeResult, error) {
	cp := newCachePaths(dir, url)
	unlock := p.locks.Lock(cp.key)
	defer unlock()

	raw := cp.video()
	if ignoreCache || !fileExists(raw) {
		if err := p.download(ctx, url, raw, retries, videoMIMEAllowed); err != nil {
			return "", "", nil, err
		}
	}

	probe, err := p.prober().Probe(ctx, raw)
	if err != nil {
		return "", "", nil, fmt.Errorf("probing %s: %w", url, err)
	}

	if !probe.IsWebM() {
		return raw, "", probe, nil
	}

	// Downstream demuxing expects MP4; re-encode the WebM main track.
	transcoded := cp.transcoded()
	if ignoreCache || !fileExists(transcoded) {
		if err := p.runProcess(ctx, "-i", raw,
			"-c:v", "libx264", "-crf", "18", "-an",
			"-movflags", "+faststart", "-y", transcoded); err != nil {
			return "", "", nil, fmt.Errorf("transcoding %s: %w", url, err)
		}
	}

	mask := ""
	if probe.AlphaMode() > 0 {
		mask = cp.mask()
		if ignoreCache || !fileExists(mask) {
			if err := p.runProcess(ctx, "-i", raw,
				"-vf", "alphaextract",
				"-c:v", "libx264", "-crf", "18", "-an",
				"-movflags", "+faststart", "-y", mask); err != nil {
				return "", "", nil, fmt.Errorf("extracting alpha of %s: %w", url, err)
			}
		}
	}

	return transcoded, mask, probe, nil
}

// demuxAudio extracts the source's audio track to MP3. The per-key lock and
// the temp-file rename keep concurrent requests for the same source from
// racing on the cache entry.
func (p *Preprocessor) demuxAudio(ctx context.Context, dir, url string) (string, error) {
	cp := newCachePaths(dir, url)
	unlock := p.locks.Lock(cp.key)
	defer unlock()

	dest := cp.audio()
	if fileExists(dest) {
		return dest, nil
	}

	tmp := dest + ".part"
	if err := p.runProcess(ctx, "-i", cp.video(),
		"-vn", "-c:a", "libmp3lame", "-f", "mp3", "-y", tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("demuxing audio of %s: %w", url, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return dest, nil
}

// readOrClip returns the file bytes, re-clipped in memory when a seek window
// is set so the page decoder starts at frame zero.
func (p *Preprocessor) readOrClip(ctx context.Context, path string, vc *VideoConfig, clip bool) ([]byte, error) {
	if !clip {
		return os.ReadFile(path)
	}

	args := []string{"-hide_banner", "-loglevel", p.logLevel}
	if vc.SeekStart > 0 {
		args = append(args, "-ss", millisToSeconds(vc.SeekStart))
	}
	if vc.SeekEnd > 0 {
		args = append(args, "-to", millisToSeconds(vc.SeekEnd))
	}
	args = append(args, "-i", path,
		"-c", "copy",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4", "pipe:1")

	if err := p.processes.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.processes.Release(1)

	out, err := ffmpeg.NewCommand(p.ffmpegPath, args).Output(ctx)
	if err != nil {
		return nil, fmt.Errorf("clipping %s: %w", path, err)
	}
	return out, nil
}

// download fetches a URL into the cache, verifying MIME and size via HEAD
// first. Writes go through a temp file so a partial download never poisons
// the cache.
func (p *Preprocessor) download(ctx context.Context, url, dest string, retries int, mimeAllowed func(string) bool) error {
	if err := p.downloads.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.downloads.Release(1)

	if retries <= 0 {
		retries = p.cfg.RetryFetches
	}
	client := httpclient.New(httpclient.Config{
		Timeout:             p.cfg.DownloadTimeout,
		RetryAttempts:       retries,
		RetryDelay:          p.cfg.RetryDelay,
		RetryMaxDelay:       httpclient.DefaultRetryMaxDelay,
		BackoffMultiplier:   httpclient.DefaultBackoffMultiplier,
		CircuitThreshold:    httpclient.DefaultCircuitThreshold,
		CircuitTimeout:      httpclient.DefaultCircuitTimeout,
		CircuitHalfOpenMax:  httpclient.DefaultCircuitHalfOpenMax,
		Logger:              p.logger,
		EnableDecompression: true,
	})

	head, err := client.Head(ctx, url)
	if err != nil {
		return fmt.Errorf("checking %s: %w", url, err)
	}
	head.Body.Close()
	if head.StatusCode >= 400 && head.StatusCode < 500 {
		return fmt.Errorf("%w: %s returned %d", ErrSourceUnavailable, url, head.StatusCode)
	}
	if head.StatusCode >= 500 {
		return fmt.Errorf("fetching %s: status %d", url, head.StatusCode)
	}
	if ct := head.Header.Get("Content-Type"); ct != "" && !mimeAllowed(ct) {
		return fmt.Errorf("%s has unsupported content type %q", url, ct)
	}
	maxSize := int64(p.cfg.MaxDownloadSize)
	if maxSize > 0 && head.ContentLength > maxSize {
		return fmt.Errorf("%s is %d bytes, limit %d", url, head.ContentLength, maxSize)
	}

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: %s returned %d", ErrSourceUnavailable, url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	var reader io.Reader = resp.Body
	if maxSize > 0 {
		reader = io.LimitReader(resp.Body, maxSize+1)
	}
	n, err := io.Copy(f, reader)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	if maxSize > 0 && n > maxSize {
		os.Remove(tmp)
		return fmt.Errorf("%s exceeds download limit %d", url, maxSize)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}

	p.logger.Debug("downloaded media",
		slog.String("url", url),
		slog.String("path", dest),
		slog.Int64("bytes", n),
	)
	return nil
}

// runProcess runs one bounded FFmpeg pass.
func (p *Preprocessor) runProcess(ctx context.Context, args ...string) error {
	if err := p.processes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.processes.Release(1)

	full := append([]string{"-hide_banner", "-loglevel", p.logLevel}, args...)
	return ffmpeg.NewCommand(p.ffmpegPath, full).Run(ctx)
}

// prober returns a prober honoring the demux ceiling.
func (p *Preprocessor) prober() *ffmpeg.Prober {
	pr := ffmpeg.NewProber(p.ffprobePath)
	if p.cfg.DemuxTimeout > 0 {
		pr = pr.WithTimeout(p.cfg.DemuxTimeout)
	}
	return pr
}

// audioDescriptor builds the mixer descriptor for a demuxed track.
func (p *Preprocessor) audioDescriptor(vc *VideoConfig, path string, durationMillis int64) *audio.Audio {
	volume := vc.Volume
	if volume == 0 {
		// Element volume defaults to full; zero only arrives when the
		// attribute was never set (muted sources never get here).
		volume = 100
	}
	return &audio.Audio{
		ID:              p.audioSeq.Add(1),
		Path:            path,
		StartTime:       vc.StartTime,
		EndTime:         vc.EndTime,
		Duration:        durationMillis,
		Loop:            vc.Loop,
		Volume:          volume,
		SeekStart:       vc.SeekStart,
		SeekEnd:         vc.SeekEnd,
		FadeInDuration:  vc.FadeInDuration,
		FadeOutDuration: vc.FadeOutDuration,
	}
}

// videoMIMEAllowed implements the download whitelist.
func videoMIMEAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return strings.HasPrefix(ct, "video/") || ct == "application/octet-stream"
}

// audioMIMEAllowed accepts audio sources plus the generic binary type.
func audioMIMEAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") ||
		ct == "application/octet-stream"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func millisToSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
}
