package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/storage"
)

func newPreprocessor(t *testing.T) *Preprocessor {
	t.Helper()
	paths := storage.NewPaths(config.StorageConfig{
		BaseDir:         t.TempDir(),
		PreprocessorDir: "preprocessor",
	})
	cfg := config.PreprocessConfig{
		MaxDownloads:    2,
		MaxProcesses:    2,
		RetryFetches:    1,
		RetryDelay:      10 * time.Millisecond,
		DownloadTimeout: 5 * time.Second,
	}
	return New(cfg, paths, "ffmpeg", "ffprobe", "error", slog.New(slog.DiscardHandler))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	main := []byte("main-video-bytes")
	mask := []byte("mask")

	packed, err := Pack(Descriptor{HasAudio: true, HasClip: true}, main, mask)
	require.NoError(t, err)

	desc, gotMain, gotMask, err := Unpack(packed)
	require.NoError(t, err)
	assert.True(t, desc.HasAudio)
	assert.True(t, desc.HasClip)
	assert.True(t, desc.HasMask)
	assert.Equal(t, main, gotMain)
	assert.Equal(t, mask, gotMask)
}

func TestPackWithoutMask(t *testing.T) {
	packed, err := Pack(Descriptor{}, []byte{0x00, 0x01, 0x02}, nil)
	require.NoError(t, err)

	desc, main, mask, err := Unpack(packed)
	require.NoError(t, err)
	assert.False(t, desc.HasMask)
	assert.Nil(t, desc.MaskBuffer)
	assert.Len(t, main, 3)
	assert.Nil(t, mask)
}

func TestPackHeaderShape(t *testing.T) {
	packed, err := Pack(Descriptor{}, []byte("x"), nil)
	require.NoError(t, err)

	// ASCII length, then '!', then JSON starting with '{'.
	s := string(packed)
	bang := 0
	for s[bang] != '!' {
		assert.GreaterOrEqual(t, s[bang], byte('0'))
		assert.LessOrEqual(t, s[bang], byte('9'))
		bang++
	}
	assert.Equal(t, byte('{'), s[bang+1])
}

func TestUnpackErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr string
	}{
		{"empty", nil, "length header"},
		{"no bang", []byte("123"), "length header"},
		{"bad length", []byte("x!{}"), "length header"},
		{"length beyond body", []byte("99!{}"), "exceeds body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Unpack(tt.payload)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	t.Run("ref outside binary area", func(t *testing.T) {
		hdr := `{"buffer":["buffer",0,10]}`
		payload := []byte(strconv.Itoa(len(hdr)) + "!" + hdr)
		_, _, _, err := Unpack(payload)
		assert.ErrorContains(t, err, "outside binary area")
	})
}

func TestCachePathsLayout(t *testing.T) {
	cp := newCachePaths("/tmp/pre", "https://example.com/a.webm")
	key := fmt.Sprintf("%d", cacheKey("https://example.com/a.webm"))

	assert.Equal(t, filepath.Join("/tmp/pre", key+".mp4"), cp.video())
	assert.Equal(t, filepath.Join("/tmp/pre", key+".mp3"), cp.audio())
	assert.Equal(t, filepath.Join("/tmp/pre", key+"_mask.mp4"), cp.mask())
	assert.Equal(t, filepath.Join("/tmp/pre", key+"_transcoded.mp4"), cp.transcoded())

	// Same URL, same key; different URL, different key.
	assert.Equal(t, cacheKey("https://example.com/a.webm"), cacheKey("https://example.com/a.webm"))
	assert.NotEqual(t, cacheKey("https://example.com/a.webm"), cacheKey("https://example.com/b.webm"))
}

func TestKeyedLocksSerializePerKey(t *testing.T) {
	locks := newKeyedLocks()

	var inside int
	var maxInside int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(42)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestDemuxAudioServesCachedTrack(t *testing.T) {
	p := newPreprocessor(t)
	dir, err := p.paths.PreprocessorDir()
	require.NoError(t, err)

	url := "https://example.com/clip.mp4"
	cp := newCachePaths(dir, url)
	require.NoError(t, os.WriteFile(cp.audio(), []byte("mp3-bytes"), 0o644))

	// Concurrent requests for the same source must all resolve to the
	// cached track without spawning an extraction.
	var wg sync.WaitGroup
	results := make([]string, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.demuxAudio(context.Background(), dir, url)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, cp.audio(), results[i])
	}
}

func TestDemuxAudioFailureLeavesNoCacheEntry(t *testing.T) {
	p := newPreprocessor(t)
	dir, err := p.paths.PreprocessorDir()
	require.NoError(t, err)

	// No cached source video exists, so the extraction fails.
	url := "https://example.com/missing.mp4"
	_, err = p.demuxAudio(context.Background(), dir, url)
	require.Error(t, err)

	cp := newCachePaths(dir, url)
	assert.NoFileExists(t, cp.audio())
	assert.NoFileExists(t, cp.audio()+".part")
}

func TestMIMEWhitelist(t *testing.T) {
	tests := []struct {
		ct    string
		video bool
		audio bool
	}{
		{"video/mp4", true, true},
		{"video/webm; codecs=vp9", true, true},
		{"application/octet-stream", true, true},
		{"audio/mpeg", false, true},
		{"text/html", false, false},
		{"image/png", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.ct, func(t *testing.T) {
			assert.Equal(t, tt.video, videoMIMEAllowed(tt.ct))
			assert.Equal(t, tt.audio, audioMIMEAllowed(tt.ct))
		})
	}
}

func TestDownloadCachesFile(t *testing.T) {
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		if r.Method == http.MethodGet {
			gets++
			w.Write([]byte("fake-mp4"))
		}
	}))
	defer srv.Close()

	p := newPreprocessor(t)
	dest := filepath.Join(t.TempDir(), "video.mp4")

	require.NoError(t, p.download(context.Background(), srv.URL, dest, 0, videoMIMEAllowed))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp4", string(data))
	assert.Equal(t, 1, gets)

	// No .part residue.
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadRejectsWrongMIME(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	p := newPreprocessor(t)
	err := p.download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"), 0, videoMIMEAllowed)
	assert.ErrorContains(t, err, "unsupported content type")
}

func TestDownload404IsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := newPreprocessor(t)
	err := p.download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"), 0, videoMIMEAllowed)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestDownloadEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		if r.Method == http.MethodGet {
			w.Write(make([]byte, 1024))
		}
	}))
	defer srv.Close()

	p := newPreprocessor(t)
	p.cfg.MaxDownloadSize = 128

	err := p.download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "v.mp4"), 0, videoMIMEAllowed)
	assert.Error(t, err)
}

func TestAudioDescriptorDefaults(t *testing.T) {
	p := newPreprocessor(t)

	vc := &VideoConfig{
		URL:       "https://example.com/a.mp4",
		StartTime: 1000,
		EndTime:   6000,
		SeekStart: 2000,
	}
	a := p.audioDescriptor(vc, "/tmp/a.mp3", 30000)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, 100, a.Volume)
	assert.Equal(t, int64(1000), a.StartTime)
	assert.Equal(t, int64(6000), a.EndTime)
	assert.Equal(t, int64(2000), a.SeekStart)
	assert.Equal(t, int64(30000), a.Duration)

	// IDs are monotonic per preprocessor.
	b := p.audioDescriptor(vc, "/tmp/b.mp3", 0)
	assert.Equal(t, int64(2), b.ID)
}
