// Package fonts backs the /local_font/* page interception: fonts are cached
// on disk under local_font/<host>/<path> and served with a one-year cache
// lifetime. A cache miss fetches the font from the origin encoded in the
// request path; only a failed fetch surfaces as a 404 to the page.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/pagecast/internal/httpclient"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/storage"
)

// CacheControl is the header value for served fonts.
const CacheControl = "max-age=31536000"

// RoutePrefix is the intercepted URL path prefix.
const RoutePrefix = "/local_font/"

// ErrNotCached is returned when a requested font is absent.
var ErrNotCached = errors.New("font not in cache")

// Cache resolves and installs local fonts.
type Cache struct {
	paths  *storage.Paths
	client *httpclient.Client
	logger *slog.Logger
}

// NewCache creates a font cache.
func NewCache(paths *storage.Paths, client *httpclient.Client, logger *slog.Logger) *Cache {
	return &Cache{
		paths:  paths,
		client: client,
		logger: observability.WithComponent(logger, "font_cache"),
	}
}

// Resolve maps an intercepted request path to a cached font file. The
// request path carries the origin host as its first segment:
// /local_font/<host>/<path...>.
func (c *Cache) Resolve(requestPath string) (string, error) {
	rel := strings.TrimPrefix(requestPath, RoutePrefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", ErrNotCached
	}

	dir, err := c.paths.FontDir()
	if err != nil {
		return "", err
	}

	// Reject traversal out of the cache root.
	clean := path.Clean("/" + rel)
	full := filepath.Join(dir, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, dir+string(filepath.Separator)) {
		return "", ErrNotCached
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", ErrNotCached
	}
	return full, nil
}

// Read returns a cached font's bytes.
func (c *Cache) Read(requestPath string) ([]byte, error) {
	full, err := c.Resolve(requestPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// ReadOrFetch returns a cached font, installing it from its origin on a
// miss. The request path carries the origin: /local_font/<host>/<path>.
func (c *Cache) ReadOrFetch(ctx context.Context, requestPath string) ([]byte, error) {
	data, err := c.Read(requestPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotCached) {
		return nil, err
	}

	origin, err := originURL(requestPath)
	if err != nil {
		return nil, err
	}
	if _, err := c.Install(ctx, origin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCached, err)
	}
	return c.Read(requestPath)
}

// originURL reconstructs the source URL a /local_font/ request path encodes.
// Origins are always fetched over https.
func originURL(requestPath string) (string, error) {
	rel := strings.TrimPrefix(requestPath, RoutePrefix)
	rel = strings.TrimPrefix(rel, "/")
	host, rest, ok := strings.Cut(rel, "/")
	if !ok || host == "" || rest == "" {
		return "", ErrNotCached
	}
	return "https://" + host + "/" + rest, nil
}

// Install downloads a font into the cache under its source host and path,
// returning the intercepted URL path it will be served from.
func (c *Cache) Install(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing font url: %w", err)
	}
	if u.Host == "" || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", fmt.Errorf("font url %q has no host or file path", rawURL)
	}

	dir, err := c.paths.FontDir()
	if err != nil {
		return "", err
	}

	rel := path.Join(u.Host, path.Clean("/"+u.Path))
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if _, err := os.Stat(full); err == nil {
		return RoutePrefix + rel, nil
	}

	resp, err := c.client.Get(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("fetching font %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching font %s: status %d", rawURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	tmp := full + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing font: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", err
	}

	c.logger.Debug("installed font",
		slog.String("url", rawURL),
		slog.String("path", full),
	)
	return RoutePrefix + rel, nil
}

// ContentType guesses the MIME type for a font file.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".woff2":
		return "font/woff2"
	case ".woff":
		return "font/woff"
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	default:
		return "application/octet-stream"
	}
}
