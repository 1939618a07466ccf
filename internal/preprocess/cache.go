package preprocess

import (
	"fmt"
	"hash/crc32"
	"path/filepath"
	"sync"
)

// cacheKey is the content address for a source URL.
func cacheKey(url string) uint32 {
	return crc32.ChecksumIEEE([]byte(url))
}

// cachePaths resolves the file layout for one cached source. All artifacts
// derived from a URL share its CRC32 prefix.
type cachePaths struct {
	dir string
	key uint32
}

func newCachePaths(dir, url string) cachePaths {
	return cachePaths{dir: dir, key: cacheKey(url)}
}

func (c cachePaths) video() string {
	return filepath.Join(c.dir, fmt.Sprintf("%d.mp4", c.key))
}

func (c cachePaths) audio() string {
	return filepath.Join(c.dir, fmt.Sprintf("%d.mp3", c.key))
}

func (c cachePaths) mask() string {
	return filepath.Join(c.dir, fmt.Sprintf("%d_mask.mp4", c.key))
}

func (c cachePaths) transcoded() string {
	return filepath.Join(c.dir, fmt.Sprintf("%d_transcoded.mp4", c.key))
}

// keyedLocks serializes work per cache key so concurrent requests for the
// same URL collapse into one download.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint32]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uint32]*sync.Mutex)}
}

// Lock acquires the lock for a key and returns its unlock func.
func (k *keyedLocks) Lock(key uint32) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
