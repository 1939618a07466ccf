package ffmpeg

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for a child process.
type ProcessStats struct {
	PID            int       `json:"pid"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
	BytesWritten   uint64    `json:"bytes_written"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ProcessMonitor samples CPU and memory usage of a child process (an FFmpeg
// encode or a browser) on an interval. Byte counters are fed externally via
// CountingWriter.
type ProcessMonitor struct {
	pid       int
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	bytesWritten atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	return &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		stats:     ProcessStats{PID: pid, StartedAt: time.Now()},
	}
}

// SetInterval adjusts the sampling interval.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.mu.Lock()
	pm.interval = d
	pm.mu.Unlock()
}

// Start begins sampling.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	if pm.cancel != nil {
		pm.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	pm.cancel = cancel
	interval := pm.interval
	pm.mu.Unlock()

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pm.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops sampling.
func (pm *ProcessMonitor) Stop() {
	pm.mu.Lock()
	cancel := pm.cancel
	pm.cancel = nil
	pm.mu.Unlock()

	if cancel != nil {
		cancel()
		pm.wg.Wait()
	}
}

// Stats returns the most recent sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	stats := pm.stats
	stats.BytesWritten = pm.bytesWritten.Load()
	return stats
}

// AddBytesWritten records output bytes produced by the process.
func (pm *ProcessMonitor) AddBytesWritten(n uint64) {
	pm.bytesWritten.Add(n)
}

// sample reads one CPU/memory snapshot.
func (pm *ProcessMonitor) sample(ctx context.Context) {
	proc, err := process.NewProcessWithContext(ctx, int32(pm.pid))
	if err != nil {
		return
	}

	now := time.Now()
	var stats ProcessStats
	stats.PID = pm.pid
	stats.StartedAt = pm.startedAt
	stats.LastUpdated = now

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
	}

	pm.mu.Lock()
	pm.stats = stats
	pm.mu.Unlock()
}

// CountingWriter wraps a writer and records written bytes on a monitor.
type CountingWriter struct {
	w       io.Writer
	monitor *ProcessMonitor
}

// NewCountingWriter creates a counting writer.
func NewCountingWriter(w io.Writer, monitor *ProcessMonitor) *CountingWriter {
	return &CountingWriter{w: w, monitor: monitor}
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 && cw.monitor != nil {
		cw.monitor.AddBytesWritten(uint64(n))
	}
	return n, err
}
