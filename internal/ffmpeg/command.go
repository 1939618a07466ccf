// Package ffmpeg provides FFmpeg/FFprobe binary detection and process
// control for the frame encoder, audio mixer and media preprocessor.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Command represents an FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	mu      sync.RWMutex

	stderrLines []string
	stderrMu    sync.RWMutex
}

// NewCommand creates a command for the given binary and fully assembled
// argument list.
func NewCommand(binary string, args []string) *Command {
	return &Command{
		Binary:      binary,
		Args:        args,
		stderrLines: make([]string, 0, 100),
	}
}

// String returns the command line as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion, capturing stderr.
func (c *Command) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	return c.Wait()
}

// Output executes the command and returns its stdout, capturing stderr.
// Used by the preprocessor for in-memory clip remuxes.
func (c *Command) Output(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("getting stdout pipe: %w", err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}
	if err := c.cmd.Start(); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.mu.Unlock()

	stderrDone := make(chan struct{})
	go c.captureStderr(stderr, stderrDone)

	data, readErr := io.ReadAll(stdout)
	waitErr := c.cmd.Wait()
	<-stderrDone

	if waitErr != nil {
		return nil, c.wrapExitError(waitErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("reading ffmpeg output: %w", readErr)
	}
	return data, nil
}

// Start starts the command without waiting. Stderr is captured into the
// in-memory ring buffer for diagnostics.
func (c *Command) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	go c.captureStderr(stderr, make(chan struct{}))
	return nil
}

// StartWithStdin starts the command with a stdin pipe attached, for
// image2pipe frame streaming.
func (c *Command) StartWithStdin(ctx context.Context) (io.WriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdin pipe: %w", err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.stdin = stdin
	go c.captureStderr(stderr, make(chan struct{}))
	return stdin, nil
}

// Wait waits for the command to complete. Exit errors are rewritten with a
// hardware-support hint when the stderr output indicates an encoder that the
// host cannot open.
func (c *Command) Wait() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil {
		return fmt.Errorf("command not started")
	}

	if err := cmd.Wait(); err != nil {
		return c.wrapExitError(err)
	}
	return nil
}

// Abort asks a running encode to finish by sending `q` on stdin, falling
// back to a kill when no stdin pipe is attached.
func (c *Command) Abort() error {
	c.mu.RLock()
	stdin := c.stdin
	c.mu.RUnlock()

	if stdin != nil {
		if _, err := io.WriteString(stdin, "q"); err == nil {
			return nil
		}
	}
	return c.Kill()
}

// Kill terminates the FFmpeg process.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Pid returns the process ID, or 0 when not started.
func (c *Command) Pid() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// wrapExitError attaches captured stderr context and rewrites known
// hardware-encoder failures.
func (c *Command) wrapExitError(err error) error {
	lines := c.StderrLines()
	return rewriteEncoderError(err, lines)
}

// captureStderr reads FFmpeg stderr into a bounded ring buffer.
func (c *Command) captureStderr(stderr io.ReadCloser, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	const maxLines = 100

	for scanner.Scan() {
		line := scanner.Text()
		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

// StderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) StderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}
