package render

import (
	"context"
	"errors"
	"sync"

	"github.com/jmylchreest/pagecast/internal/page"
)

// ErrNoActiveCapture is returned when pause or resume arrives while the job
// has no page capturing (between scenes, or before the first one).
var ErrNoActiveCapture = errors.New("no capture in progress")

// Control suspends and resumes a running job's capture loop. The renderer
// rebinds it to the active page as the job moves from scene to scene.
type Control struct {
	mu sync.Mutex
	p  *page.Page
}

func (c *Control) bind(p *page.Page) {
	c.mu.Lock()
	c.p = p
	c.mu.Unlock()
}

// Pause suspends the active capture at the next tick boundary.
func (c *Control) Pause(ctx context.Context) error {
	p := c.active()
	if p == nil {
		return ErrNoActiveCapture
	}
	return p.Pause(ctx)
}

// Resume releases a paused capture.
func (c *Control) Resume(ctx context.Context) error {
	p := c.active()
	if p == nil {
		return ErrNoActiveCapture
	}
	return p.Resume(ctx)
}

func (c *Control) active() *page.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p
}
