// Package jobs tracks render jobs and broadcasts their progress to
// subscribers (the status server streams these as SSE).
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pagecast/internal/observability"
)

// Common errors.
var (
	// ErrJobNotFound is returned when the job doesn't exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotCancellable is returned when the job already reached a
	// terminal state.
	ErrJobNotCancellable = errors.New("job is not cancellable")
	// ErrJobNotRunning is returned when pause or resume targets a job
	// outside the rendering state.
	ErrJobNotRunning = errors.New("job is not running")
)

// CaptureControl suspends and resumes a job's live capture. The render
// package's Control implements it.
type CaptureControl interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// State is the render job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRendering State = "rendering"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the job has finished in any way.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is the tracked status of one render.
type Job struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	// Progress is the completion percentage (0-100).
	Progress float64 `json:"progress"`
	// OutputPath is set once the render completes.
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Event is one progress update pushed to subscribers.
type Event struct {
	JobID    string  `json:"job_id"`
	State    State   `json:"state"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// Subscriber receives job events. Slow subscribers drop events rather than
// stalling the render path.
type Subscriber struct {
	ID string
	// JobID filters events to one job when non-empty.
	JobID  string
	Events chan Event
}

// Tracker manages job records and their subscribers.
type Tracker struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]func()
	controls    map[string]CaptureControl
	subscribers map[string]*Subscriber
	logger      *slog.Logger

	staleDuration time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// NewTracker creates a job tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		jobs:          make(map[string]*Job),
		cancels:       make(map[string]func()),
		controls:      make(map[string]CaptureControl),
		subscribers:   make(map[string]*Subscriber),
		logger:        observability.WithComponent(logger, "jobs"),
		staleDuration: 30 * time.Minute,
		stopCleanup:   make(chan struct{}),
	}
}

// Start begins background cleanup of stale terminal jobs.
func (t *Tracker) Start() {
	t.cleanupTicker = time.NewTicker(time.Minute)
	go t.cleanupLoop()
}

// Stop halts the background cleanup.
func (t *Tracker) Stop() {
	if t.cleanupTicker != nil {
		t.cleanupTicker.Stop()
		close(t.stopCleanup)
	}
}

func (t *Tracker) cleanupLoop() {
	for {
		select {
		case <-t.cleanupTicker.C:
			t.cleanupStaleJobs()
		case <-t.stopCleanup:
			return
		}
	}
}

func (t *Tracker) cleanupStaleJobs() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.staleDuration)
	removed := 0
	for id, job := range t.jobs {
		if job.State.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
			delete(t.cancels, id)
			delete(t.controls, id)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("cleaned up stale jobs", slog.Int("count", removed))
	}
}

// Create registers a queued job and returns it. The cancel function is
// invoked when the job is cancelled through the tracker.
func (t *Tracker) Create(cancel func()) *Job {
	job := &Job{
		ID:        ulid.Make().String(),
		State:     StateQueued,
		CreatedAt: time.Now(),
	}
	t.mu.Lock()
	t.jobs[job.ID] = job
	if cancel != nil {
		t.cancels[job.ID] = cancel
	}
	t.mu.Unlock()

	t.broadcast(Event{JobID: job.ID, State: StateQueued})
	return job
}

// Get returns a snapshot of one job.
func (t *Tracker) Get(id string) (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// List returns snapshots of every tracked job.
func (t *Tracker) List() []*Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		snapshot := *job
		out = append(out, &snapshot)
	}
	return out
}

// MarkRendering moves a job into the rendering state.
func (t *Tracker) MarkRendering(id string) {
	now := time.Now()
	t.update(id, func(job *Job) {
		job.State = StateRendering
		job.StartedAt = &now
	})
}

// SetProgress records a progress percentage and notifies subscribers.
func (t *Tracker) SetProgress(id string, percent float64) {
	t.update(id, func(job *Job) {
		job.Progress = percent
	})
}

// MarkCompleted finishes a job successfully.
func (t *Tracker) MarkCompleted(id, outputPath string) {
	now := time.Now()
	t.update(id, func(job *Job) {
		job.State = StateCompleted
		job.Progress = 100
		job.OutputPath = outputPath
		job.CompletedAt = &now
	})
}

// MarkFailed finishes a job with an error.
func (t *Tracker) MarkFailed(id string, err error) {
	now := time.Now()
	t.update(id, func(job *Job) {
		job.State = StateFailed
		if err != nil {
			job.Error = err.Error()
		}
		job.CompletedAt = &now
	})
}

// AttachControl registers the capture control for a job.
func (t *Tracker) AttachControl(id string, ctrl CaptureControl) {
	t.mu.Lock()
	if _, ok := t.jobs[id]; ok && ctrl != nil {
		t.controls[id] = ctrl
	}
	t.mu.Unlock()
}

// Pause suspends a rendering job's capture.
func (t *Tracker) Pause(ctx context.Context, id string) error {
	ctrl, err := t.control(id)
	if err != nil {
		return err
	}
	return ctrl.Pause(ctx)
}

// Resume releases a paused job's capture.
func (t *Tracker) Resume(ctx context.Context, id string) error {
	ctrl, err := t.control(id)
	if err != nil {
		return err
	}
	return ctrl.Resume(ctx)
}

func (t *Tracker) control(id string) (CaptureControl, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	ctrl := t.controls[id]
	if job.State != StateRendering || ctrl == nil {
		return nil, ErrJobNotRunning
	}
	return ctrl, nil
}

// Cancel requests cancellation of a running job.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return ErrJobNotFound
	}
	if job.State.IsTerminal() {
		t.mu.Unlock()
		return ErrJobNotCancellable
	}
	now := time.Now()
	job.State = StateCancelled
	job.CompletedAt = &now
	cancel := t.cancels[id]
	event := Event{JobID: id, State: job.State, Progress: job.Progress}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.broadcast(event)
	return nil
}

func (t *Tracker) update(id string, fn func(*Job)) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(job)
	event := Event{JobID: id, State: job.State, Progress: job.Progress, Error: job.Error}
	t.mu.Unlock()

	t.broadcast(event)
}

// Subscribe registers an event channel, optionally filtered to one job.
func (t *Tracker) Subscribe(jobID string) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		JobID:  jobID,
		Events: make(chan Event, 64),
	}
	t.mu.Lock()
	t.subscribers[sub.ID] = sub
	t.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tracker) Unsubscribe(sub *Subscriber) {
	t.mu.Lock()
	if _, ok := t.subscribers[sub.ID]; ok {
		delete(t.subscribers, sub.ID)
		close(sub.Events)
	}
	t.mu.Unlock()
}

func (t *Tracker) broadcast(event Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subscribers {
		if sub.JobID != "" && sub.JobID != event.JobID {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			// Drop rather than block the render path.
		}
	}
}
