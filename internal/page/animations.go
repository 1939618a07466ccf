package page

import "sync"

// trackedAnimation is one CSS animation observed via the Animation domain.
// Its start time is pinned to the virtual clock at first observation so
// seeks are relative to capture time, not wall time.
type trackedAnimation struct {
	id         string
	pinnedAt   float64 // virtual ms at first observation
	delay      float64
	duration   float64
	iterations float64
}

// expired reports whether the animation has fully played out at virtual
// time t. Infinite iteration counts never expire.
func (a *trackedAnimation) expired(t float64) bool {
	if a.iterations <= 0 {
		return false
	}
	return t >= a.pinnedAt+a.delay+a.duration*a.iterations
}

// animationTracker keeps the per-navigation CSS animation registry.
type animationTracker struct {
	mu         sync.Mutex
	animations map[string]*trackedAnimation
}

func newAnimationTracker() *animationTracker {
	return &animationTracker{animations: make(map[string]*trackedAnimation)}
}

// Observe registers a newly started animation, pinning it to the current
// virtual time. Returns false when the id is already tracked.
func (t *animationTracker) Observe(id string, virtualNow, delay, duration, iterations float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.animations[id]; ok {
		return false
	}
	t.animations[id] = &trackedAnimation{
		id:         id,
		pinnedAt:   virtualNow,
		delay:      delay,
		duration:   duration,
		iterations: iterations,
	}
	return true
}

// Seeks returns the per-animation seek positions for virtual time now and
// drops animations that have fully elapsed.
func (t *animationTracker) Seeks(now float64) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	seeks := make(map[string]float64, len(t.animations))
	for id, a := range t.animations {
		if a.expired(now) {
			delete(t.animations, id)
			continue
		}
		seeks[id] = now - a.pinnedAt
	}
	return seeks
}

// Len returns the number of live tracked animations.
func (t *animationTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.animations)
}

// Reset clears the registry (navigation boundary).
func (t *animationTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.animations = make(map[string]*trackedAnimation)
}
