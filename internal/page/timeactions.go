package page

import "sync"

// TimeAction is a host-side callback keyed to a virtual timestamp. Actions
// fire at most once.
type TimeAction func(p *Page) error

// timeActionStore holds the sparse time → action map for one navigation.
type timeActionStore struct {
	mu      sync.Mutex
	actions map[int64]TimeAction
	// drain fires every elapsed action per seek instead of only the
	// earliest one.
	drain bool
}

func newTimeActionStore(drain bool) *timeActionStore {
	return &timeActionStore{actions: make(map[int64]TimeAction), drain: drain}
}

// Add registers an action at virtual time t.
func (s *timeActionStore) Add(t int64, fn TimeAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[t] = fn
}

// Take consumes the actions due at virtual time now. Default behaviour takes
// only the single smallest elapsed key per call; later keys wait for later
// ticks. Drain mode consumes every elapsed key, ordered ascending.
func (s *timeActionStore) Take(now int64) []TimeAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dueKeys []int64
	for t := range s.actions {
		if t <= now {
			dueKeys = append(dueKeys, t)
		}
	}
	if len(dueKeys) == 0 {
		return nil
	}

	smallest := dueKeys[0]
	for _, t := range dueKeys {
		if t < smallest {
			smallest = t
		}
	}

	if !s.drain {
		fn := s.actions[smallest]
		delete(s.actions, smallest)
		return []TimeAction{fn}
	}

	// Ascending order so earlier actions observe state first.
	for i := 0; i < len(dueKeys); i++ {
		for j := i + 1; j < len(dueKeys); j++ {
			if dueKeys[j] < dueKeys[i] {
				dueKeys[i], dueKeys[j] = dueKeys[j], dueKeys[i]
			}
		}
	}
	fns := make([]TimeAction, 0, len(dueKeys))
	for _, t := range dueKeys {
		fns = append(fns, s.actions[t])
		delete(s.actions, t)
	}
	return fns
}

// Len returns the number of pending actions.
func (s *timeActionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Reset clears pending actions (navigation boundary).
func (s *timeActionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = make(map[int64]TimeAction)
}
