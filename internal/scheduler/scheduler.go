package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler is a registry of named one-shot timers. Scheduling a name that is
// already pending replaces the stale entry, so rapid reschedules never stack
// duplicate callbacks for the same name.
//
// Callbacks run on their own goroutine; a panic inside one is recovered and
// logged here so a bad callback cannot take the scheduler down.
type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	closed  bool
}

// Handle identifies one scheduled callback. A handle from a replaced or fired
// entry cancels nothing.
type Handle struct {
	name string
	gen  uint64
}

type entry struct {
	name   string
	gen    uint64
	timer  clockwork.Timer
	cancel chan struct{}
}

func New(clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Schedule registers fn to run after delay under the given name. Any pending
// entry with the same name is cancelled first.
func (s *Scheduler) Schedule(name string, delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Handle{}
	}
	if old, ok := s.entries[name]; ok {
		delete(s.entries, name)
		close(old.cancel)
	}
	s.gen++
	e := &entry{
		name:   name,
		gen:    s.gen,
		timer:  s.clock.NewTimer(delay),
		cancel: make(chan struct{}),
	}
	s.entries[name] = e
	s.mu.Unlock()

	go s.wait(e, fn)
	return Handle{name: name, gen: e.gen}
}

func (s *Scheduler) wait(e *entry, fn func()) {
	select {
	case <-e.timer.Chan():
		// Claim the entry before firing; losing the claim means a cancel or
		// replacement got there first and the callback must not run.
		if s.claim(e) {
			invoke(e.name, fn)
		}
	case <-e.cancel:
		stopAndDrain(e.timer)
	}
}

// claim removes e from the registry iff it is still the current entry for its
// name, returning whether the caller now owns the firing.
func (s *Scheduler) claim(e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[e.name]
	if !ok || cur != e {
		return false
	}
	delete(s.entries, e.name)
	return true
}

func invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("timer", name).Interface("panic", r).Msg("timer callback panicked")
		}
	}()
	fn()
}

// Cancel stops the pending entry the handle refers to. It reports false when
// the entry already fired, was replaced, or is unknown.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h.name]
	if !ok || e.gen != h.gen {
		return false
	}
	delete(s.entries, h.name)
	close(e.cancel)
	return true
}

// CancelName stops whatever entry is currently pending under name.
func (s *Scheduler) CancelName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	delete(s.entries, name)
	close(e.cancel)
	return true
}

// IsPending reports whether a timer is currently scheduled under name.
func (s *Scheduler) IsPending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Pending returns the number of scheduled entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown cancels every pending entry without firing it. The scheduler
// accepts no new work afterwards.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for name, e := range s.entries {
		close(e.cancel)
		delete(s.entries, name)
	}
}

// stopAndDrain stops a timer and drains its channel so the waiting goroutine
// cannot leak a buffered tick.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
