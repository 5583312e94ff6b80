package engine

import (
	"sort"
	"sync"
	"time"
)

// TimerKind names which lifecycle deadline a timer enforces.
type TimerKind string

const (
	TimerPending    TimerKind = "pending"
	TimerValidating TimerKind = "validating"
)

// ArmedTimer is a read-only view of one scheduled deadline.
type ArmedTimer struct {
	ValidationID string    `json:"validation_id"`
	Kind         TimerKind `json:"kind"`
	Deadline     time.Time `json:"deadline" format:"date-time"`
}

type timerEntry struct {
	gen      uint64
	kind     TimerKind
	deadline time.Time
	timer    *time.Timer
}

// Scheduler keeps at most one deadline per validation id. It holds no durable
// state; recovery rebuilds it from stored timestamps after a restart.
type Scheduler struct {
	// Now stamps deadlines for Snapshot. Delays themselves always use the runtime clock.
	Now func() time.Time

	mu       sync.Mutex
	entries  map[string]*timerEntry
	gen      uint64
	stopped  bool
	inflight sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{entries: map[string]*timerEntry{}}
}

func (s *Scheduler) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Arm schedules fn after delay, replacing any timer already armed for id.
// A non-positive delay fires on the next tick. It returns false after Stop.
func (s *Scheduler) Arm(id string, kind TimerKind, delay time.Duration, fn func()) bool {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if s.entries == nil {
		s.entries = map[string]*timerEntry{}
	}
	if old, ok := s.entries[id]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	entry := &timerEntry{gen: gen, kind: kind, deadline: s.clock().Add(delay)}
	entry.timer = time.AfterFunc(delay, func() { s.fire(id, gen, fn) })
	s.entries[id] = entry
	return true
}

func (s *Scheduler) fire(id string, gen uint64, fn func()) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok || entry.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	fn()
}

// Cancel removes the timer for id without running it. A callback that has
// already started is not interrupted.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.entries, id)
	return true
}

// Lookup returns the timer armed for id, if any.
func (s *Scheduler) Lookup(id string) (ArmedTimer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ArmedTimer{}, false
	}
	return ArmedTimer{ValidationID: id, Kind: entry.kind, Deadline: entry.deadline}, true
}

// Snapshot lists armed timers ordered by deadline.
func (s *Scheduler) Snapshot() []ArmedTimer {
	s.mu.Lock()
	out := make([]ArmedTimer, 0, len(s.entries))
	for id, entry := range s.entries {
		out = append(out, ArmedTimer{ValidationID: id, Kind: entry.kind, Deadline: entry.deadline})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].ValidationID < out[j].ValidationID
		}
		return out[i].Deadline.Before(out[j].Deadline)
	})
	return out
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every timer, refuses new ones, and waits for running callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.inflight.Wait()
}
