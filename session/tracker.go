package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker records active foreground sessions. Sessions idle longer than the
// configured limit no longer count as active, so a caller that forgets to
// End cannot suspend background work forever.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	maxIdle  time.Duration
	now      func() time.Time
}

// NewTracker creates a Tracker. A non-positive maxIdle disables expiry.
func NewTracker(maxIdle time.Duration) *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
		maxIdle:  maxIdle,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Begin opens a foreground session.
func (t *Tracker) Begin() Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s := &trackedSession{
		tracker:  t,
		id:       uuid.Must(uuid.NewV7()).String(),
		started:  now,
		lastSeen: now,
	}
	t.sessions[s.id] = s
	return s
}

// Active reports whether any unexpired session is open. Expired sessions
// are pruned as a side effect.
func (t *Tracker) Active() bool {
	return t.Count() > 0
}

// Count returns the number of unexpired open sessions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, s := range t.sessions {
		if t.maxIdle > 0 && now.Sub(s.lastSeen) > t.maxIdle {
			delete(t.sessions, id)
		}
	}
	return len(t.sessions)
}

type trackedSession struct {
	tracker  *Tracker
	id       string
	started  time.Time
	lastSeen time.Time
}

func (s *trackedSession) ID() string {
	return s.id
}

func (s *trackedSession) Started() time.Time {
	return s.started
}

func (s *trackedSession) Touch() {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()
	s.lastSeen = s.tracker.now()
}

func (s *trackedSession) End() {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()
	delete(s.tracker.sessions, s.id)
}
