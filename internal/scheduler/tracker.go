package scheduler

import (
	"sync"
	"time"
)

// Tracker records the most recent user activity. It runs independent of
// authentication state: the embedding program calls Touch on any user
// interaction (key press, command, pointer input) and the scheduler consults
// IdleFor when deciding between refreshing and ending an abandoned session.
type Tracker struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewTracker starts with the current instant as the last activity.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.last = t.now()
	return t
}

// Touch records user activity.
func (t *Tracker) Touch() {
	t.mu.Lock()
	t.last = t.now()
	t.mu.Unlock()
}

// IdleFor returns the time elapsed since the last recorded activity.
func (t *Tracker) IdleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.last)
}
