package auth

import (
	"sync"
	"time"

	"github.com/stockkanban/client-go/pkg/domain"
)

// maxSecurityEvents caps the in-memory log; older entries are dropped.
const maxSecurityEvents = 50

// eventLog is a bounded, append-only record of auth activity kept for
// debugging. Not authoritative: entries may be dropped at any time.
type eventLog struct {
	mu        sync.Mutex
	userAgent string
	entries   []domain.SecurityEvent
}

func newEventLog(userAgent string) *eventLog {
	return &eventLog{userAgent: userAgent}
}

func (l *eventLog) append(typ domain.SecurityEventType, at time.Time, details map[string]any) domain.SecurityEvent {
	e := domain.SecurityEvent{
		Type:      typ,
		Timestamp: at,
		UserAgent: l.userAgent,
		Details:   details,
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > maxSecurityEvents {
		l.entries = l.entries[len(l.entries)-maxSecurityEvents:]
	}
	l.mu.Unlock()

	return e
}

func (l *eventLog) list() []domain.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.SecurityEvent, len(l.entries))
	copy(out, l.entries)
	return out
}
