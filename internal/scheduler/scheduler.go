// Package scheduler proactively refreshes the access token ahead of expiry
// and ends sessions abandoned by the user. Timers are always cancelled before
// being re-armed, on logout and on teardown; a generation counter guarantees
// that a timer armed for an earlier token can never act on the current
// session.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stockkanban/client-go/pkg/token"
)

const (
	defaultRefreshLead     = 5 * time.Minute
	defaultWarningLead     = 10 * time.Minute
	defaultInactivityLimit = 60 * time.Minute
	defaultResumeWindow    = 10 * time.Minute

	// warningInactivity is how long the user must have been idle for the
	// warning timer to flag the session as likely abandoned.
	warningInactivity = 30 * time.Minute
)

// Refresher is the slice of the auth coordinator the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context)
}

// SessionReader exposes the session fields the scheduler needs.
type SessionReader interface {
	Authenticated() bool
	AccessToken() string
}

// Config holds scheduler timings. Zero values select the defaults.
type Config struct {
	// RefreshLead is how long before expiry the proactive refresh fires
	// (default: 5 minutes).
	RefreshLead time.Duration

	// WarningLead is how long before expiry the inactivity warning fires.
	// It is deliberately earlier than RefreshLead (default: 10 minutes).
	WarningLead time.Duration

	// InactivityLimit is the idle duration past which the refresh timer
	// ends the session instead of extending it (default: 60 minutes).
	InactivityLimit time.Duration

	// ResumeWindow is the remaining-lifetime threshold under which Resume
	// triggers an immediate refresh (default: 10 minutes).
	ResumeWindow time.Duration

	Logger *slog.Logger
}

// Scheduler arms a warning timer and a refresh timer relative to the access
// token's expiry.
type Scheduler struct {
	auth    Refresher
	session SessionReader
	tracker *Tracker
	logger  *slog.Logger

	refreshLead     time.Duration
	warningLead     time.Duration
	inactivityLimit time.Duration
	resumeWindow    time.Duration

	mu           sync.Mutex
	gen          uint64
	warnTimer    *time.Timer
	refreshTimer *time.Timer

	now func() time.Time
}

// New creates a stopped scheduler; call Arm with each new access token.
func New(auth Refresher, sess SessionReader, tracker *Tracker, cfg Config) *Scheduler {
	if cfg.RefreshLead == 0 {
		cfg.RefreshLead = defaultRefreshLead
	}
	if cfg.WarningLead == 0 {
		cfg.WarningLead = defaultWarningLead
	}
	if cfg.InactivityLimit == 0 {
		cfg.InactivityLimit = defaultInactivityLimit
	}
	if cfg.ResumeWindow == 0 {
		cfg.ResumeWindow = defaultResumeWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		auth:            auth,
		session:         sess,
		tracker:         tracker,
		logger:          cfg.Logger,
		refreshLead:     cfg.RefreshLead,
		warningLead:     cfg.WarningLead,
		inactivityLimit: cfg.InactivityLimit,
		resumeWindow:    cfg.ResumeWindow,
		now:             time.Now,
	}
}

// Arm cancels any armed timers and re-arms both relative to the given access
// token's expiry. An empty token just cancels. A token without a usable
// expiry ends the session: scheduling against it would silently never
// refresh.
func (s *Scheduler) Arm(accessToken string) {
	s.mu.Lock()
	s.cancelLocked()
	if accessToken == "" {
		s.mu.Unlock()
		return
	}

	exp, ok := token.ExpirationTime(accessToken)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("access token has no usable expiry, ending session")
		s.auth.Logout(context.Background())
		return
	}

	until := exp.Sub(s.now())
	gen := s.gen
	s.warnTimer = time.AfterFunc(delay(until, s.warningLead), func() { s.fireWarning(gen) })
	s.refreshTimer = time.AfterFunc(delay(until, s.refreshLead), func() { s.fireRefresh(gen) })
	s.mu.Unlock()
}

// Stop cancels all armed timers. Armed callbacks that already fired become
// no-ops through the generation check.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
}

// Resume covers a process waking from suspension or returning to the
// foreground: when the token expires within the resume window, refresh
// immediately instead of waiting for the (possibly already missed) timer.
func (s *Scheduler) Resume() {
	if !s.session.Authenticated() {
		return
	}
	exp, ok := token.ExpirationTime(s.session.AccessToken())
	if !ok {
		return
	}
	if exp.Sub(s.now()) >= s.resumeWindow {
		return
	}

	s.logger.Info("token expiring soon after resume, refreshing")
	if _, err := s.auth.Refresh(context.Background()); err != nil {
		s.logger.Warn("refresh on resume failed", "error", err)
	}
}

// cancelLocked invalidates outstanding timer callbacks and stops the timers.
func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.warnTimer != nil {
		s.warnTimer.Stop()
		s.warnTimer = nil
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// fireWarning is informational only: it flags sessions that look abandoned
// as expiry approaches.
func (s *Scheduler) fireWarning(gen uint64) {
	if !s.current(gen) || !s.session.Authenticated() {
		return
	}
	if idle := s.tracker.IdleFor(); idle > warningInactivity {
		s.logger.Warn("session expiring soon and user appears inactive", "idle", idle)
	}
}

// fireRefresh either extends the session or ends it: an abandoned session is
// treated as ended rather than silently extended.
func (s *Scheduler) fireRefresh(gen uint64) {
	if !s.current(gen) || !s.session.Authenticated() {
		return
	}

	if idle := s.tracker.IdleFor(); idle > s.inactivityLimit {
		s.logger.Info("ending session after prolonged inactivity", "idle", idle)
		s.auth.Logout(context.Background())
		return
	}

	if _, err := s.auth.Refresh(context.Background()); err != nil {
		// The coordinator has already torn the session down.
		s.logger.Warn("scheduled refresh failed", "error", err)
	}
}

func delay(until, lead time.Duration) time.Duration {
	d := until - lead
	if d < 0 {
		return 0
	}
	return d
}
