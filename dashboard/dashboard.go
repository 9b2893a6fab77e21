// Package dashboard wires the session store, keystore, auth coordinator,
// refresh scheduler and request gateway into one client for the stock kanban
// API.
//
// Basic usage:
//
//	client, err := dashboard.New(dashboard.Config{
//	    BaseURL: "http://localhost:8081",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Start(ctx)
//
//	if _, err := client.Login(ctx, "me@example.com", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	cards, err := client.API().Cards(ctx, api.SearchParams{})
//
// Call Touch on user interaction so the scheduler can tell an active session
// from an abandoned one, and Resume after the process wakes from suspension.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/stockkanban/client-go/internal/gateway"
	"github.com/stockkanban/client-go/internal/keystore"
	"github.com/stockkanban/client-go/internal/scheduler"
	"github.com/stockkanban/client-go/pkg/api"
	"github.com/stockkanban/client-go/pkg/auth"
	"github.com/stockkanban/client-go/pkg/domain"
	"github.com/stockkanban/client-go/pkg/session"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the dashboard API root (required).
	BaseURL string

	// KeystorePath overrides where credentials are persisted
	// (default: <user config dir>/stockkanban/credentials.json).
	KeystorePath string

	// UserAgent identifies this client on requests and security events.
	UserAgent string

	// Lockout settings passed through to the auth coordinator.
	MaxLoginAttempts int
	LockoutWindow    time.Duration

	// Scheduler timings. Zero values select the defaults.
	RefreshLead     time.Duration
	WarningLead     time.Duration
	InactivityLimit time.Duration
	ResumeWindow    time.Duration

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Client is the assembled dashboard client.
type Client struct {
	logger    *slog.Logger
	store     *session.Store
	keystore  *keystore.FileStore
	auth      *auth.Coordinator
	scheduler *scheduler.Scheduler
	tracker   *scheduler.Tracker
	api       *api.Client

	watchCancel context.CancelFunc
}

// New assembles a client. The persisted session, if any, is restored: a
// still-valid token comes back authenticated, an expired or malformed one is
// discarded.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var ks *keystore.FileStore
	var err error
	if cfg.KeystorePath != "" {
		ks, err = keystore.New(cfg.KeystorePath)
	} else {
		ks, err = keystore.Default()
	}
	if err != nil {
		return nil, err
	}

	store := session.Restore(ks)

	coordinator := auth.New(store, ks, auth.Config{
		BaseURL:          cfg.BaseURL,
		UserAgent:        cfg.UserAgent,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutWindow:    cfg.LockoutWindow,
		Logger:           cfg.Logger,
	})

	tracker := scheduler.NewTracker()
	sched := scheduler.New(coordinator, store, tracker, scheduler.Config{
		RefreshLead:     cfg.RefreshLead,
		WarningLead:     cfg.WarningLead,
		InactivityLimit: cfg.InactivityLimit,
		ResumeWindow:    cfg.ResumeWindow,
		Logger:          cfg.Logger,
	})

	// Every token change re-arms the timers; teardown cancels them.
	coordinator.OnTokensChanged(sched.Arm)

	httpClient := gateway.NewClient(&gateway.Transport{
		Session: store,
		Auth:    coordinator,
		Logger:  cfg.Logger,
	})

	return &Client{
		logger:    cfg.Logger,
		store:     store,
		keystore:  ks,
		auth:      coordinator,
		scheduler: sched,
		tracker:   tracker,
		api:       api.NewClient(cfg.BaseURL, httpClient),
	}, nil
}

// Start arms the scheduler for a restored session and begins watching the
// credentials file so a logout by another process ends this session too.
func (c *Client) Start(ctx context.Context) {
	if c.store.Authenticated() {
		c.scheduler.Arm(c.store.AccessToken())
		c.scheduler.Resume()
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.watchCancel = cancel
	go func() {
		err := c.keystore.Watch(watchCtx, c.logger, c.onExternalClear)
		if err != nil && watchCtx.Err() == nil {
			c.logger.Warn("credentials watch stopped", "error", err)
		}
	}()
}

// onExternalClear runs when another process removed the persisted tokens.
func (c *Client) onExternalClear() {
	if !c.store.Authenticated() {
		return
	}
	c.logger.Info("session ended by another process")
	c.store.Clear()
	c.scheduler.Stop()
}

// Close stops the scheduler and the credentials watcher. The session itself
// is left untouched so a later process can restore it.
func (c *Client) Close() {
	c.scheduler.Stop()
	if c.watchCancel != nil {
		c.watchCancel()
	}
}

// Login authenticates and starts the refresh schedule.
func (c *Client) Login(ctx context.Context, email, password string) (session.Snapshot, error) {
	c.tracker.Touch()
	return c.auth.Login(ctx, email, password)
}

// Register creates an account and authenticates.
func (c *Client) Register(ctx context.Context, username, email, password, confirmPassword string) (session.Snapshot, error) {
	c.tracker.Touch()
	return c.auth.Register(ctx, username, email, password, confirmPassword)
}

// Logout ends the session locally no matter what the server says.
func (c *Client) Logout(ctx context.Context) {
	c.auth.Logout(ctx)
}

// Refresh forces a token refresh, joining any in-flight one.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.auth.Refresh(ctx)
	return err
}

// API returns the typed client for board, watchlist and chart calls.
func (c *Client) API() *api.Client {
	return c.api
}

// Session returns a point-in-time copy of the session state.
func (c *Client) Session() session.Snapshot {
	return c.store.Snapshot()
}

// Events returns the bounded security event log.
func (c *Client) Events() []domain.SecurityEvent {
	return c.auth.Events()
}

// Touch records user activity for the inactivity checks.
func (c *Client) Touch() {
	c.tracker.Touch()
}

// Resume should be called when the process returns to the foreground; it
// refreshes immediately if the token is close to expiry.
func (c *Client) Resume() {
	c.scheduler.Resume()
}

// Language returns the persisted UI language preference.
func (c *Client) Language() string {
	return c.keystore.Language()
}

// SetLanguage persists the UI language preference.
func (c *Client) SetLanguage(lang string) error {
	return c.keystore.SetLanguage(lang)
}

// Theme returns the persisted theme preference.
func (c *Client) Theme() string {
	return c.keystore.Theme()
}

// SetTheme persists the theme preference.
func (c *Client) SetTheme(theme string) error {
	return c.keystore.SetTheme(theme)
}

// HTTPClient returns a client that sends authenticated requests through the
// gateway, for callers needing endpoints the typed API does not cover.
func (c *Client) HTTPClient() *http.Client {
	return gateway.NewClient(&gateway.Transport{
		Session: c.store,
		Auth:    c.auth,
		Logger:  c.logger,
	})
}
