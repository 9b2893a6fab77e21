// Package auth owns login, registration, logout and token refresh for the
// dashboard API. It is the only writer of the shared session store and the
// persisted keystore; the refresh scheduler and the request gateway read
// session state and call back into this package.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/stockkanban/client-go/pkg/domain"
	"github.com/stockkanban/client-go/pkg/session"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutWindow    = 15 * time.Minute
	defaultTimeout          = 10 * time.Second
)

// Config holds coordinator configuration.
type Config struct {
	// BaseURL is the dashboard API root, e.g. http://localhost:8081.
	BaseURL string

	// HTTPClient issues the auth calls. Auth endpoints deliberately bypass
	// the request gateway: a 401 from login must never trigger a refresh.
	// Defaults to a plain client with a 10s timeout.
	HTTPClient *http.Client

	// UserAgent is recorded on security events and sent with requests.
	UserAgent string

	// MaxLoginAttempts failed logins within LockoutWindow lock the account
	// client-side (default: 5 within 15 minutes).
	MaxLoginAttempts int
	LockoutWindow    time.Duration

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Coordinator enforces the session lifecycle: at most one in-flight refresh,
// per-identity lockout tracking, and unconditional local teardown on logout.
type Coordinator struct {
	baseURL   string
	http      *http.Client
	store     *session.Store
	keystore  session.Keystore
	logger    *slog.Logger
	validate  *validator.Validate
	userAgent string

	sf singleflight.Group

	maxAttempts   int
	lockoutWindow time.Duration
	attemptsMu    sync.Mutex
	attempts      map[string]*loginAttempts

	events *eventLog

	tokensMu        sync.Mutex
	onTokensChanged func(accessToken string)

	now func() time.Time
}

// New creates a coordinator bound to the given session store and keystore.
func New(store *session.Store, ks session.Keystore, cfg Config) *Coordinator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.MaxLoginAttempts == 0 {
		cfg.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if cfg.LockoutWindow == 0 {
		cfg.LockoutWindow = defaultLockoutWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Coordinator{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          cfg.HTTPClient,
		store:         store,
		keystore:      ks,
		logger:        cfg.Logger,
		validate:      validator.New(),
		userAgent:     cfg.UserAgent,
		maxAttempts:   cfg.MaxLoginAttempts,
		lockoutWindow: cfg.LockoutWindow,
		attempts:      make(map[string]*loginAttempts),
		events:        newEventLog(cfg.UserAgent),
		now:           time.Now,
	}
}

// OnTokensChanged registers a callback invoked after every token change:
// with the new access token on login/registration/refresh success, and with
// an empty string when the session is torn down. The scheduler re-arms its
// timers from it.
func (c *Coordinator) OnTokensChanged(fn func(accessToken string)) {
	c.tokensMu.Lock()
	c.onTokensChanged = fn
	c.tokensMu.Unlock()
}

func (c *Coordinator) notifyTokens(accessToken string) {
	c.tokensMu.Lock()
	fn := c.onTokensChanged
	c.tokensMu.Unlock()
	if fn != nil {
		fn(accessToken)
	}
}

// Login authenticates with email and password. A locked identity fails with
// ErrAccountLocked before any network call.
func (c *Coordinator) Login(ctx context.Context, email, password string) (session.Snapshot, error) {
	key := normalizeEmail(email)
	if c.locked(key) {
		c.logEvent(domain.EventSuspiciousActivity, map[string]any{
			"reason": "account locked after repeated failed attempts",
			"email":  email,
		})
		return session.Snapshot{}, domain.ErrAccountLocked
	}

	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	c.logEvent(domain.EventLoginAttempt, map[string]any{"email": email})

	var resp authResponse
	if err := c.postJSON(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		c.trackFailure(key)
		mapped := mapLoginError(err)
		c.store.SetError(mapped.Error())
		c.logEvent(domain.EventLoginFailure, map[string]any{
			"email": email,
			"error": mapped.Error(),
		})
		return session.Snapshot{}, mapped
	}

	c.clearFailures(key)
	c.logEvent(domain.EventLoginSuccess, map[string]any{
		"email": email,
		"role":  resp.Data.User.Role,
	})

	return c.adoptSession(resp)
}

// Register creates an account and authenticates in one step. Input is
// validated before any network call.
func (c *Coordinator) Register(ctx context.Context, username, email, password, confirmPassword string) (session.Snapshot, error) {
	in := registerInput{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	}
	if err := c.validate.Struct(in); err != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	c.logEvent(domain.EventLoginAttempt, map[string]any{
		"type":     "REGISTRATION",
		"email":    email,
		"username": username,
	})

	req := registerRequest{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	}
	var resp authResponse
	if err := c.postJSON(ctx, "/auth/register", req, &resp); err != nil {
		mapped := mapRegisterError(err)
		c.store.SetError(mapped.Error())
		c.logEvent(domain.EventLoginFailure, map[string]any{
			"type":  "REGISTRATION",
			"email": email,
			"error": mapped.Error(),
		})
		return session.Snapshot{}, mapped
	}

	c.logEvent(domain.EventLoginSuccess, map[string]any{
		"type":     "REGISTRATION",
		"email":    email,
		"username": username,
		"role":     resp.Data.User.Role,
	})

	return c.adoptSession(resp)
}

// Logout is best-effort towards the server but unconditional locally: the
// session and persisted tokens are cleared even when the server call fails.
func (c *Coordinator) Logout(ctx context.Context) {
	refresh := c.store.RefreshToken()

	c.logEvent(domain.EventLogout, map[string]any{
		"action":          "ATTEMPT",
		"hasRefreshToken": refresh != "",
	})

	if refresh != "" {
		if err := c.postJSON(ctx, "/auth/logout", logoutRequest{RefreshToken: refresh}, nil); err != nil {
			c.logger.Warn("logout request failed", "error", err)
			c.logEvent(domain.EventLogout, map[string]any{"action": "ERROR", "error": err.Error()})
		} else {
			c.logEvent(domain.EventLogout, map[string]any{"action": "SUCCESS"})
		}
	}

	c.store.Clear()
	if err := c.keystore.ClearTokens(); err != nil {
		c.logger.Warn("failed to clear persisted tokens", "error", err)
	}
	c.notifyTokens("")
}

// Events returns a copy of the bounded security event log.
func (c *Coordinator) Events() []domain.SecurityEvent {
	return c.events.list()
}

// adoptSession replaces the session wholesale from a login or registration
// response and persists the new token pair.
func (c *Coordinator) adoptSession(resp authResponse) (session.Snapshot, error) {
	identity := domain.Identity{
		ID:       resp.Data.User.ID,
		Username: resp.Data.User.Username,
		Email:    resp.Data.User.Email,
		Role:     resp.Data.User.Role,
	}

	c.store.SetAuthenticated(resp.Data.Token, resp.Data.RefreshToken, identity)
	if err := c.keystore.SaveTokens(resp.Data.Token, resp.Data.RefreshToken); err != nil {
		c.logger.Warn("failed to persist tokens", "error", err)
	}
	c.notifyTokens(resp.Data.Token)

	return c.store.Snapshot(), nil
}

func (c *Coordinator) logEvent(typ domain.SecurityEventType, details map[string]any) {
	e := c.events.append(typ, c.now(), details)
	c.logger.Debug("security event", "type", string(e.Type), "details", details)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mapLoginError converts transport and HTTP failures to the login error
// taxonomy. Unmapped statuses keep the server-provided message.
func mapLoginError(err error) error {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return domain.ErrInvalidCredentials
		case http.StatusForbidden:
			return domain.ErrAccountDisabled
		case http.StatusTooManyRequests:
			return domain.ErrRateLimited
		}
	}
	return err
}

func mapRegisterError(err error) error {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusConflict:
			return domain.ErrDuplicateAccount
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, apiErr.Message)
		}
	}
	return err
}
