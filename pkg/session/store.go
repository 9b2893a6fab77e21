// Package session holds the authenticated context shared by the auth
// coordinator, the refresh scheduler and the request gateway.
package session

import (
	"sync"

	"github.com/stockkanban/client-go/pkg/domain"
	"github.com/stockkanban/client-go/pkg/token"
)

// Keystore persists the token pair across process restarts.
type Keystore interface {
	SaveTokens(accessToken, refreshToken string) error
	LoadTokens() (accessToken, refreshToken string, err error)
	ClearTokens() error
}

// Store is the single shared mutable session state. Only the auth
// coordinator writes it; the scheduler and the gateway read snapshots and
// individual fields. All mutations are applied under one lock so observers
// never see a partial update.
type Store struct {
	mu            sync.RWMutex
	accessToken   string
	refreshToken  string
	identity      *domain.Identity
	authenticated bool
	loading       bool
	refreshing    bool
	lastError     string
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	AccessToken   string
	RefreshToken  string
	Identity      *domain.Identity
	Authenticated bool
	Loading       bool
	Refreshing    bool
	LastError     string
}

// New returns an empty, unauthenticated store.
func New() *Store {
	return &Store{}
}

// Restore builds a store from persisted tokens. An expired or undecodable
// access token clears the persisted pair rather than reviving the session.
func Restore(ks Keystore) *Store {
	s := &Store{}

	access, refresh, err := ks.LoadTokens()
	if err != nil || access == "" {
		return s
	}

	claims, err := token.Decode(access)
	if err != nil || token.IsExpired(access) {
		_ = ks.ClearTokens()
		return s
	}

	id := claims.Identity()
	s.accessToken = access
	s.refreshToken = refresh
	s.identity = &id
	s.authenticated = true
	return s
}

// SetAuthenticated replaces the session wholesale after a successful login
// or registration.
func (s *Store) SetAuthenticated(accessToken, refreshToken string, identity domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.identity = &identity
	s.authenticated = true
	s.lastError = ""
}

// SetTokens replaces the token pair in place after a successful refresh and
// recomputes the identity from the new access token.
func (s *Store) SetTokens(accessToken, refreshToken string, identity domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.identity = &identity
	s.authenticated = true
	s.lastError = ""
}

// Clear tears the session down. Used on logout and on refresh failure.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
	s.identity = nil
	s.authenticated = false
	s.loading = false
	s.refreshing = false
}

// SetLoading flags an in-flight login or registration.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// SetRefreshing flags an in-flight token refresh.
func (s *Store) SetRefreshing(v bool) {
	s.mu.Lock()
	s.refreshing = v
	s.mu.Unlock()
}

// SetError records the last user-facing auth error message.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// AccessToken returns the current access token, empty when logged out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, empty when logged out.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Authenticated reports whether the session currently holds both tokens and
// an identity.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Refreshing reports whether a token refresh is in flight.
func (s *Store) Refreshing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshing
}

// Snapshot returns a consistent copy of the whole session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id *domain.Identity
	if s.identity != nil {
		cp := *s.identity
		id = &cp
	}
	return Snapshot{
		AccessToken:   s.accessToken,
		RefreshToken:  s.refreshToken,
		Identity:      id,
		Authenticated: s.authenticated,
		Loading:       s.loading,
		Refreshing:    s.refreshing,
		LastError:     s.lastError,
	}
}
