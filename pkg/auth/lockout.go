package auth

import "time"

// loginAttempts tracks failed logins for one normalized email. Held only in
// memory: the server remains the authority on rate limiting, this is lockout
// UX on the client side.
type loginAttempts struct {
	count       int
	lastAttempt time.Time
}

// locked reports whether the identity has hit the attempt limit within the
// lockout window.
func (c *Coordinator) locked(key string) bool {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()

	a, ok := c.attempts[key]
	if !ok {
		return false
	}
	return a.count >= c.maxAttempts && c.now().Sub(a.lastAttempt) < c.lockoutWindow
}

// trackFailure records a failed login, restarting the count when the last
// failure is older than the lockout window.
func (c *Coordinator) trackFailure(key string) {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()

	now := c.now()
	a, ok := c.attempts[key]
	if !ok {
		a = &loginAttempts{}
		c.attempts[key] = a
	}
	if now.Sub(a.lastAttempt) > c.lockoutWindow {
		a.count = 0
	}
	a.count++
	a.lastAttempt = now
}

// clearFailures resets the counter after a successful login.
func (c *Coordinator) clearFailures(key string) {
	c.attemptsMu.Lock()
	delete(c.attempts, key)
	c.attemptsMu.Unlock()
}
