package domain

import "errors"

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account disabled or insufficient permissions")
	ErrAccountLocked      = errors.New("account temporarily locked due to too many failed login attempts")
	ErrRateLimited        = errors.New("too many attempts, try again later")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrRefreshFailed      = errors.New("token refresh failed")
)

// Registration errors
var (
	ErrDuplicateAccount = errors.New("email or username already in use")
	ErrInvalidInput     = errors.New("invalid registration input")
)

// Token errors
var (
	ErrMalformedToken = errors.New("malformed token")
)
