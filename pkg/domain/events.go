package domain

import "time"

// SecurityEventType classifies entries in the client-side security event log.
type SecurityEventType string

const (
	EventLoginAttempt       SecurityEventType = "LOGIN_ATTEMPT"
	EventLoginSuccess       SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailure       SecurityEventType = "LOGIN_FAILURE"
	EventTokenRefresh       SecurityEventType = "TOKEN_REFRESH"
	EventLogout             SecurityEventType = "LOGOUT"
	EventSuspiciousActivity SecurityEventType = "SUSPICIOUS_ACTIVITY"
)

// SecurityEvent is one entry in the bounded client-side event log. The log is
// diagnostic only and may be dropped at any time without correctness impact.
type SecurityEvent struct {
	Type      SecurityEventType `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	UserAgent string            `json:"userAgent"`
	Details   map[string]any    `json:"details,omitempty"`
}
