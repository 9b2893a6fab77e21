package domain

import "fmt"

// APIError is the error body carried by non-2xx responses from the dashboard
// API: {"error":{"code","message","hint","traceId","timestamp"}}. The request
// gateway guarantees TraceID and Timestamp are populated, synthesizing them
// when the server omits them.
type APIError struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Hint      string `json:"hint,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// Status is the HTTP status code of the response. Not part of the wire
	// payload.
	Status int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (status %d)", e.Status)
	}
	if e.TraceID != "" {
		return fmt.Sprintf("%s (trace %s)", e.Message, e.TraceID)
	}
	return e.Message
}
