// Package httputil writes the dashboard API's JSON envelopes.
package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Meta accompanies every success payload.
type Meta struct {
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"traceId"`
	Version   string `json:"version"`
}

type successEnvelope struct {
	Success    bool `json:"success"`
	Data       any  `json:"data"`
	Pagination any  `json:"pagination,omitempty"`
	Meta       Meta `json:"meta"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	TraceID   string `json:"traceId"`
	Timestamp string `json:"timestamp"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	writeSuccess(w, status, data, nil)
}

// PagedJSON writes a success envelope with pagination.
func PagedJSON(w http.ResponseWriter, status int, data, pagination any) {
	writeSuccess(w, status, data, pagination)
}

// Error writes the documented error envelope with a fresh trace id.
func Error(w http.ResponseWriter, status int, code, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorBody{
			Code:      code,
			Message:   message,
			Hint:      hint,
			TraceID:   newTraceID(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func writeSuccess(w http.ResponseWriter, status int, data, pagination any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{
		Success:    true,
		Data:       data,
		Pagination: pagination,
		Meta: Meta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			TraceID:   newTraceID(),
			Version:   "1.0",
		},
	})
}

func newTraceID() string {
	return "trace-" + uuid.NewString()
}
