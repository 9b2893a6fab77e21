package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stockkanban/client-go/pkg/domain"
	"github.com/stockkanban/client-go/pkg/session"
)

// fakeAuth stands in for the coordinator so tests can count refresh and
// logout calls precisely.
type fakeAuth struct {
	mu           sync.Mutex
	store        *session.Store
	newToken     string
	refreshErr   error
	refreshCalls int
	logoutCalls  int
}

func (f *fakeAuth) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()

	if f.refreshErr != nil {
		f.store.Clear()
		return "", f.refreshErr
	}
	f.store.SetTokens(f.newToken, "refresh-2", domain.Identity{ID: "1"})
	return f.newToken, nil
}

func (f *fakeAuth) Logout(ctx context.Context) {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	f.store.Clear()
}

func (f *fakeAuth) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.logoutCalls
}

func newTransport(store *session.Store, auth *fakeAuth) *Transport {
	return &Transport{
		Session:      store,
		Auth:         auth,
		PollInterval: 10 * time.Millisecond,
	}
}

func errorField(t *testing.T, resp *http.Response, field string) any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	var payload struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal error payload %q: %v", raw, err)
	}
	return payload.Error[field]
}

func TestRoundTrip_StampsBearerAtSendTime(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := session.New()
	store.SetAuthenticated("tok-1", "ref-1", domain.Identity{ID: "1"})
	client := NewClient(newTransport(store, &fakeAuth{store: store}))

	if _, err := client.Get(srv.URL); err != nil {
		t.Fatal(err)
	}

	store.SetTokens("tok-2", "ref-2", domain.Identity{ID: "1"})
	if _, err := client.Get(srv.URL); err != nil {
		t.Fatal(err)
	}

	want := []string{"Bearer tok-1", "Bearer tok-2"}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestRoundTrip_RefreshAndRetryOn401(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer tok-new" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"token expired"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	store := session.New()
	store.SetAuthenticated("tok-old", "ref-1", domain.Identity{ID: "1"})
	auth := &fakeAuth{store: store, newToken: "tok-new"}
	client := NewClient(newTransport(store, auth))

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after refresh and retry", resp.StatusCode)
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want 2 (original + one retry)", requests)
	}
	if refreshes, _ := auth.counts(); refreshes != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshes)
	}
}

func TestRoundTrip_NeverRetriesMoreThanOnce(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()

	store := session.New()
	store.SetAuthenticated("tok-old", "ref-1", domain.Identity{ID: "1"})
	auth := &fakeAuth{store: store, newToken: "tok-new"}
	client := NewClient(newTransport(store, auth))

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want the original 401 to surface", resp.StatusCode)
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want exactly 2 (no retry loop)", requests)
	}
	if refreshes, _ := auth.counts(); refreshes != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshes)
	}
	if got := errorField(t, resp, "traceId"); got == nil || got == "" {
		t.Error("surfaced 401 payload missing synthesized traceId")
	}
}

func TestRoundTrip_RefreshFailureTriggersLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"token expired"}}`))
	}))
	defer srv.Close()

	store := session.New()
	store.SetAuthenticated("tok-old", "ref-1", domain.Identity{ID: "1"})
	auth := &fakeAuth{store: store, refreshErr: errors.New("refresh rejected")}
	client := NewClient(newTransport(store, auth))

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want original 401", resp.StatusCode)
	}
	if _, logouts := auth.counts(); logouts != 1 {
		t.Errorf("logout calls = %d, want 1", logouts)
	}
	if store.Authenticated() {
		t.Error("session still authenticated after failed refresh")
	}
}

func TestRoundTrip_WaitsForInFlightRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-new" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"token expired"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := session.New()
	store.SetAuthenticated("tok-old", "ref-1", domain.Identity{ID: "1"})
	store.SetRefreshing(true)

	auth := &fakeAuth{store: store, newToken: "should-not-be-used"}
	client := NewClient(newTransport(store, auth))

	// Simulate another caller's refresh settling shortly.
	go func() {
		time.Sleep(80 * time.Millisecond)
		store.SetTokens("tok-new", "ref-2", domain.Identity{ID: "1"})
		store.SetRefreshing(false)
	}()

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 via the other caller's refresh", resp.StatusCode)
	}
	if refreshes, _ := auth.counts(); refreshes != 0 {
		t.Errorf("refresh calls = %d, want 0 (must join the in-flight refresh)", refreshes)
	}
}

func TestRoundTrip_ForbiddenEnriched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"admin only"}}`))
	}))
	defer srv.Close()

	store := session.New()
	store.SetAuthenticated("tok", "ref", domain.Identity{ID: "1"})
	auth := &fakeAuth{store: store}
	client := NewClient(newTransport(store, auth))

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error domain.APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal enriched 403: %v", err)
	}

	if payload.Error.Message != "admin only" {
		t.Errorf("server message was overwritten: %q", payload.Error.Message)
	}
	if payload.Error.Code != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", payload.Error.Code)
	}
	if payload.Error.Hint == "" || payload.Error.Timestamp == "" {
		t.Error("hint and timestamp must be synthesized when absent")
	}
	if !strings.HasPrefix(payload.Error.TraceID, "trace-") {
		t.Errorf("traceId = %q, want synthesized trace- prefix", payload.Error.TraceID)
	}
	if refreshes, _ := auth.counts(); refreshes != 0 {
		t.Error("403 must never trigger a refresh")
	}
}

func TestRoundTrip_OtherErrorsGetTraceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	store := session.New()
	client := NewClient(newTransport(store, &fakeAuth{store: store}))

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := errorField(t, resp, "traceId"); got == nil || got == "" {
		t.Error("500 payload missing synthesized traceId")
	}
	if got := errorField(t, resp, "message"); got != "boom" {
		t.Errorf("message = %v, want boom preserved", got)
	}
}

func TestRoundTrip_ExistingTraceIDPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","traceId":"trace-from-server"}}`))
	}))
	defer srv.Close()

	store := session.New()
	client := NewClient(newTransport(store, &fakeAuth{store: store}))

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := errorField(t, resp, "traceId"); got != "trace-from-server" {
		t.Errorf("traceId = %v, want server-provided value preserved", got)
	}
}
