package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockkanban/client-go/internal/devserver"
	"github.com/stockkanban/client-go/internal/keystore"
	"github.com/stockkanban/client-go/pkg/api"
	"github.com/stockkanban/client-go/pkg/domain"
)

type stack struct {
	client   *Client
	baseURL  string
	keystore string
}

func newStack(t *testing.T) stack {
	t.Helper()

	server := devserver.New(devserver.Config{Logger: slog.New(slog.DiscardHandler)})
	if err := server.SeedUser("testuser", "test@example.com", "password123", "USER", false); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "credentials.json")
	client, err := New(Config{
		BaseURL:      srv.URL,
		KeystorePath: path,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)

	return stack{client: client, baseURL: srv.URL, keystore: path}
}

func TestEndToEnd_LoginBoardLogout(t *testing.T) {
	client := newStack(t).client
	ctx := context.Background()

	snap, err := client.Login(ctx, "test@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !snap.Authenticated || snap.Identity.Username != "testuser" {
		t.Fatalf("session = %+v", snap)
	}

	wl, err := client.API().CreateWatchlist(ctx, "semis", 0)
	if err != nil {
		t.Fatalf("CreateWatchlist() error = %v", err)
	}
	if err := client.API().AddStock(ctx, wl.ID, "2330", "foundry"); err != nil {
		t.Fatalf("AddStock() error = %v", err)
	}

	page, err := client.API().Cards(ctx, api.SearchParams{})
	if err != nil {
		t.Fatalf("Cards() error = %v", err)
	}
	if len(page.Cards) != 1 || page.Cards[0].Status != api.StatusWatch {
		t.Fatalf("cards = %+v", page.Cards)
	}

	if _, err := client.API().UpdateCard(ctx, page.Cards[0].ID, api.CardUpdate{Status: api.StatusHold}); err != nil {
		t.Fatalf("UpdateCard() error = %v", err)
	}
	stats, err := client.API().Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.HoldCount != 1 {
		t.Errorf("stats = %+v", stats)
	}

	client.Logout(ctx)
	if client.Session().Authenticated {
		t.Error("session survived logout")
	}
}

func TestEndToEnd_SessionRestoredAcrossClients(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	if _, err := s.client.Login(ctx, "test@example.com", "password123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// A second client against the same keystore picks the session up.
	second, err := New(Config{
		BaseURL:      s.baseURL,
		KeystorePath: s.keystore,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	snap := second.Session()
	if !snap.Authenticated {
		t.Fatal("restored session not authenticated")
	}
	if snap.Identity == nil || snap.Identity.Email != "test@example.com" {
		t.Errorf("restored identity = %+v", snap.Identity)
	}
}

func TestEndToEnd_RefreshKeepsSession(t *testing.T) {
	client := newStack(t).client
	ctx := context.Background()

	if _, err := client.Login(ctx, "test@example.com", "password123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	after := client.Session()
	if !after.Authenticated || after.AccessToken == "" {
		t.Fatalf("session after refresh = %+v", after)
	}

	// The refreshed token still works against protected routes.
	if _, err := client.API().Stats(ctx); err != nil {
		t.Fatalf("Stats() after refresh error = %v", err)
	}
}

func TestEndToEnd_InvalidCredentials(t *testing.T) {
	client := newStack(t).client

	_, err := client.Login(context.Background(), "test@example.com", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}

	events := client.Events()
	if len(events) == 0 {
		t.Fatal("no security events recorded")
	}
	last := events[len(events)-1]
	if last.Type != domain.EventLoginFailure {
		t.Errorf("last event = %s, want LOGIN_FAILURE", last.Type)
	}
}

func TestEndToEnd_ExternalClearEndsSession(t *testing.T) {
	s := newStack(t)
	client := s.client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := client.Login(ctx, "test@example.com", "password123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	client.Start(ctx)

	// Another process clears the shared credentials file.
	other, err := keystore.New(s.keystore)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.ClearTokens(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !client.Session().Authenticated {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("session still authenticated after external credential clear")
}

func TestPreferences_SurviveLogout(t *testing.T) {
	client := newStack(t).client
	ctx := context.Background()

	if err := client.SetLanguage("zh-TW"); err != nil {
		t.Fatal(err)
	}
	if err := client.SetTheme("dark"); err != nil {
		t.Fatal(err)
	}

	if _, err := client.Login(ctx, "test@example.com", "password123"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	client.Logout(ctx)

	if lang := client.Language(); lang != "zh-TW" {
		t.Errorf("Language() = %q, want zh-TW", lang)
	}
	if theme := client.Theme(); theme != "dark" {
		t.Errorf("Theme() = %q, want dark", theme)
	}
}
