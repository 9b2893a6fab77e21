package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stockkanban/client-go/pkg/domain"
)

func envelope(data any) map[string]any {
	return map[string]any{
		"success": true,
		"data":    data,
		"meta": map[string]string{
			"timestamp": "2026-01-02T03:04:05Z",
			"traceId":   "trace-test",
			"version":   "1.0",
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

func TestCards_SearchParamsEncoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kanban/cards" {
			t.Errorf("path = %s, want /kanban/cards", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != "2330" || q.Get("status") != "HOLD" || q.Get("page") != "2" {
			t.Errorf("unexpected query %v", q)
		}

		resp := envelope([]map[string]any{
			{"id": 1, "stockCode": "2330", "stockName": "TSMC", "status": "HOLD"},
		})
		resp["pagination"] = map[string]any{
			"page": 2, "size": 50, "totalElements": 101, "totalPages": 3,
			"hasNext": false, "hasPrevious": true,
		}
		writeJSON(t, w, resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	page, err := client.Cards(context.Background(), SearchParams{
		Query:  "2330",
		Status: StatusHold,
		Page:   2,
	})
	if err != nil {
		t.Fatalf("Cards() error = %v", err)
	}

	if len(page.Cards) != 1 || page.Cards[0].StockCode != "2330" {
		t.Errorf("cards = %+v, want one card for 2330", page.Cards)
	}
	if page.Pagination.TotalElements != 101 || !page.Pagination.HasPrevious {
		t.Errorf("pagination = %+v", page.Pagination)
	}
}

func TestUpdateCard_PatchesPartialFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/kanban/cards/7" {
			t.Errorf("%s %s, want PATCH /kanban/cards/7", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "SELL" {
			t.Errorf("body status = %v, want SELL", body["status"])
		}
		if _, present := body["note"]; present {
			t.Error("unset note must be omitted from the patch")
		}
		writeJSON(t, w, envelope(map[string]any{"id": 7, "stockCode": "2330", "status": "SELL"}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	card, err := client.UpdateCard(context.Background(), 7, CardUpdate{Status: StatusSell, Reason: "target hit"})
	if err != nil {
		t.Fatalf("UpdateCard() error = %v", err)
	}
	if card.Status != StatusSell {
		t.Errorf("card status = %s, want SELL", card.Status)
	}
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, envelope(map[string]int{
			"totalCards": 12, "watchCount": 5, "readyToBuyCount": 2,
			"holdCount": 3, "sellCount": 1, "alertsCount": 1,
		}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalCards != 12 || stats.WatchCount != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWatchlistLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /watchlist":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "semis" {
				t.Errorf("create body = %v", body)
			}
			writeJSON(t, w, envelope(map[string]any{"id": 3, "name": "semis", "maxSize": 500}))
		case "POST /watchlist/3/stocks":
			writeJSON(t, w, envelope(map[string]any{"message": "added"}))
		case "DELETE /watchlist/stocks/2330":
			writeJSON(t, w, envelope(map[string]any{"message": "removed"}))
		case "GET /watchlist":
			writeJSON(t, w, envelope([]map[string]any{
				{"id": 3, "name": "semis", "currentSize": 1, "stockCodes": []string{"2330"}},
			}))
		case "DELETE /watchlist/3":
			writeJSON(t, w, envelope(map[string]any{"message": "deleted"}))
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	ctx := context.Background()

	list, err := client.CreateWatchlist(ctx, "semis", 0)
	if err != nil {
		t.Fatalf("CreateWatchlist() error = %v", err)
	}
	if list.ID != 3 || list.MaxSize != 500 {
		t.Errorf("created = %+v", list)
	}

	if err := client.AddStock(ctx, 3, "2330", "foundry"); err != nil {
		t.Fatalf("AddStock() error = %v", err)
	}

	lists, err := client.Watchlists(ctx)
	if err != nil {
		t.Fatalf("Watchlists() error = %v", err)
	}
	if len(lists) != 1 || lists[0].StockCodes[0] != "2330" {
		t.Errorf("lists = %+v", lists)
	}

	if err := client.RemoveStock(ctx, "2330"); err != nil {
		t.Fatalf("RemoveStock() error = %v", err)
	}
	if err := client.DeleteWatchlist(ctx, 3); err != nil {
		t.Fatalf("DeleteWatchlist() error = %v", err)
	}
}

func TestChartData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart/stocks/2330" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "30" {
			t.Errorf("days = %s, want 30", r.URL.Query().Get("days"))
		}
		writeJSON(t, w, envelope(map[string]any{
			"stockCode": "2330",
			"period":    "30d",
			"data": []map[string]any{
				{"date": "2026-08-28", "open": 1000, "high": 1010, "low": 995, "close": 1005, "volume": 25000000},
			},
		}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	data, err := client.ChartData(context.Background(), "2330", 30)
	if err != nil {
		t.Fatalf("ChartData() error = %v", err)
	}
	if data.StockCode != "2330" || len(data.Data) != 1 || data.Data[0].Close != 1005 {
		t.Errorf("data = %+v", data)
	}
}

func TestChartDataRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart/stocks/2330/range" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("startDate") != "2026-01-01" || q.Get("endDate") != "2026-02-01" {
			t.Errorf("range query = %v", q)
		}
		writeJSON(t, w, envelope(map[string]any{
			"stockCode": "2330", "startDate": "2026-01-01", "endDate": "2026-02-01", "data": []any{},
		}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	data, err := client.ChartDataRange(context.Background(), "2330", "2026-01-01", "2026-02-01")
	if err != nil {
		t.Fatalf("ChartDataRange() error = %v", err)
	}
	if data.StartDate != "2026-01-01" {
		t.Errorf("data = %+v", data)
	}
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "CARD_NOT_FOUND",
				"message": "card 99 does not exist",
				"traceId": "trace-abc",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Card(context.Background(), 99)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *domain.APIError", err)
	}
	if apiErr.Code != "CARD_NOT_FOUND" || apiErr.Status != http.StatusNotFound {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.TraceID != "trace-abc" {
		t.Errorf("traceId = %q, want trace-abc", apiErr.TraceID)
	}
}

func TestErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Stats(context.Background())

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *domain.APIError", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Message == "" {
		t.Errorf("apiErr = %+v, want status text fallback", apiErr)
	}
}
