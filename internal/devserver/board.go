package devserver

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockkanban/client-go/internal/httputil"
)

const defaultWatchlistSize = 500

type watchlist struct {
	id         int64
	name       string
	maxSize    int
	createdAt  time.Time
	stockCodes []string
}

type card struct {
	id        int64
	stockCode string
	stockName string
	status    string
	note      string
	createdAt time.Time
	updatedAt time.Time
}

func withUser(ctx context.Context, u *user) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func userFrom(ctx context.Context) *user {
	u, _ := ctx.Value(userKey).(*user)
	return u
}

func (s *Server) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func watchlistPayload(wl *watchlist) map[string]any {
	return map[string]any{
		"id":          wl.id,
		"name":        wl.name,
		"maxSize":     wl.maxSize,
		"createdAt":   wl.createdAt.UTC().Format(time.RFC3339),
		"currentSize": len(wl.stockCodes),
		"stockCodes":  wl.stockCodes,
	}
}

func (s *Server) cardPayload(c *card) map[string]any {
	quote := syntheticQuote(c.stockCode)
	return map[string]any{
		"id":            c.id,
		"stockCode":     c.stockCode,
		"stockName":     c.stockName,
		"status":        c.status,
		"note":          c.note,
		"createdAt":     c.createdAt.UTC().Format(time.RFC3339),
		"updatedAt":     c.updatedAt.UTC().Format(time.RFC3339),
		"currentPrice":  quote.price,
		"changePercent": quote.changePercent,
		"volume":        quote.volume,
		"ma20":          quote.ma20,
		"rsi":           quote.rsi,
		"dataUpdatedAt": time.Now().UTC().Format(time.RFC3339),
		"dataSource":    "synthetic",
		"delayMinutes":  15,
	}
}

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	s.mu.Lock()
	lists := s.watchlists[u.id]
	payload := make([]map[string]any, 0, len(lists))
	for _, wl := range lists {
		payload = append(payload, watchlistPayload(wl))
	}
	s.mu.Unlock()

	httputil.JSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "watchlistID"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid watchlist id", "")
		return
	}

	s.mu.Lock()
	wl := s.findWatchlistLocked(u.id, id)
	var payload map[string]any
	if wl != nil {
		payload = watchlistPayload(wl)
	}
	s.mu.Unlock()

	if payload == nil {
		httputil.Error(w, http.StatusNotFound, "WATCHLIST_NOT_FOUND", "watchlist does not exist", "")
		return
	}
	httputil.JSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	var req struct {
		Name    string `json:"name"`
		MaxSize int    `json:"maxSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "name is required", "")
		return
	}
	if req.MaxSize <= 0 {
		req.MaxSize = defaultWatchlistSize
	}

	s.mu.Lock()
	wl := &watchlist{
		id:        s.nextIDLocked(),
		name:      req.Name,
		maxSize:   req.MaxSize,
		createdAt: time.Now(),
	}
	s.watchlists[u.id] = append(s.watchlists[u.id], wl)
	payload := watchlistPayload(wl)
	s.mu.Unlock()

	httputil.JSON(w, http.StatusCreated, payload)
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "watchlistID"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid watchlist id", "")
		return
	}

	s.mu.Lock()
	lists := s.watchlists[u.id]
	found := false
	for i, wl := range lists {
		if wl.id == id {
			s.watchlists[u.id] = append(lists[:i], lists[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		httputil.Error(w, http.StatusNotFound, "WATCHLIST_NOT_FOUND", "watchlist does not exist", "")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "watchlist deleted"})
}

func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "watchlistID"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid watchlist id", "")
		return
	}

	var req struct {
		StockCode string `json:"stockCode"`
		Note      string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StockCode == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "stockCode is required", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wl := s.findWatchlistLocked(u.id, id)
	if wl == nil {
		httputil.Error(w, http.StatusNotFound, "WATCHLIST_NOT_FOUND", "watchlist does not exist", "")
		return
	}
	if len(wl.stockCodes) >= wl.maxSize {
		httputil.Error(w, http.StatusConflict,
			"WATCHLIST_FULL", "watchlist is at capacity", "remove a stock or raise maxSize")
		return
	}
	for _, code := range wl.stockCodes {
		if code == req.StockCode {
			httputil.Error(w, http.StatusConflict,
				"DUPLICATE_STOCK", "stock is already on this watchlist", "")
			return
		}
	}

	wl.stockCodes = append(wl.stockCodes, req.StockCode)
	now := time.Now()
	s.cards[u.id] = append(s.cards[u.id], &card{
		id:        s.nextIDLocked(),
		stockCode: req.StockCode,
		stockName: "Stock " + req.StockCode,
		status:    "WATCH",
		note:      req.Note,
		createdAt: now,
		updatedAt: now,
	})

	httputil.JSON(w, http.StatusCreated, map[string]string{"message": "stock added"})
}

func (s *Server) handleRemoveStock(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	code := chi.URLParam(r, "stockCode")

	s.mu.Lock()
	removed := false
	for _, wl := range s.watchlists[u.id] {
		for i, existing := range wl.stockCodes {
			if existing == code {
				wl.stockCodes = append(wl.stockCodes[:i], wl.stockCodes[i+1:]...)
				removed = true
				break
			}
		}
	}
	cards := s.cards[u.id]
	for i, c := range cards {
		if c.stockCode == code {
			s.cards[u.id] = append(cards[:i], cards[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if !removed {
		httputil.Error(w, http.StatusNotFound, "STOCK_NOT_FOUND", "stock is not on any watchlist", "")
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "stock removed"})
}

func (s *Server) findWatchlistLocked(userID string, id int64) *watchlist {
	for _, wl := range s.watchlists[userID] {
		if wl.id == id {
			return wl
		}
	}
	return nil
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = 50
	}
	query := strings.ToLower(q.Get("query"))
	status := q.Get("status")
	descending := !strings.EqualFold(q.Get("sortDirection"), "ASC")

	s.mu.Lock()
	matched := make([]*card, 0, len(s.cards[u.id]))
	for _, c := range s.cards[u.id] {
		if status != "" && c.status != status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(c.stockCode), query) &&
			!strings.Contains(strings.ToLower(c.stockName), query) {
			continue
		}
		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if descending {
			return matched[i].updatedAt.After(matched[j].updatedAt)
		}
		return matched[i].updatedAt.Before(matched[j].updatedAt)
	})

	total := len(matched)
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	payload := make([]map[string]any, 0, end-start)
	for _, c := range matched[start:end] {
		payload = append(payload, s.cardPayload(c))
	}
	s.mu.Unlock()

	totalPages := (total + size - 1) / size
	httputil.PagedJSON(w, http.StatusOK, payload, map[string]any{
		"page":          page,
		"size":          size,
		"totalElements": total,
		"totalPages":    totalPages,
		"hasNext":       end < total,
		"hasPrevious":   page > 0,
	})
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid card id", "")
		return
	}

	s.mu.Lock()
	c := s.findCardLocked(u.id, id)
	var payload map[string]any
	if c != nil {
		payload = s.cardPayload(c)
	}
	s.mu.Unlock()

	if payload == nil {
		httputil.Error(w, http.StatusNotFound, "CARD_NOT_FOUND", "card does not exist", "")
		return
	}
	httputil.JSON(w, http.StatusOK, payload)
}

var validStatuses = map[string]bool{
	"WATCH": true, "READY_TO_BUY": true, "HOLD": true, "SELL": true, "ALERTS": true,
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid card id", "")
		return
	}

	var req struct {
		Status string  `json:"status"`
		Note   *string `json:"note"`
		Reason string  `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", "")
		return
	}
	if req.Status != "" && !validStatuses[req.Status] {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "unknown status "+req.Status, "")
		return
	}

	s.mu.Lock()
	c := s.findCardLocked(u.id, id)
	var payload map[string]any
	if c != nil {
		if req.Status != "" {
			c.status = req.Status
		}
		if req.Note != nil {
			c.note = *req.Note
		}
		c.updatedAt = time.Now()
		payload = s.cardPayload(c)
	}
	s.mu.Unlock()

	if payload == nil {
		httputil.Error(w, http.StatusNotFound, "CARD_NOT_FOUND", "card does not exist", "")
		return
	}
	httputil.JSON(w, http.StatusOK, payload)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	s.mu.Lock()
	counts := map[string]int{}
	for _, c := range s.cards[u.id] {
		counts[c.status]++
	}
	total := len(s.cards[u.id])
	s.mu.Unlock()

	httputil.JSON(w, http.StatusOK, map[string]int{
		"totalCards":      total,
		"watchCount":      counts["WATCH"],
		"readyToBuyCount": counts["READY_TO_BUY"],
		"holdCount":       counts["HOLD"],
		"sellCount":       counts["SELL"],
		"alertsCount":     counts["ALERTS"],
	})
}

func (s *Server) findCardLocked(userID string, id int64) *card {
	for _, c := range s.cards[userID] {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "stockCode")
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 90
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	httputil.JSON(w, http.StatusOK, chartPayload(code, start, end, strconv.Itoa(days)+"d"))
}

func (s *Server) handleChartRange(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "stockCode")
	q := r.URL.Query()

	start, err := time.Parse("2006-01-02", q.Get("startDate"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "startDate must be YYYY-MM-DD", "")
		return
	}
	end, err := time.Parse("2006-01-02", q.Get("endDate"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "endDate must be YYYY-MM-DD", "")
		return
	}
	if end.Before(start) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_INPUT", "endDate is before startDate", "")
		return
	}

	httputil.JSON(w, http.StatusOK, chartPayload(code, start, end, "range"))
}

type quote struct {
	price         float64
	changePercent float64
	volume        int64
	ma20          float64
	rsi           float64
}

// syntheticQuote derives a stable quote from the stock code so repeated
// requests for the same stock agree with each other.
func syntheticQuote(code string) quote {
	rng := rand.New(rand.NewSource(seedFor(code)))
	price := 50 + rng.Float64()*950
	return quote{
		price:         round2(price),
		changePercent: round2(rng.Float64()*10 - 5),
		volume:        int64(rng.Intn(50_000_000)),
		ma20:          round2(price * (0.95 + rng.Float64()*0.1)),
		rsi:           round2(20 + rng.Float64()*60),
	}
}

func chartPayload(code string, start, end time.Time, period string) map[string]any {
	rng := rand.New(rand.NewSource(seedFor(code)))
	price := 50 + rng.Float64()*950

	var candles []map[string]any
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		open := price
		price *= 1 + (rng.Float64()*0.04 - 0.02)
		high := open * (1 + rng.Float64()*0.02)
		low := open * (1 - rng.Float64()*0.02)
		candles = append(candles, map[string]any{
			"date":   day.Format("2006-01-02"),
			"open":   round2(open),
			"high":   round2(high),
			"low":    round2(low),
			"close":  round2(price),
			"volume": int64(rng.Intn(50_000_000)),
		})
	}

	return map[string]any{
		"stockCode": code,
		"data":      candles,
		"period":    period,
		"startDate": start.Format("2006-01-02"),
		"endDate":   end.Format("2006-01-02"),
	}
}

func seedFor(code string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	return int64(h.Sum64())
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
