// Package api is the typed client for the dashboard's board, watchlist and
// chart endpoints. It rides on the gateway-equipped HTTP client, so bearer
// stamping, 401 refresh-and-retry and error enrichment all apply without any
// handling here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stockkanban/client-go/pkg/domain"
)

// Client issues dashboard API calls.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient wraps the given HTTP client, which is expected to carry the
// gateway transport.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Cards returns one page of cards matching the search parameters.
func (c *Client) Cards(ctx context.Context, params SearchParams) (CardPage, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.Status != "" {
		q.Set("status", string(params.Status))
	}
	if params.SortBy != "" {
		q.Set("sortBy", params.SortBy)
	}
	if params.SortDirection != "" {
		q.Set("sortDirection", params.SortDirection)
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Size > 0 {
		q.Set("size", strconv.Itoa(params.Size))
	}

	path := "/kanban/cards"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var cards []Card
	pagination, err := c.doPaged(ctx, http.MethodGet, path, nil, &cards)
	if err != nil {
		return CardPage{}, err
	}
	return CardPage{Cards: cards, Pagination: pagination}, nil
}

// Card fetches a single card.
func (c *Client) Card(ctx context.Context, id int64) (Card, error) {
	var card Card
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/kanban/cards/%d", id), nil, &card)
	return card, err
}

// UpdateCard applies a partial change to a card, moving it between columns
// and/or replacing its note.
func (c *Client) UpdateCard(ctx context.Context, id int64, update CardUpdate) (Card, error) {
	var card Card
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/kanban/cards/%d", id), update, &card)
	return card, err
}

// Stats returns the per-column card counts.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.do(ctx, http.MethodGet, "/kanban/stats", nil, &stats)
	return stats, err
}

// Watchlists lists the caller's watchlists.
func (c *Client) Watchlists(ctx context.Context) ([]Watchlist, error) {
	var lists []Watchlist
	err := c.do(ctx, http.MethodGet, "/watchlist", nil, &lists)
	return lists, err
}

// Watchlist fetches one watchlist.
func (c *Client) Watchlist(ctx context.Context, id int64) (Watchlist, error) {
	var list Watchlist
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/watchlist/%d", id), nil, &list)
	return list, err
}

// CreateWatchlist creates a watchlist. maxSize of 0 selects the server
// default capacity.
func (c *Client) CreateWatchlist(ctx context.Context, name string, maxSize int) (Watchlist, error) {
	body := struct {
		Name    string `json:"name"`
		MaxSize int    `json:"maxSize,omitempty"`
	}{Name: name, MaxSize: maxSize}

	var list Watchlist
	err := c.do(ctx, http.MethodPost, "/watchlist", body, &list)
	return list, err
}

// DeleteWatchlist removes a watchlist and its memberships.
func (c *Client) DeleteWatchlist(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/watchlist/%d", id), nil, nil)
}

// AddStock adds a stock to a watchlist, creating its board card.
func (c *Client) AddStock(ctx context.Context, watchlistID int64, stockCode, note string) error {
	body := struct {
		StockCode string `json:"stockCode"`
		Note      string `json:"note,omitempty"`
	}{StockCode: stockCode, Note: note}

	return c.do(ctx, http.MethodPost, fmt.Sprintf("/watchlist/%d/stocks", watchlistID), body, nil)
}

// RemoveStock removes a stock from the caller's watchlists.
func (c *Client) RemoveStock(ctx context.Context, stockCode string) error {
	return c.do(ctx, http.MethodDelete, "/watchlist/stocks/"+url.PathEscape(stockCode), nil, nil)
}

// ChartData returns the most recent candles for a stock, limited to the
// given number of days (0 selects the server default).
func (c *Client) ChartData(ctx context.Context, stockCode string, days int) (ChartData, error) {
	path := "/chart/stocks/" + url.PathEscape(stockCode)
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}

	var data ChartData
	err := c.do(ctx, http.MethodGet, path, nil, &data)
	return data, err
}

// ChartDataRange returns candles between two dates (YYYY-MM-DD, inclusive).
func (c *Client) ChartDataRange(ctx context.Context, stockCode, startDate, endDate string) (ChartData, error) {
	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)
	path := "/chart/stocks/" + url.PathEscape(stockCode) + "/range?" + q.Encode()

	var data ChartData
	err := c.do(ctx, http.MethodGet, path, nil, &data)
	return data, err
}

// do issues a request and decodes the success envelope's data field into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doPaged(ctx, method, path, body, out)
	return err
}

func (c *Client) doPaged(ctx context.Context, method, path string, body, out any) (Pagination, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Pagination{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Pagination{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Pagination{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Pagination{}, decodeAPIError(resp)
	}
	if out == nil {
		return Pagination{}, nil
	}

	var envelope struct {
		Data       json.RawMessage `json:"data"`
		Pagination Pagination      `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Pagination{}, fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return Pagination{}, fmt.Errorf("decode response data: %w", err)
	}
	return envelope.Pagination, nil
}

// decodeAPIError lifts the error envelope, already enriched by the gateway,
// into a *domain.APIError.
func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error domain.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Message == "" {
		envelope.Error.Message = http.StatusText(resp.StatusCode)
	}
	envelope.Error.Status = resp.StatusCode
	return &envelope.Error
}
