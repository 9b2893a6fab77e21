package api

import "time"

// CardStatus is a kanban column.
type CardStatus string

const (
	StatusWatch      CardStatus = "WATCH"
	StatusReadyToBuy CardStatus = "READY_TO_BUY"
	StatusHold       CardStatus = "HOLD"
	StatusSell       CardStatus = "SELL"
	StatusAlerts     CardStatus = "ALERTS"
)

// Card is one stock card on the board, including the latest market snapshot
// the server attached to it.
type Card struct {
	ID            int64      `json:"id"`
	StockCode     string     `json:"stockCode"`
	StockName     string     `json:"stockName"`
	Status        CardStatus `json:"status"`
	Note          string     `json:"note"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CurrentPrice  float64    `json:"currentPrice"`
	ChangePercent float64    `json:"changePercent"`
	Volume        int64      `json:"volume"`
	MA20          float64    `json:"ma20"`
	RSI           float64    `json:"rsi"`
	DataUpdatedAt time.Time  `json:"dataUpdatedAt"`
	DataSource    string     `json:"dataSource"`
	DelayMinutes  int        `json:"delayMinutes"`
}

// CardUpdate carries a partial card change. Zero-valued fields are omitted
// so the server only touches what the caller set.
type CardUpdate struct {
	Status CardStatus `json:"status,omitempty"`
	Note   string     `json:"note,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// SearchParams filters and pages the card listing. Zero values fall back to
// the server defaults (sorted by updatedAt descending, 50 per page).
type SearchParams struct {
	Query         string
	Status        CardStatus
	SortBy        string
	SortDirection string
	Page          int
	Size          int
}

// Pagination describes the window a paged response covers.
type Pagination struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
}

// CardPage is one page of card search results.
type CardPage struct {
	Cards      []Card
	Pagination Pagination
}

// Stats aggregates card counts per column.
type Stats struct {
	TotalCards      int `json:"totalCards"`
	WatchCount      int `json:"watchCount"`
	ReadyToBuyCount int `json:"readyToBuyCount"`
	HoldCount       int `json:"holdCount"`
	SellCount       int `json:"sellCount"`
	AlertsCount     int `json:"alertsCount"`
}

// Watchlist is a named collection of stock codes with a capacity.
type Watchlist struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	MaxSize     int       `json:"maxSize"`
	CreatedAt   time.Time `json:"createdAt"`
	CurrentSize int       `json:"currentSize"`
	StockCodes  []string  `json:"stockCodes"`
}

// OHLC is one candle.
type OHLC struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// ChartData is the candle series for one stock.
type ChartData struct {
	StockCode string `json:"stockCode"`
	Data      []OHLC `json:"data"`
	Period    string `json:"period"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}
