package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Time accepts both RFC 3339 and the zone-less ISO timestamps the server emits.
// Zone-less values are taken as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

func ParseTime(s string) (Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("api: unrecognised time %q", s)
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt Time   `json:"created_at"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Portfolio struct {
	TotalValue float64          `json:"totalValue"`
	History    []PortfolioPoint `json:"history"`
	Assets     []Asset          `json:"assets"`
}

type PortfolioPoint struct {
	Timestamp Time    `json:"timestamp"`
	Value     float64 `json:"value"`
}

type Asset struct {
	Symbol     string  `json:"symbol"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

type Metrics struct {
	TotalTrades      int     `json:"totalTrades"`
	SuccessfulTrades int     `json:"successfulTrades"`
	WinRate          float64 `json:"winRate"`
	AverageReturn    float64 `json:"averageReturn"`
	TotalProfit      float64 `json:"totalProfit"`
}

type RecentTrade struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Timestamp Time    `json:"timestamp"`
	Status    string  `json:"status"`
}

// Trade statuses shared by scheduled trades and their executions.
const (
	StatusPending   = "pending"
	StatusExecuted  = "executed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type ScheduledTrade struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	TradingPair string      `json:"trading_pair"`
	Amount      float64     `json:"amount"`
	BuyTime     Time        `json:"buy_time"`
	SellTime    Time        `json:"sell_time"`
	Status      string      `json:"status"`
	CreatedAt   Time        `json:"created_at"`
	Trades      []Execution `json:"trades"`
}

type Execution struct {
	ID               int64   `json:"id,omitempty"`
	ScheduledTradeID int64   `json:"scheduled_trade_id,omitempty"`
	OrderID          string  `json:"order_id"`
	Side             string  `json:"side"`
	Amount           float64 `json:"amount"`
	Price            float64 `json:"price"`
	Status           string  `json:"status"`
	ExecutedAt       Time    `json:"executed_at"`
}

type ScheduledTradeCreate struct {
	TradingPair string  `json:"trading_pair"`
	Amount      float64 `json:"amount"`
	BuyTime     Time    `json:"buy_time"`
	SellTime    Time    `json:"sell_time"`
}

func (r ScheduledTradeCreate) Validate() error {
	switch {
	case r.TradingPair == "":
		return fmt.Errorf("api: trading pair is required")
	case r.Amount <= 0:
		return fmt.Errorf("api: amount must be positive")
	case r.BuyTime.IsZero() || r.SellTime.IsZero():
		return fmt.Errorf("api: buy and sell times are required")
	case !r.SellTime.After(r.BuyTime.Time):
		return fmt.Errorf("api: sell time must be after buy time")
	}
	return nil
}

// ScheduledTradeUpdate is a partial update; nil fields are left unchanged.
type ScheduledTradeUpdate struct {
	TradingPair *string  `json:"trading_pair,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	BuyTime     *Time    `json:"buy_time,omitempty"`
	SellTime    *Time    `json:"sell_time,omitempty"`
	Status      *string  `json:"status,omitempty"`
}

type Strategy struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type MarketSummary struct {
	Symbol    string   `json:"symbol"`
	LastPrice float64  `json:"last_price"`
	High24h   float64  `json:"24h_high"`
	Low24h    float64  `json:"24h_low"`
	Volume24h float64  `json:"24h_volume"`
	Change24h float64  `json:"24h_change,omitempty"`
	Bid       *float64 `json:"bid"`
	Ask       *float64 `json:"ask"`
	Timestamp Time     `json:"timestamp"`
}

// Ticker is passed through as the exchange returns it.
type Ticker map[string]any

// Candle is one [timestamp_ms, open, high, low, close, volume] row.
type Candle [6]float64

func (c Candle) Time() time.Time { return time.UnixMilli(int64(c[0])).UTC() }
func (c Candle) Open() float64   { return c[1] }
func (c Candle) High() float64   { return c[2] }
func (c Candle) Low() float64    { return c[3] }
func (c Candle) Close() float64  { return c[4] }
func (c Candle) Volume() float64 { return c[5] }

type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      [][2]float64 `json:"bids"`
	Asks      [][2]float64 `json:"asks"`
	Timestamp int64        `json:"timestamp"`
	Datetime  string       `json:"datetime"`
	Nonce     int64        `json:"nonce"`
}
