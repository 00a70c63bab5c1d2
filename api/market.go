package api

import (
	"context"
	"net/url"
	"strconv"
)

// Symbols such as "BTC/USDT" contain a slash and are escaped as one segment.
func symbolPath(prefix, symbol string) string {
	return "/market-data/" + prefix + "/" + url.PathEscape(symbol)
}

func (c *Client) TradingPairs(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/market-data/trading-pairs", nil, &out)
	return out, err
}

func (c *Client) MarketSummary(ctx context.Context, symbol string) (MarketSummary, error) {
	var s MarketSummary
	err := c.getJSON(ctx, symbolPath("summary", symbol), nil, &s)
	return s, err
}

func (c *Client) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	var t Ticker
	err := c.getJSON(ctx, symbolPath("ticker", symbol), nil, &t)
	return t, err
}

// OHLCV fetches candles. Zero values leave the server defaults (1h, 100) in place.
func (c *Client) OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	q := url.Values{}
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Candle
	err := c.getJSON(ctx, symbolPath("ohlcv", symbol), q, &out)
	return out, err
}

func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (OrderBook, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var ob OrderBook
	err := c.getJSON(ctx, symbolPath("order-book", symbol), q, &ob)
	return ob, err
}
