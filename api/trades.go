package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: encode body: %w", err)
	}
	return bytes.NewReader(b), nil
}

func (c *Client) Portfolio(ctx context.Context) (Portfolio, error) {
	var p Portfolio
	err := c.getJSON(ctx, "/trades/portfolio", nil, &p)
	return p, err
}

func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := c.getJSON(ctx, "/trades/metrics", nil, &m)
	return m, err
}

func (c *Client) RecentTrades(ctx context.Context) ([]RecentTrade, error) {
	var out []RecentTrade
	err := c.getJSON(ctx, "/trades/recent", nil, &out)
	return out, err
}

func (c *Client) ScheduledTrades(ctx context.Context) ([]ScheduledTrade, error) {
	var out []ScheduledTrade
	err := c.getJSON(ctx, "/trades/scheduled", nil, &out)
	return out, err
}

func (c *Client) ScheduledTrade(ctx context.Context, id int64) (ScheduledTrade, error) {
	var t ScheduledTrade
	err := c.getJSON(ctx, scheduledPath(id), nil, &t)
	return t, err
}

func (c *Client) CreateScheduledTrade(ctx context.Context, req ScheduledTradeCreate) (ScheduledTrade, error) {
	if err := req.Validate(); err != nil {
		return ScheduledTrade{}, err
	}
	var t ScheduledTrade
	err := c.sendJSON(ctx, http.MethodPost, "/trades/scheduled", req, &t)
	return t, err
}

func (c *Client) UpdateScheduledTrade(ctx context.Context, id int64, upd ScheduledTradeUpdate) (ScheduledTrade, error) {
	var t ScheduledTrade
	err := c.sendJSON(ctx, http.MethodPut, scheduledPath(id), upd, &t)
	return t, err
}

func (c *Client) DeleteScheduledTrade(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: scheduledPath(id)}, nil)
}

func (c *Client) TradeHistory(ctx context.Context) ([]Execution, error) {
	var out []Execution
	err := c.getJSON(ctx, "/trades/history", nil, &out)
	return out, err
}

func scheduledPath(id int64) string {
	return "/trades/scheduled/" + strconv.FormatInt(id, 10)
}
