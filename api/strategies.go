package api

import (
	"context"
	"net/http"
	"strconv"
)

func (c *Client) Strategies(ctx context.Context) ([]Strategy, error) {
	var out []Strategy
	err := c.getJSON(ctx, "/strategies/", nil, &out)
	return out, err
}

// MyStrategies lists the strategies the current user is subscribed to.
func (c *Client) MyStrategies(ctx context.Context) ([]Strategy, error) {
	var out []Strategy
	err := c.getJSON(ctx, "/strategies/my", nil, &out)
	return out, err
}

func (c *Client) CreateStrategy(ctx context.Context, name, description string) (Strategy, error) {
	var s Strategy
	err := c.sendJSON(ctx, http.MethodPost, "/strategies/", Strategy{Name: name, Description: description}, &s)
	return s, err
}

func (c *Client) SubscribeStrategy(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/strategies/" + strconv.FormatInt(id, 10) + "/subscribe",
	}, nil)
}
