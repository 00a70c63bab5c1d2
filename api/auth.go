package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Login exchanges credentials for a bearer token and installs it on the client.
// username may also be the account's email address.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok Token
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		public:      true,
	}, &tok)
	if err != nil {
		return Token{}, err
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("api: login response carried no access token")
	}
	c.SetToken(tok.AccessToken)
	c.log.Info("Logged in", "user", username)
	return tok, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (User, error) {
	var u User
	body, err := jsonBody(reg)
	if err != nil {
		return User{}, err
	}
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        body,
		contentType: "application/json",
		public:      true,
	}, &u)
	return u, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.getJSON(ctx, "/auth/me", nil, &u)
	return u, err
}
