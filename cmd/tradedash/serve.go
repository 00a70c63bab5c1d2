package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbocsi/tradedash/auth"
	"github.com/mbocsi/tradedash/client"
	"github.com/mbocsi/tradedash/config"
	"github.com/mbocsi/tradedash/mcp"
	"github.com/mbocsi/tradedash/web"
	"github.com/spf13/cobra"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string
	var withMCP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live dashboard (and optionally an MCP stdio server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				e.cfg.Web.Addr = addr
			}
			return e.serve(cmd.Context(), withMCP)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Override web.addr")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Also serve MCP tools on stdio")
	return cmd
}

type liveStream struct {
	cfg    config.StreamConfig
	client *client.StreamClient
}

func (e *env) serve(ctx context.Context, withMCP bool) error {
	token, err := e.store.Load()
	switch {
	case errors.Is(err, auth.ErrNoToken):
		e.log.Warn("Not logged in, streams will connect without a token")
	case err != nil:
		return err
	case auth.Expired(token, time.Now()):
		e.log.Warn("Saved token has expired, run `tradedash login`")
	}
	err = nil
	e.api.SetToken(token)

	dash := web.NewServer(web.Options{
		Addr:        e.cfg.Web.Addr,
		HistorySize: e.cfg.Web.HistorySize,
		API:         e.api,
		Logger:      e.log,
	})
	var tools *mcp.Server
	if withMCP {
		tools = mcp.NewServer(e.api, version)
	}

	dialer := client.NewSchemeDialer(client.NewWebSocketDialer())
	policy := e.cfg.Reconnect.Policy()
	streams := make([]liveStream, 0, len(e.cfg.Streams))
	for _, sc := range e.cfg.Streams {
		u, err := auth.StreamURL(sc.URL, token)
		if err != nil {
			return fmt.Errorf("stream %s: %w", sc.Name, err)
		}
		c := client.NewStreamClient(u,
			client.WithName(sc.Name),
			client.WithDialer(dialer),
			client.WithPolicy(policy),
			client.WithLogger(e.log),
		)
		dash.AddStream(sc.Name, c)
		if tools != nil {
			tools.AddStream(sc.Name, c)
		}
		streams = append(streams, liveStream{cfg: sc, client: c})
	}
	defer func() {
		for _, s := range streams {
			s.client.Close()
		}
	}()

	if token != "" {
		if err := dash.SeedTrades(ctx); err != nil {
			e.log.Warn("Could not load scheduled trades", "error", err)
		}
	}
	for _, s := range streams {
		s.client.Connect()
	}

	go func() {
		err := e.store.Watch(ctx, func(tok string) {
			e.log.Info("Token changed, reconnecting streams")
			e.api.SetToken(tok)
			for _, s := range streams {
				u, err := auth.StreamURL(s.cfg.URL, tok)
				if err != nil {
					e.log.Error("Failed to build stream url", "stream", s.cfg.Name, "error", err)
					continue
				}
				s.client.SetURL(u)
			}
			if tok == "" {
				e.log.Warn("Logged out, streams reconnect without a token")
				return
			}
			if err := dash.SeedTrades(ctx); err != nil {
				e.log.Warn("Could not reload scheduled trades", "error", err)
			}
		})
		if err != nil {
			e.log.Warn("Token file watch stopped", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- dash.Start() }()
	if tools != nil {
		go func() { errCh <- tools.Run() }()
	}

	select {
	case <-ctx.Done():
		e.log.Info("Shutting down")
	case err = <-errCh:
		if err != nil {
			e.log.Error("Server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := dash.Shutdown(shutdownCtx); serr != nil {
		e.log.Warn("Web server shutdown", "error", serr)
	}
	return err
}
