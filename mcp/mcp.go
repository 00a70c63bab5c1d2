package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/client"
	"github.com/mbocsi/tradedash/proto"
)

type Stream interface {
	Status() client.Status
	LastMessage() (proto.Message, bool)
	SendMessage(payload string) bool
}

type API interface {
	Portfolio(ctx context.Context) (api.Portfolio, error)
	Metrics(ctx context.Context) (api.Metrics, error)
	ScheduledTrades(ctx context.Context) ([]api.ScheduledTrade, error)
	MarketSummary(ctx context.Context, symbol string) (api.MarketSummary, error)
}

// Server exposes stream state and remote API reads as MCP tools over stdio.
type Server struct {
	Server *server.MCPServer

	api API

	mu      sync.RWMutex
	streams map[string]Stream
}

func NewServer(remote API, version string) *Server {
	s := &Server{
		Server:  server.NewMCPServer("tradedash", version),
		api:     remote,
		streams: make(map[string]Stream),
	}
	s.registerStreamTools()
	s.registerTradingTools()
	return s
}

func (s *Server) AddStream(name string, st Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[name] = st
}

func (s *Server) stream(name string) (Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[name]
	return st, ok
}

func (s *Server) streamNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run serves until stdin closes.
func (s *Server) Run() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}
