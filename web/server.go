package web

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/client"
	"github.com/mbocsi/tradedash/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served locally
	},
}

// Stream is the part of a stream client the dashboard needs.
type Stream interface {
	Status() client.Status
	LastMessage() (proto.Message, bool)
	SendMessage(payload string) bool
	OnMessage(fn func(proto.Message))
}

// API is the remote data the dashboard fetches over HTTP.
type API interface {
	Portfolio(ctx context.Context) (api.Portfolio, error)
	Metrics(ctx context.Context) (api.Metrics, error)
	ScheduledTrades(ctx context.Context) ([]api.ScheduledTrade, error)
}

type Options struct {
	Addr        string
	HistorySize int
	API         API
	Logger      *slog.Logger
}

// Server is the local rendering layer: a JSON API over the boards and stream
// state, and a WebSocket fan-out of each stream's decoded messages.
type Server struct {
	Addr   string
	Market *MarketBoard
	Trades *TradeBoard

	api       API
	hub       *Hub
	log       *slog.Logger
	templates *Templates
	server    *http.Server

	mu      sync.RWMutex
	streams map[string]Stream
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		Addr:      opts.Addr,
		Market:    NewMarketBoard(opts.HistorySize),
		Trades:    NewTradeBoard(),
		api:       opts.API,
		hub:       NewHub(),
		log:       opts.Logger.With("component", "web"),
		templates: NewTemplates(),
		streams:   make(map[string]Stream),
	}
	// built up front so Shutdown never races Start for the field
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// AddStream registers a named stream and routes its messages to the boards
// and browser subscribers.
func (s *Server) AddStream(name string, st Stream) {
	s.mu.Lock()
	s.streams[name] = st
	s.mu.Unlock()
	st.OnMessage(func(msg proto.Message) { s.dispatch(name, msg) })
}

func (s *Server) stream(name string) (Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[name]
	return st, ok
}

func (s *Server) statuses() []client.Status {
	s.mu.RLock()
	out := make([]client.Status, 0, len(s.streams))
	for name, st := range s.streams {
		status := st.Status()
		status.Name = name
		out = append(out, status)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) dispatch(name string, msg proto.Message) {
	switch msg.Type {
	case proto.TypeMarketData:
		md, err := proto.AsMarketData(msg)
		if err != nil {
			s.log.Warn("Ignoring market data", "stream", name, "error", err)
			break
		}
		s.Market.Apply(md)
	case proto.TypeTradeUpdate:
		tu, err := proto.AsTradeUpdate(msg)
		if err != nil {
			s.log.Warn("Ignoring trade update", "stream", name, "error", err)
			break
		}
		if !s.Trades.Apply(tu) {
			s.log.Debug("Trade update for unknown trade", "trade_id", tu.TradeID.String())
		}
	}
	s.hub.Publish(name, msg)
}

// SeedTrades loads the scheduled trades so later updates have something to
// apply to.
func (s *Server) SeedTrades(ctx context.Context) error {
	if s.api == nil {
		return nil
	}
	trades, err := s.api.ScheduledTrades(ctx)
	if err != nil {
		return err
	}
	s.Trades.Seed(trades)
	s.log.Info("Seeded scheduled trades", "count", len(trades))
	return nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.HandleHome)
	r.Route("/api", func(r chi.Router) {
		r.Get("/streams", s.HandleStreams)
		r.Get("/streams/{name}", s.HandleStreamDetail)
		r.Get("/streams/{name}/last", s.HandleLastMessage)
		r.Post("/streams/{name}/send", s.HandleSendMessage)
		r.Get("/market", s.HandleMarket)
		r.Get("/market/{symbol}/history", s.HandleMarketHistory)
		r.Get("/trades", s.HandleTrades)
		r.Get("/portfolio", s.HandlePortfolio)
	})
	r.Get("/ws/{name}", s.HandleStreamSocket)
	return r
}

func (s *Server) Start() error {
	s.log.Info("Starting web server", "addr", s.Addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down web server", "addr", s.Addr)
	return s.server.Shutdown(ctx)
}
