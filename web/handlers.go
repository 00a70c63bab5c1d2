package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mbocsi/tradedash/api"
)

const maxSendBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) HandleHome(w http.ResponseWriter, r *http.Request) {
	s.templates.Render(w, "index", map[string]any{
		"Streams": s.statuses(),
		"Quotes":  s.Market.Quotes(),
		"Trades":  s.Trades.Trades(),
	})
}

func (s *Server) HandleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statuses())
}

func (s *Server) HandleStreamDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := s.stream(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stream "+name)
		return
	}
	status := st.Status()
	status.Name = name
	writeJSON(w, http.StatusOK, status)
}

// HandleLastMessage returns the latest decoded message verbatim, or 204 when
// nothing has arrived yet.
func (s *Server) HandleLastMessage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := s.stream(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stream "+name)
		return
	}
	msg, ok := st.LastMessage()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleSendMessage forwards the request body upstream as one frame.
func (s *Server) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := s.stream(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stream "+name)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSendBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty payload")
		return
	}
	if !st.SendMessage(string(body)) {
		writeJSON(w, http.StatusConflict, map[string]bool{"sent": false})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

func (s *Server) HandleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Market.Quotes())
}

func (s *Server) HandleMarketHistory(w http.ResponseWriter, r *http.Request) {
	symbol, err := url.PathUnescape(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad symbol")
		return
	}
	if _, ok := s.Market.Quote(symbol); !ok {
		writeError(w, http.StatusNotFound, "no data for "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, s.Market.History(symbol))
}

// HandleTrades serves the trade board; ?refresh=true re-seeds it first.
func (s *Server) HandleTrades(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := s.SeedTrades(r.Context()); err != nil {
			s.apiError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.Trades.Trades())
}

func (s *Server) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.api == nil {
		writeError(w, http.StatusServiceUnavailable, "remote API not configured")
		return
	}
	portfolio, err := s.api.Portfolio(r.Context())
	if err != nil {
		s.apiError(w, err)
		return
	}
	metrics, err := s.api.Metrics(r.Context())
	if err != nil {
		s.apiError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"portfolio": portfolio,
		"metrics":   metrics,
	})
}

func (s *Server) apiError(w http.ResponseWriter, err error) {
	s.log.Error("Remote API error", "error", err)
	if api.IsUnauthorized(err) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// HandleStreamSocket follows one stream over a browser WebSocket. The latest
// message is replayed on join; frames the browser sends go upstream.
func (s *Server) HandleStreamSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := s.stream(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	sub := newSubscriber(name, conn, s.hub.buffer)
	s.hub.SubscribeWithReplay(sub, func() ([]byte, bool) {
		last, ok := st.LastMessage()
		if !ok {
			return nil, false
		}
		frame, err := last.MarshalJSON()
		return frame, err == nil
	})
	s.log.Info("Browser subscribed", "stream", name, "id", sub.Id, "addr", r.RemoteAddr)

	defer func() {
		s.hub.Unsubscribe(sub)
		sub.close()
		s.log.Info("Browser unsubscribed", "stream", name, "id", sub.Id)
	}()

	go sub.writePump()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Browser socket error", "id", sub.Id, "error", err)
			}
			return
		}
		if !st.SendMessage(string(data)) {
			s.log.Debug("Upstream not open, dropped browser frame", "stream", name, "size", len(data))
		}
	}
}
