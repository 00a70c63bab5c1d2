package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/client"
	"github.com/mbocsi/tradedash/logging"
	"github.com/mbocsi/tradedash/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

type fakeStream struct {
	mu    sync.Mutex
	state client.State
	last  *proto.Message
	sent  []string
	hooks []func(proto.Message)

	// afterLast runs once LastMessage has taken its snapshot
	afterLast func()
}

func (f *fakeStream) Status() client.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := client.Status{State: f.state.String(), Connected: f.state == client.StateOpen, HasMessage: f.last != nil}
	if f.last != nil {
		s.LastType = f.last.Type
	}
	return s
}

func (f *fakeStream) LastMessage() (proto.Message, bool) {
	f.mu.Lock()
	last, after := f.last, f.afterLast
	f.mu.Unlock()
	if after != nil {
		after()
	}
	if last == nil {
		return proto.Message{}, false
	}
	return *last, true
}

func (f *fakeStream) SendMessage(payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != client.StateOpen {
		return false
	}
	f.sent = append(f.sent, payload)
	return true
}

func (f *fakeStream) OnMessage(fn func(proto.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *fakeStream) emit(t *testing.T, frame string) {
	t.Helper()
	msg, err := proto.Decode([]byte(frame))
	require.NoError(t, err)
	f.deliver(msg)
}

func (f *fakeStream) deliver(msg proto.Message) {
	f.mu.Lock()
	f.last = &msg
	hooks := append([]func(proto.Message){}, f.hooks...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn(msg)
	}
}

func (f *fakeStream) sentPayloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.sent...)
}

type fakeAPI struct {
	err    error
	trades []api.ScheduledTrade
}

func (f *fakeAPI) Portfolio(context.Context) (api.Portfolio, error) {
	if f.err != nil {
		return api.Portfolio{}, f.err
	}
	return api.Portfolio{TotalValue: 42, Assets: []api.Asset{{Symbol: "BTC/USDT", Value: 42, Percentage: 100}}}, nil
}

func (f *fakeAPI) Metrics(context.Context) (api.Metrics, error) {
	if f.err != nil {
		return api.Metrics{}, f.err
	}
	return api.Metrics{TotalTrades: 3, WinRate: 66.6}, nil
}

func (f *fakeAPI) ScheduledTrades(context.Context) ([]api.ScheduledTrade, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trades, nil
}

type fixture struct {
	srv    *Server
	http   *httptest.Server
	market *fakeStream
	trades *fakeStream
	api    *fakeAPI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		market: &fakeStream{state: client.StateOpen},
		trades: &fakeStream{state: client.StateClosed},
		api:    &fakeAPI{trades: []api.ScheduledTrade{{ID: 5, TradingPair: "BTC/USDT", Amount: 1, Status: api.StatusPending}}},
	}
	f.srv = NewServer(Options{HistorySize: 10, API: f.api, Logger: logging.Quiet()})
	f.srv.AddStream("market-data", f.market)
	f.srv.AddStream("trade-updates", f.trades)
	f.http = httptest.NewServer(f.srv.Routes())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestStreamsEndpoints(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/streams")
	require.Equal(t, http.StatusOK, code)
	var statuses []client.Status
	require.NoError(t, json.Unmarshal(body, &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "market-data", statuses[0].Name)
	assert.True(t, statuses[0].Connected)
	assert.Equal(t, "trade-updates", statuses[1].Name)
	assert.Equal(t, "closed", statuses[1].State)

	code, _ = f.get(t, "/api/streams/nope")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.get(t, "/api/streams/market-data/last")
	assert.Equal(t, http.StatusNoContent, code)

	f.market.emit(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":1,"high":2,"low":0.5,"volume":3}}`)

	code, body = f.get(t, "/api/streams/market-data/last")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":1,"high":2,"low":0.5,"volume":3}}`, string(body))

	code, body = f.get(t, "/api/streams/market-data")
	require.Equal(t, http.StatusOK, code)
	var st client.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "market_data", st.LastType)
}

func TestSendEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.http.URL+"/api/streams/market-data/send", "application/json", strings.NewReader(`{"type":"subscribe","symbol":"ETH/USDT"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{`{"type":"subscribe","symbol":"ETH/USDT"}`}, f.market.sentPayloads())

	resp, err = http.Post(f.http.URL+"/api/streams/trade-updates/send", "application/json", strings.NewReader(`{"type":"ping"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(f.http.URL+"/api/streams/market-data/send", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarketEndpoints(t *testing.T) {
	f := newFixture(t)
	f.market.emit(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":100,"high":101,"low":99,"volume":1,"timestamp":"t1"}}`)
	f.market.emit(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":105,"high":106,"low":99,"volume":1,"timestamp":"t2"}}`)
	f.market.emit(t, `{"type":"market_data","data":{"price":1}}`)

	code, body := f.get(t, "/api/market")
	require.Equal(t, http.StatusOK, code)
	var quotes []Quote
	require.NoError(t, json.Unmarshal(body, &quotes))
	require.Len(t, quotes, 1)
	assert.Equal(t, 105.0, quotes[0].Price)

	code, body = f.get(t, "/api/market/BTC%2FUSDT/history")
	require.Equal(t, http.StatusOK, code)
	var hist []PricePoint
	require.NoError(t, json.Unmarshal(body, &hist))
	assert.Equal(t, []PricePoint{{Price: 100, Timestamp: "t1"}, {Price: 105, Timestamp: "t2"}}, hist)

	code, _ = f.get(t, "/api/market/ETH%2FUSDT/history")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTradesEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.srv.SeedTrades(context.Background()))

	f.trades.emit(t, `{"type":"trade_update","trade_id":5,"data":{"status":"executed","executed_price":64000}}`)

	code, body := f.get(t, "/api/trades")
	require.Equal(t, http.StatusOK, code)
	var trades []TradeView
	require.NoError(t, json.Unmarshal(body, &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, api.StatusExecuted, trades[0].Status)
	require.NotNil(t, trades[0].Price)
	assert.Equal(t, 64000.0, *trades[0].Price)

	f.api.trades = append(f.api.trades, api.ScheduledTrade{ID: 6, TradingPair: "ETH/USDT"})
	code, body = f.get(t, "/api/trades?refresh=true")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &trades))
	assert.Len(t, trades, 2)
}

func TestPortfolioEndpoint(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/portfolio")
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Portfolio api.Portfolio `json:"portfolio"`
		Metrics   api.Metrics   `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 42.0, out.Portfolio.TotalValue)
	assert.Equal(t, 3, out.Metrics.TotalTrades)

	f.api.err = &api.Error{StatusCode: http.StatusUnauthorized, Detail: "Could not validate credentials"}
	code, _ = f.get(t, "/api/portfolio")
	assert.Equal(t, http.StatusUnauthorized, code)

	f.api.err = &api.Error{StatusCode: http.StatusInternalServerError}
	code, _ = f.get(t, "/api/portfolio")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestHomePage(t *testing.T) {
	f := newFixture(t)
	f.market.emit(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":100}}`)

	code, body := f.get(t, "/")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "market-data")
	assert.Contains(t, string(body), "BTC/USDT")
	assert.Contains(t, string(body), "100.00")
}

func dialSocket(t *testing.T, f *fixture, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(waitFor))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestStreamSocket_FanOut(t *testing.T) {
	f := newFixture(t)
	f.market.emit(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":1}}`)

	a := dialSocket(t, f, "market-data")
	b := dialSocket(t, f, "market-data")

	// the latest message is replayed on join
	assert.JSONEq(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":1}}`, readFrame(t, a))
	assert.JSONEq(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":1}}`, readFrame(t, b))

	require.Eventually(t, func() bool { return f.srv.hub.Count("market-data") == 2 }, waitFor, poll)

	f.market.emit(t, `{"type":"market_data","symbol":"ETH/USDT","data":{"price":2}}`)
	assert.Contains(t, readFrame(t, a), "ETH/USDT")
	assert.Contains(t, readFrame(t, b), "ETH/USDT")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	require.Eventually(t, func() bool { return len(f.market.sentPayloads()) == 1 }, waitFor, poll)

	a.Close()
	require.Eventually(t, func() bool { return f.srv.hub.Count("market-data") == 1 }, waitFor, poll)
}

func TestStreamSocket_FrameDuringJoinFollowsReplay(t *testing.T) {
	f := newFixture(t)
	f.market.emit(t, `{"type":"market_data","symbol":"BTC/USDT","data":{"price":1}}`)

	next, err := proto.Decode([]byte(`{"type":"market_data","symbol":"ETH/USDT","data":{"price":2}}`))
	require.NoError(t, err)
	var once sync.Once
	f.market.mu.Lock()
	f.market.afterLast = func() {
		// a frame lands right after the snapshot, while the socket is joining
		once.Do(func() { go f.market.deliver(next) })
	}
	f.market.mu.Unlock()

	conn := dialSocket(t, f, "market-data")
	assert.Contains(t, readFrame(t, conn), "BTC/USDT")
	assert.Contains(t, readFrame(t, conn), "ETH/USDT")
}

func TestStreamSocket_UnknownStream(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	sub := &Subscriber{Id: "s", Stream: "x", send: make(chan []byte, 1), done: make(chan struct{})}
	h.Subscribe(sub)

	msg, err := proto.Decode([]byte(`{"type":"market_data"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, h.Publish("x", msg))
	assert.Equal(t, 0, h.Publish("x", msg))

	select {
	case <-sub.done:
	default:
		t.Fatal("slow subscriber was not closed")
	}
	assert.Equal(t, 0, h.Publish("x", msg))
	assert.Equal(t, 0, h.Publish("other", msg))

	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Count("x"))
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := NewServer(Options{Addr: "127.0.0.1:0", HistorySize: 10, API: &fakeAPI{}, Logger: logging.Quiet()})
	require.NoError(t, srv.Shutdown(context.Background()))

	started := make(chan error, 1)
	go func() { started <- srv.Start() }()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Start kept serving after Shutdown")
	}
}

func TestServer_StartThenShutdown(t *testing.T) {
	srv := NewServer(Options{Addr: "127.0.0.1:0", HistorySize: 10, API: &fakeAPI{}, Logger: logging.Quiet()})

	started := make(chan error, 1)
	go func() { started <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Start did not return after Shutdown")
	}
}
