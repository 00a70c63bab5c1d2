package client

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/mbocsi/tradedash/proto"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Option func(*StreamClient)

func WithDialer(d Dialer) Option {
	return func(c *StreamClient) { c.dialer = d }
}

func WithPolicy(p ReconnectPolicy) Option {
	return func(c *StreamClient) { c.policy = p }
}

func WithClock(clk clock.Clock) Option {
	return func(c *StreamClient) { c.clock = clk }
}

func WithName(name string) Option {
	return func(c *StreamClient) { c.Name = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *StreamClient) { c.log = l }
}

// StreamClient keeps one logical subscription to a server-push stream alive.
// It owns at most one transport handle at a time, retains only the latest
// decoded message, and reconnects according to its ReconnectPolicy.
//
// Every dial and read goroutine carries the generation it was started for;
// anything it reports after the generation moved on is dropped.
type StreamClient struct {
	Id   string
	Name string

	dialer Dialer
	policy ReconnectPolicy
	clock  clock.Clock
	log    *slog.Logger

	mu       sync.Mutex
	url      string
	state    State
	conn     Conn
	timer    *clock.Timer
	cancel   context.CancelFunc
	gen      uint64
	attempts int
	disposed bool
	last     *proto.Message

	// state hooks run in ticket order, outside mu
	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitSeq  uint64
	emitNext uint64

	hookMu    sync.RWMutex
	onMessage []func(proto.Message)
	onState   []func(State)
}

func NewStreamClient(addr string, opts ...Option) *StreamClient {
	c := &StreamClient{
		Id:    "stream-" + uuid.NewString(),
		url:   addr,
		state: StateIdle,
	}
	c.emitCond = sync.NewCond(&c.emitMu)
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewSchemeDialer(nil)
	}
	if c.policy == nil {
		c.policy = DefaultPolicy()
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("stream", c.Name, "id", c.Id)
	return c
}

// Open creates a client and starts its first connection attempt.
func Open(addr string, opts ...Option) *StreamClient {
	c := NewStreamClient(addr, opts...)
	c.Connect()
	return c
}

// OnMessage registers fn for every decoded frame. Frames of one connection are
// delivered in the order received, on that connection's read goroutine.
func (c *StreamClient) OnMessage(fn func(proto.Message)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// OnStateChange registers fn for every state transition. Hooks must not call
// Connect, SetURL or Close synchronously.
func (c *StreamClient) OnStateChange(fn func(State)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onState = append(c.onState, fn)
}

// Connect starts an attempt unless one is already in flight or open.
func (c *StreamClient) Connect() {
	c.mu.Lock()
	if c.disposed || c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.beginAttemptLocked()
	c.releaseAndNotify(StateConnecting, true, nil)
}

// SetURL points the client at a new endpoint. An open or pending transport is
// closed before the new one is dialed.
func (c *StreamClient) SetURL(addr string) {
	c.mu.Lock()
	if c.disposed || addr == c.url {
		c.mu.Unlock()
		return
	}
	c.url = addr
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}

	c.log.Info("Stream endpoint changed, reconnecting", "url", RedactURL(addr))
	stale := c.teardownLocked()
	c.attempts = 0
	c.beginAttemptLocked()
	c.releaseAndNotify(StateConnecting, true, stale)
}

// SendMessage hands payload to the open transport. It reports whether the
// payload was written; when the stream is not open it is dropped.
func (c *StreamClient) SendMessage(payload string) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		c.log.Debug("Dropping outbound message, stream not open", "size", len(payload))
		return false
	}
	if err := conn.Write([]byte(payload)); err != nil {
		c.log.Warn("Failed to send stream message", "error", err)
		return false
	}
	return true
}

// Close disposes of the client: the transport is closed, a pending reconnect or
// dial is cancelled and no further transitions happen.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	conn := c.teardownLocked()
	changed := c.state != StateIdle && c.state != StateClosed
	if changed {
		c.state = StateClosed
	}
	c.log.Info("Stream client disposed")
	c.releaseAndNotify(StateClosed, changed, conn)
	return nil
}

func (c *StreamClient) LastMessage() (proto.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return proto.Message{}, false
	}
	return *c.last, true
}

func (c *StreamClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

func (c *StreamClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamClient) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Attempts is the number of closes since the last successful open.
func (c *StreamClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type Status struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	State        string `json:"state"`
	Connected    bool   `json:"connected"`
	Attempts     int    `json:"attempts"`
	LastType     string `json:"last_type,omitempty"`
	HasMessage   bool   `json:"has_message"`
	Reconnecting bool   `json:"reconnecting"`
}

// Status is a point-in-time snapshot with the token redacted from the URL.
func (c *StreamClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		Id:           c.Id,
		Name:         c.Name,
		URL:          RedactURL(c.url),
		State:        c.state.String(),
		Connected:    c.state == StateOpen,
		Attempts:     c.attempts,
		HasMessage:   c.last != nil,
		Reconnecting: c.timer != nil,
	}
	if c.last != nil {
		s.LastType = c.last.Type
	}
	return s
}

func (c *StreamClient) beginAttemptLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	go c.dial(ctx, cancel, gen, c.url)
}

// teardownLocked invalidates the current generation, stops the timer and the
// in-flight dial, and detaches the transport. The caller closes the returned
// Conn after releasing c.mu.
func (c *StreamClient) teardownLocked() Conn {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	return conn
}

func (c *StreamClient) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, addr string) {
	c.log.Debug("Connecting stream", "url", RedactURL(addr))
	conn, err := c.dialer.Dial(ctx, addr)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.disposed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancel = nil

	if err != nil {
		c.log.Warn("Stream connection failed", "url", RedactURL(addr), "error", err)
		c.closedLocked(err)
		return
	}

	c.conn = conn
	c.attempts = 0
	c.state = StateOpen
	c.log.Info("Stream connected", "url", RedactURL(addr))
	c.releaseAndNotify(StateOpen, true, nil)

	c.readLoop(gen, conn)
}

func (c *StreamClient) readLoop(gen uint64, conn Conn) {
	for {
		frame, err := conn.Read()
		if err != nil {
			c.mu.Lock()
			if gen != c.gen || c.disposed {
				c.mu.Unlock()
				return
			}
			c.log.Info("Stream disconnected", "error", err)
			c.closedLocked(err)
			return
		}

		msg, err := proto.Decode(frame)
		if err != nil {
			c.log.Warn("Discarding malformed stream frame", "error", err, "size", len(frame))
			continue
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.last = &msg
		c.mu.Unlock()

		c.log.Debug("Stream message received", "type", msg.Type, "size", len(frame))

		c.hookMu.RLock()
		hooks := slices.Clone(c.onMessage)
		c.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(msg)
		}
	}
}

// closedLocked moves to Closed and schedules the next attempt if the policy
// allows one. It releases c.mu.
func (c *StreamClient) closedLocked(cause error) {
	conn := c.conn
	c.conn = nil
	c.attempts++
	c.state = StateClosed

	delay, retry := c.policy.Next(c.attempts, cause)
	if retry {
		gen := c.gen
		c.timer = c.clock.AfterFunc(delay, func() { c.reconnect(gen) })
		c.log.Debug("Reconnect scheduled", "in", delay, "attempt", c.attempts)
	} else {
		c.log.Warn("Reconnect policy gave up", "attempt", c.attempts, "error", cause)
	}
	c.releaseAndNotify(StateClosed, true, conn)
}

func (c *StreamClient) reconnect(gen uint64) {
	c.mu.Lock()
	if c.disposed || gen != c.gen || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.beginAttemptLocked()
	c.releaseAndNotify(StateConnecting, true, nil)
}

// releaseAndNotify unlocks c.mu, closes stale if set, and, if changed, runs the
// state hooks. Each transition takes a ticket while still holding c.mu so hooks
// observe transitions in the order they happened.
func (c *StreamClient) releaseAndNotify(s State, changed bool, stale Conn) {
	var seq uint64
	if changed {
		seq = c.emitSeq
		c.emitSeq++
	}
	c.mu.Unlock()

	if stale != nil {
		if err := stale.Close(); err != nil {
			c.log.Debug("Error closing transport", "error", err)
		}
	}
	if !changed {
		return
	}

	c.emitMu.Lock()
	for c.emitNext != seq {
		c.emitCond.Wait()
	}
	c.emitMu.Unlock()
	defer func() {
		c.emitMu.Lock()
		c.emitNext++
		c.emitCond.Broadcast()
		c.emitMu.Unlock()
	}()

	c.hookMu.RLock()
	hooks := slices.Clone(c.onState)
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}
}

// RedactURL masks token-like query parameters for logs and views.
func RedactURL(addr string) string {
	u, err := url.Parse(addr)
	if err != nil || u.RawQuery == "" {
		return addr
	}
	q := u.Query()
	masked := false
	for _, key := range []string{"token", "access_token", "api_key"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			masked = true
		}
	}
	if !masked {
		return addr
	}
	u.RawQuery = q.Encode()
	return u.String()
}
