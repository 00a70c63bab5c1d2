package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var errDropped = errors.New("connection dropped by server")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	addr   string
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	writes   []string
	reads    int
	closed   bool
	dropErr  error
	closedBy string
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: addr, frames: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) Read() ([]byte, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()

	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.dropErr != nil {
			return nil, c.dropErr
		}
		return nil, io.EOF
	}
}

func (c *fakeConn) Write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	c.writes = append(c.writes, string(payload))
	return nil
}

func (c *fakeConn) Close() error {
	c.finish("client", nil)
	return nil
}

// drop simulates the server ending the connection.
func (c *fakeConn) drop(err error) {
	c.finish("server", err)
}

func (c *fakeConn) finish(by string, err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closedBy = by
		c.dropErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) push(frame string) {
	c.frames <- []byte(frame)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	addrs []string
	// open handles at the moment of each dial
	openAtDial []int
	fail       error
	block      chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, addr)
	d.openAtDial = append(d.openAtDial, d.openLocked())
	fail, block := d.fail, d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	conn := newFakeConn(addr)
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) openLocked() int {
	n := 0
	for _, c := range d.conns {
		if !c.isClosed() {
			n++
		}
	}
	return n
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.addrs)
}

func (d *fakeDialer) open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked()
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
