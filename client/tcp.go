package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

const maxLineSize = 1 << 20

// TCPDialer speaks newline-delimited frames over plain TCP. Addresses are
// either host:port or tcp://host:port.
type TCPDialer struct {
	dialer net.Dialer
}

func NewTCPDialer() *TCPDialer {
	return &TCPDialer{}
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	hostport := addr
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid TCP address: %w", err)
		}
		hostport = u.Host
	}

	conn, err := d.dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &tcpConn{conn: conn, scanner: scanner}, nil
}

type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writeMu sync.Mutex
}

func (c *tcpConn) Read() ([]byte, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}

	if err := c.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("connection closed")
}

func (c *tcpConn) Write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	data := make([]byte, 0, len(payload)+1)
	data = append(data, payload...)
	data = append(data, '\n')
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := c.conn.Write(data)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

// SchemeDialer routes tcp:// addresses to TCP and everything else to WebSocket.
type SchemeDialer struct {
	WebSocket Dialer
	TCP       Dialer
}

func NewSchemeDialer(ws *WebSocketDialer) *SchemeDialer {
	if ws == nil {
		ws = NewWebSocketDialer()
	}
	return &SchemeDialer{WebSocket: ws, TCP: NewTCPDialer()}
}

func (d *SchemeDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	scheme := ""
	if i := strings.Index(addr, "://"); i > 0 {
		scheme = strings.ToLower(addr[:i])
	}
	switch scheme {
	case "", "ws", "wss", "http", "https":
		return d.WebSocket.Dial(ctx, addr)
	case "tcp":
		return d.TCP.Dial(ctx, addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}
