package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second

	// writeWait bounds one outbound frame so a peer that stopped reading
	// cannot hold the writer forever.
	writeWait = 10 * time.Second
)

type WebSocketDialer struct {
	Header           http.Header
	HandshakeTimeout time.Duration
}

func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: defaultHandshakeTimeout}
}

// WithBearer returns a copy of the dialer that sends the token in the
// Authorization header of the upgrade request.
func (d *WebSocketDialer) WithBearer(token string) *WebSocketDialer {
	h := http.Header{}
	for k, v := range d.Header {
		h[k] = append([]string(nil), v...)
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return &WebSocketDialer{Header: h, HandshakeTimeout: d.HandshakeTimeout}
}

func (d *WebSocketDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	// If no scheme is provided, assume ws://
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid WebSocket URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("failed to connect to WebSocket server: %w", err)
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

func (c *wsConn) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("WebSocket connection error: %w", err)
		}
		return nil, fmt.Errorf("connection closed: %w", err)
	}
	return data, nil
}

func (c *wsConn) Write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send WebSocket message: %w", err)
	}
	slog.Debug("Sent WebSocket message", "size", len(payload))
	return nil
}

// Close does not take writeMu: WriteControl and Close are safe alongside a
// blocked WriteMessage, and closing the socket is what unblocks it.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		werr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if werr != nil {
			// Still close the socket below.
			slog.Debug("Failed to send close message", "error", werr)
		}
		err = c.conn.Close()
	})
	return err
}
