package client

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConnected      = errors.New("transport is not connected")
	ErrUnsupportedScheme = errors.New("unsupported stream scheme")
)

// Dialer opens one transport handle per call.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Conn is a live duplex frame stream. Read blocks until the next frame or
// until the connection fails; Write may be called concurrently with Read.
type Conn interface {
	Read() ([]byte, error)
	Write(payload []byte) error
	Close() error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}

// HandshakeError reports an HTTP-level rejection of the upgrade request,
// typically 401/403 for a bad token.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
