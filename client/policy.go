package client

import (
	"errors"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultReconnectDelay is the wait between a close and the next attempt.
const DefaultReconnectDelay = 5 * time.Second

// ReconnectPolicy decides what happens after a transport closes. attempt counts
// closes since the last successful open, starting at 1; cause is the error that
// ended the connection or the dial. Returning false stops reconnecting for good.
type ReconnectPolicy interface {
	Next(attempt int, cause error) (time.Duration, bool)
}

// FixedDelay retries forever after the same delay, whatever the close reason.
type FixedDelay time.Duration

func (d FixedDelay) Next(int, error) (time.Duration, bool) {
	return time.Duration(d), true
}

// DefaultPolicy retries every five seconds without limit.
func DefaultPolicy() ReconnectPolicy {
	return FixedDelay(DefaultReconnectDelay)
}

// StopOn gives up when the server rejects the handshake with one of
// HandshakeStatuses or closes the stream with one of CloseCodes; every other
// cause is deferred to Policy.
type StopOn struct {
	Policy            ReconnectPolicy
	CloseCodes        []int
	HandshakeStatuses []int
}

func (s StopOn) Next(attempt int, cause error) (time.Duration, bool) {
	var hs *HandshakeError
	if errors.As(cause, &hs) && slices.Contains(s.HandshakeStatuses, hs.StatusCode) {
		return 0, false
	}
	var ce *websocket.CloseError
	if errors.As(cause, &ce) && slices.Contains(s.CloseCodes, ce.Code) {
		return 0, false
	}

	inner := s.Policy
	if inner == nil {
		inner = DefaultPolicy()
	}
	return inner.Next(attempt, cause)
}
