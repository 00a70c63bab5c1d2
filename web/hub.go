package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbocsi/tradedash/proto"
)

const (
	defaultSubscriberBuffer = 64
	writeWait               = 5 * time.Second
)

// Subscriber is one browser socket following a stream. All writes to the
// socket happen on its writePump goroutine.
type Subscriber struct {
	Id     string
	Stream string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newSubscriber(stream string, conn *websocket.Conn, buffer int) *Subscriber {
	return &Subscriber{
		Id:     "sub-" + uuid.NewString(),
		Stream: stream,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks; it reports false when the subscriber is gone or its
// buffer is full.
func (s *Subscriber) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscriber) writePump() {
	defer s.conn.Close()
	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("Subscriber write failed", "id", s.Id, "stream", s.Stream, "error", err)
				s.close()
				return
			}
		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Hub fans decoded stream messages out to browser subscribers, keyed by
// stream name.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: defaultSubscriberBuffer,
	}
}

func (h *Hub) Subscribe(sub *Subscriber) {
	h.SubscribeWithReplay(sub, nil)
}

// SubscribeWithReplay enqueues the frame returned by last, if any, and adds
// sub in one step against Publish: every later frame reaches sub after the
// replayed one and none is missed in between.
func (h *Hub) SubscribeWithReplay(sub *Subscriber, last func() ([]byte, bool)) {
	slog.Debug("Subscribing", "stream", sub.Stream, "id", sub.Id)
	h.mu.Lock()
	defer h.mu.Unlock()

	if last != nil {
		if frame, ok := last(); ok {
			sub.enqueue(frame)
		}
	}

	if h.subs[sub.Stream] == nil {
		h.subs[sub.Stream] = make(map[*Subscriber]struct{})
	}
	h.subs[sub.Stream][sub] = struct{}{}
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	slog.Debug("Unsubscribing", "stream", sub.Stream, "id", sub.Id)
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.Stream]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.Stream)
		}
	}
}

// Publish delivers msg to every subscriber of stream and returns how many
// accepted it. A subscriber whose buffer is full is disconnected.
func (h *Hub) Publish(stream string, msg proto.Message) int {
	frame, err := msg.MarshalJSON()
	if err != nil {
		slog.Warn("Failed to encode message for subscribers", "stream", stream, "type", msg.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for sub := range h.subs[stream] {
		if !sub.enqueue(frame) {
			slog.Warn("Dropping slow subscriber", "stream", stream, "id", sub.Id)
			sub.close()
			continue
		}
		sent++
	}
	if sent > 0 {
		slog.Debug("Message published", "stream", stream, "type", msg.Type, "subscribers", sent, "size", len(frame))
	}
	return sent
}

func (h *Hub) Count(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[stream])
}
