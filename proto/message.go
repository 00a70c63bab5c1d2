package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotObject   = errors.New("frame is not a JSON object")
	ErrMissingType = errors.New("frame has no string \"type\" field")
)

// Message is one decoded stream frame. Type is the discriminator; every field of
// the full object, Type included, stays available in Fields and Raw so the
// rendering layer can interpret the rest however the type demands.
type Message struct {
	Type   string                     `json:"type"`
	Fields map[string]json.RawMessage `json:"-"`
	Raw    json.RawMessage            `json:"-"`
}

// Decode parses one inbound text frame.
func Decode(frame []byte) (Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, ErrNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Message{}, fmt.Errorf("invalid JSON: %w", err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Message{}, ErrMissingType
	}
	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil || msgType == "" {
		return Message{}, ErrMissingType
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)

	return Message{Type: msgType, Fields: fields, Raw: raw}, nil
}

// Field unmarshals a single top-level field into v.
func (m Message) Field(name string, v any) error {
	raw, ok := m.Fields[name]
	if !ok {
		return fmt.Errorf("field %q not present in %q message", name, m.Type)
	}
	return json.Unmarshal(raw, v)
}

// Has reports whether a top-level field is present.
func (m Message) Has(name string) bool {
	_, ok := m.Fields[name]
	return ok
}

// Into unmarshals the whole message into v.
func (m Message) Into(v any) error {
	if len(m.Raw) == 0 {
		return fmt.Errorf("empty %q message", m.Type)
	}
	return json.Unmarshal(m.Raw, v)
}

// MarshalJSON re-emits the received frame so views forward messages verbatim.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{m.Type})
}
