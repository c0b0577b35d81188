// Package message provides the data structures moved through the bus: items,
// physical queue entries, reserved headers, and operator commands.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reserved header keys.
const (
	HeaderMessageID       = "MessageID"
	HeaderRequestResponse = "RequestResponse"
	HeaderResponded       = "Responded"
	HeaderSent            = "Sent"
	// HeaderSagaTimeout overrides the reply wait deadline for one request.
	// The value uses Go duration syntax ("30s", "2m").
	HeaderSagaTimeout = "SagaTimeout"
)

// Header flag values.
const (
	True  = "True"
	False = "False"
)

// Envelope is one logical message: a typed JSON payload plus headers.
type Envelope struct {
	Type    string            `json:"type"`
	Headers map[string]string `json:"headers"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// New builds an envelope whose payload is the JSON encoding of v.
func New(messageType string, v any) (*Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", messageType, err)
	}

	return &Envelope{
		Type:    messageType,
		Headers: make(map[string]string),
		Payload: payload,
	}, nil
}

// Normalize guarantees a non-nil header map.
func (e *Envelope) Normalize() {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
}

// Header returns the header value for key, or "".
func (e *Envelope) Header(key string) string {
	if e == nil || e.Headers == nil {
		return ""
	}
	return e.Headers[key]
}

// SetHeader sets a header, allocating the map if needed.
func (e *Envelope) SetHeader(key, value string) {
	e.Normalize()
	e.Headers[key] = value
}

// Flag reports whether a True/False header is set to True (case-insensitive).
func (e *Envelope) Flag(key string) bool {
	return strings.EqualFold(e.Header(key), True)
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// StampSent records the send time in UTC.
func (e *Envelope) StampSent(now time.Time) {
	e.SetHeader(HeaderSent, now.UTC().Format(time.RFC3339Nano))
}

// SagaTimeout returns the per-message reply deadline override, if any.
func (e *Envelope) SagaTimeout() (time.Duration, bool) {
	raw := e.Header(HeaderSagaTimeout)
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// Clone returns a deep copy.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	c := &Envelope{
		Type:    e.Type,
		Headers: make(map[string]string, len(e.Headers)),
	}
	for k, v := range e.Headers {
		c.Headers[k] = v
	}
	if e.Payload != nil {
		c.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return c
}

// Message is one physical queue entry. Body holds a single item, or several
// when Batch is set.
type Message struct {
	ID    string      `json:"id"`
	Body  []*Envelope `json:"body"`
	Batch bool        `json:"batch,omitempty"`
}

// Single wraps one item.
func Single(e *Envelope) *Message {
	return &Message{Body: []*Envelope{e}}
}

// NewBatch wraps several items sent as one entry.
func NewBatch(items []*Envelope) *Message {
	return &Message{Body: items, Batch: true}
}

// Empty reports transient peek noise: no message or no id.
func (m *Message) Empty() bool {
	return m == nil || m.ID == ""
}

// Headers returns the first item's headers, never nil.
func (m *Message) Headers() map[string]string {
	if m == nil || len(m.Body) == 0 || m.Body[0] == nil {
		return map[string]string{}
	}
	m.Body[0].Normalize()
	return m.Body[0].Headers
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := &Message{ID: m.ID, Batch: m.Batch, Body: make([]*Envelope, len(m.Body))}
	for i, e := range m.Body {
		c.Body[i] = e.Clone()
	}
	return c
}

// Encode serializes the entry for storage.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a stored entry.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	for _, e := range m.Body {
		if e != nil {
			e.Normalize()
		}
	}
	return &m, nil
}
