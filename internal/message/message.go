// Package message defines the clipwatch control protocol spoken between the
// running agent and the status/reconnect CLI commands.
//
// All messages are newline-delimited JSON. Each message is exactly one line:
// <json>\n
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of message.
type Type string

const (
	TypeStatus         Type = "STATUS"
	TypeStatusResponse Type = "STATUS_RESPONSE"
	TypeReconnect      Type = "RECONNECT"
	TypeOK             Type = "OK"
	TypePing           Type = "PING"
	TypePong           Type = "PONG"
	TypeError          Type = "ERROR"
)

// Status describes the agent's chain and toast state.
type Status struct {
	Version       string    `json:"version"`
	Backend       string    `json:"backend"`
	StartedAt     time.Time `json:"started_at"`
	ChainState    string    `json:"chain_state"`
	Link          string    `json:"link"`
	Receiving     bool      `json:"receiving"`
	LastChange    time.Time `json:"last_change,omitempty"`
	Reconnects    int       `json:"reconnects"`
	LastReconnect time.Time `json:"last_reconnect,omitempty"`
	ToastState    string    `json:"toast_state"`
	LastSeenSeq   uint64    `json:"last_seen_seq"`
	LastSeenAt    time.Time `json:"last_seen_at,omitempty"`
}

// Message is the top-level wire envelope.
type Message struct {
	Type Type `json:"type"`

	// STATUS_RESPONSE
	Status *Status `json:"status,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}

// Errorf builds an ERROR message.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}
