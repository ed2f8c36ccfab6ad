// Package event defines the outbound wire events a room broadcasts to
// its participants.
package event

import "encoding/json"

type Type string

const (
	TypeMessage Type = "msg"
	TypeCount   Type = "count"
	TypeClear   Type = "clear"
)

// Envelope is the JSON object sent to clients for every event.
// Value holds the message content for "msg", the live session count
// for "count", and is omitted entirely for "clear".
type Envelope struct {
	Type  Type `json:"type"`
	Value any  `json:"value,omitempty"`
}

func Message(content string) Envelope {
	return Envelope{Type: TypeMessage, Value: content}
}

func Count(sessions int) Envelope {
	return Envelope{Type: TypeCount, Value: sessions}
}

func Clear() Envelope {
	return Envelope{Type: TypeClear}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
