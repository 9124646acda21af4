package domain

import "encoding/json"

// Envelope is the framing for every message exchanged with clients over the
// WebSocket: a type tag plus an opaque payload. The registry and broadcast
// layers only ever see the marshalled bytes.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalEvent packs an event payload into a marshalled Envelope.
func MarshalEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}
