package types

import "encoding/json"

type EventKind string

const (
	EventConnected      EventKind = "connected"
	EventDisconnected   EventKind = "disconnected"
	EventResponse       EventKind = "response"
	EventSessionSettled EventKind = "sessionSettled"
	EventSessionDeleted EventKind = "sessionDeleted"
	EventSessionUpdated EventKind = "sessionUpdated"
	EventSessionEvent   EventKind = "sessionEvent"
	EventAccountChanged EventKind = "accountChanged"
	EventError          EventKind = "error"
)

// Event is the single item type of the merged event stream.
type Event struct {
	Kind     EventKind       `json:"kind"`
	Provider ProviderKind    `json:"provider"`
	Account  *Account        `json:"account,omitempty"`
	Session  *Session        `json:"session,omitempty"`
	Response *Response       `json:"response,omitempty"`
	Topic    string          `json:"topic,omitempty"`
	ChainID  string          `json:"chainId,omitempty"`
	Name     string          `json:"name,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    *RPCError       `json:"error,omitempty"`
}
