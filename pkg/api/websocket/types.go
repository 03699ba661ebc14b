package websocket

import "encoding/json"

// Message is the envelope for every frame in both directions
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest selects the events a client receives. Empty lists mean
// no filtering on that dimension.
type SubscribeRequest struct {
	// EventTypes is any of "block", "transaction"; empty means both
	EventTypes []string `json:"eventTypes"`
	// Topics are notification topics such as "transfer:new"
	Topics    []string `json:"topics"`
	Addresses []string `json:"addresses"`
	// ReplayLast replays up to N recent matching events
	ReplayLast int `json:"replayLast"`
}

// EventPayload carries one indexer event
type EventPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorMessage is the payload of an "error" frame
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage is the payload of a "success" frame
type SuccessMessage struct {
	Message string `json:"message"`
}
