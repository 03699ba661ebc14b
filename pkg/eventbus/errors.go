package eventbus

import "errors"

// Common errors for event sink operations
var (
	// ErrNotConnected indicates the sink is not connected
	ErrNotConnected = errors.New("event sink is not connected")

	// ErrAlreadyConnected indicates the sink is already connected
	ErrAlreadyConnected = errors.New("event sink is already connected")

	// ErrConnectionFailed indicates a connection failure to the backend
	ErrConnectionFailed = errors.New("failed to connect to event sink backend")

	// ErrSerializationFailed indicates event serialization failure
	ErrSerializationFailed = errors.New("failed to serialize event")

	// ErrDeserializationFailed indicates event deserialization failure
	ErrDeserializationFailed = errors.New("failed to deserialize event")

	// ErrInvalidEventType indicates an unknown or invalid event type
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidConfiguration indicates invalid sink configuration
	ErrInvalidConfiguration = errors.New("invalid event sink configuration")
)
