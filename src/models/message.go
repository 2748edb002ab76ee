package models

// -----------------------------------------------------------------------------
// Wire Message Types
// -----------------------------------------------------------------------------

// MessageType discriminates outbound frames so dispatchers can switch
// exhaustively instead of probing payload attributes.
type MessageType string

const (
	MessageTypePriceUpdate  MessageType = "price-update"
	MessageTypeMarketStatus MessageType = "market-status"
	MessageTypeHeartbeat    MessageType = "heartbeat"
	MessageTypeError        MessageType = "error"
	MessageTypeConnStatus   MessageType = "connection-status"
)

// -----------------------------------------------------------------------------

// MBroadcastMessage is an outbound frame. Ephemeral: it exists only on the
// queue and the wire, never in storage.
type MBroadcastMessage struct {
	Type          MessageType `json:"type"`
	Channel       string      `json:"channel,omitempty"`
	Data          interface{} `json:"data,omitempty"`
	Timestamp     int64       `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// -----------------------------------------------------------------------------

// MClientCommand is an inbound client message (subscribe/unsubscribe/heartbeat).
type MClientCommand struct {
	Type     string            `json:"type"`
	Channels []string          `json:"channels,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// -----------------------------------------------------------------------------

// MErrorPayload is the data of an error frame sent for protocol violations.
type MErrorPayload struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// -----------------------------------------------------------------------------

// MConnStatusPayload is sent once on connect with the server-assigned id.
type MConnStatusPayload struct {
	ConnectionID string `json:"connection_id"`
	Status       string `json:"status"`
}

// -----------------------------------------------------------------------------

// MMarketStatusPayload is the data of a market-status category broadcast.
type MMarketStatusPayload struct {
	Status    string `json:"status"` // "open" or "closed"
	ChangedAt int64  `json:"changed_at,omitempty"`
}
