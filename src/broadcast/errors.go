package broadcast

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Sentinel errors
// -----------------------------------------------------------------------------

var (
	// ErrConnectionClosed is returned when sending to a connection that has
	// left the OPEN state.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a connection's outbound buffer is
	// full and the message was dropped.
	ErrSendBufferFull = errors.New("send buffer full")
)

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// HandshakeError reports a failure to complete the connection handshake.
type HandshakeError struct {
	ConnectionID string
	Cause        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed for connection %s: %v", e.ConnectionID, e.Cause)
}

func (e *HandshakeError) Unwrap() error { return e.Cause }

// ProtocolError reports a malformed or unknown client command. It is reported
// back to the client as an error frame, never by dropping the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// ProviderError wraps an upstream data source failure for one symbol.
type ProviderError struct {
	Provider string
	Symbol   string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed for %s: %v", e.Provider, e.Symbol, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }
