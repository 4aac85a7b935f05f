// Package realtime implements the live connection subsystem: a registry of
// connections keyed by identity, a router of broadcast groups, and the chat
// and notification channels built on top of them.
//
// This file centralizes the sentinel errors returned by the package. Callers
// match them with errors.Is; transports translate in-session errors into a
// ReceiveError event rather than closing the connection.
package realtime

import "errors"

var (
	// ErrHandshakeRejected is returned when the caller's identity or tenant
	// claim is missing. The connection must be aborted and never registered.
	ErrHandshakeRejected = errors.New("handshake rejected: identity and tenant required")

	// ErrEmptyMessage is returned when a chat body is empty or whitespace only.
	ErrEmptyMessage = errors.New("message body is empty")

	// ErrUnknownConnection is returned when an operation names a connection id
	// the registry does not hold.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrGroupForbidden is returned when a connection asks to join a group
	// outside its own tenant's namespace.
	ErrGroupForbidden = errors.New("group not permitted for this connection")

	// ErrRateLimited is returned when a connection sends faster than allowed.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBackpressure is returned when a session's send queue is full. The
	// session is closed as a side effect.
	ErrBackpressure = errors.New("send queue full")

	// ErrSessionClosed is returned when enqueueing to a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidEvent is returned when an order event fails validation.
	ErrInvalidEvent = errors.New("invalid order event")

	// ErrUnsupportedCommand is returned for inbound commands a channel does
	// not understand.
	ErrUnsupportedCommand = errors.New("unsupported command")
)
