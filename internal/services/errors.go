// Package services holds the application logic that sits between the
// transports (HTTP, AMQP) and the realtime hub. Errors defined here are
// translated into status codes or acks by the callers.
package services

import "errors"

var (
	// ErrLedgerUnavailable is returned when the idempotency ledger cannot be
	// read or written. Nothing has been published when it is returned, so the
	// producer may retry.
	ErrLedgerUnavailable = errors.New("idempotency ledger unavailable")
)
