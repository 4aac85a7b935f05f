// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These codes give clients a stable, machine-readable error taxonomy that
// supplements the human-readable message. Codes are lowercase snake_case;
// generic codes mirror HTTP status semantics, domain codes name the realtime
// failure that the status alone cannot convey.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "ledger_unavailable",
//	  "message": "event could not be recorded, retry later"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidEvent      = "invalid_event"
	ErrCodeLedgerUnavailable = "ledger_unavailable"
	ErrCodeStatsFailed       = "stats_failed"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
