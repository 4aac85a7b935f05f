// Package handlers implements the realtime HTTP surface.
//
// Endpoints: the chat and notification WebSockets, the order-event ingress
// and the dashboard reads (connections, stats). REST errors share one
// envelope with a stable snake_case code (errors.go).
//
// Example error response:
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_event",
//	  "message": "invalid order event: tenant_id is required"
//	}
//
// Example success response:
//
//	HTTP/1.1 202 Accepted
//	{ "notification_id": "01J9Z6X7T3K5Q2M8N4P0R1S2T3", "targeted": 3, "delivered": 3, "replayed": false }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/storehub-realtime/internal/http/middleware"
)

// ErrorResponse is the JSON body of every non-2xx REST response. WebSocket
// sessions never see it once upgraded; in-session failures travel as
// ReceiveError events instead.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"invalid_event"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"invalid order event"`
}

// fail aborts with an ErrorResponse. 5xx responses are also logged through
// the request-scoped logger so the request id ties the two together.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail lets the router reuse the envelope for NoRoute/NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON with status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
