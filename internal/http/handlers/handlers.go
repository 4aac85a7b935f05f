// Realtime HTTP handlers.
//
// This file wires the handler set: the WebSocket endpoints for the chat and
// notification channels, the order-event ingress, and the presence/stats
// reads. Handlers are transport-thin: they authenticate, translate, and hand
// off to the realtime hub or the event service.
package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/http/middleware"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/services"
)

// EventIngestor deduplicates and publishes order events.
//
// Implementations must be safe for concurrent use and honor ctx.
type EventIngestor interface {
	Ingest(ctx context.Context, source, key string, evt domain.OrderEvent) (services.IngestResult, error)
	LedgerStats(ctx context.Context, tenantID string) (int64, *time.Time, error)
}

// WSOptions tunes the WebSocket transport.
type WSOptions struct {
	SendQueue int
	WriteWait time.Duration
	PongWait  time.Duration
	// PingPeriod must leave room for a second ping inside PongWait, so one
	// missed pong is seen (Reconnecting) before the read deadline closes.
	PingPeriod      time.Duration
	MaxMessageBytes int64
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
}

func (o WSOptions) withDefaults() WSOptions {
	if o.SendQueue <= 0 {
		o.SendQueue = realtime.DefaultSendQueue
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod*2 >= o.PongWait {
		o.PingPeriod = o.PongWait * 2 / 5
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 8192
	}
	return o
}

// Handlers groups the realtime HTTP endpoints.
type Handlers struct {
	hub      *realtime.Hub
	resolver middleware.IdentityResolver
	events   EventIngestor
	ws       WSOptions
	upgrader websocket.Upgrader

	// newConnID assigns transport-level connection ids.
	newConnID func() string
}

// New constructs the handler set. events may be nil when the ingress is not
// served by this process.
func New(hub *realtime.Hub, resolver middleware.IdentityResolver, events EventIngestor, ws WSOptions) *Handlers {
	ws = ws.withDefaults()
	h := &Handlers{
		hub:       hub,
		resolver:  resolver,
		events:    events,
		ws:        ws,
		newConnID: uuid.NewString,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(ws.AllowedOrigins),
	}
	return h
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and, when allowed is set, only the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	norm := make([]string, 0, len(allowed))
	for _, o := range allowed {
		norm = append(norm, strings.TrimRight(strings.ToLower(o), "/"))
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(norm, strings.TrimRight(strings.ToLower(origin), "/"))
	}
}
