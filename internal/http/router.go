// Package httpapi wires the HTTP transport (Gin) to the realtime hub, the
// event service, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, compression, CORS, security headers, idempotency,
// authentication and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - WebSocket routes stay free of response-wrapping middleware
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/storehub-realtime/docs"
	"github.com/tbourn/storehub-realtime/internal/config"
	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/http/handlers"
	"github.com/tbourn/storehub-realtime/internal/http/middleware"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/services"
)

// HeaderEventsKey carries the shared key of the order-event ingress.
const HeaderEventsKey = "X-Events-Key"

// Deps are the collaborators the router mounts.
type Deps struct {
	Hub      *realtime.Hub
	Resolver middleware.IdentityResolver
	// Events serves the order-event ingress; nil leaves it unconfigured.
	Events *services.EventService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs with redaction
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression (WebSocket paths excluded; gzip cannot hijack)
//  8. CORS and Security headers
//
// Per group: authentication, idempotency validation (before the rate limiter
// so replays bypass it) and the token-bucket rate limiter.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.AccessLog(middleware.RedactOptions{
		MaskHeaders: []string{HeaderEventsKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(apiBase, "/ws/"), "/metrics"}),
	))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		live := 0
		for _, st := range deps.Hub.Stats() {
			live += st.Connections
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": live})
	})

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// A nil *EventService must not become a non-nil interface.
	var ingest handlers.EventIngestor
	if deps.Events != nil {
		ingest = deps.Events
	}
	h := handlers.New(deps.Hub, deps.Resolver, ingest, handlers.WSOptions{
		SendQueue:       cfg.WS.SendQueue,
		WriteWait:       cfg.WS.WriteWait,
		PongWait:        cfg.WS.PongWait,
		PingPeriod:      cfg.WS.PingPeriod(),
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
	})

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentityOrIP())
	api := groupWithPrefix(r, apiBase)

	// WebSockets authenticate inside the handler so a rejected handshake
	// never reaches the upgrade.
	ws := api.Group("/ws", rl.Handler())
	{
		ws.GET("/chat", h.ChatSocket)
		ws.GET("/notifications", h.NotificationSocket)
	}

	// Order-event ingress (service-to-service)
	var seen middleware.IdempotencyLookup
	if deps.Events != nil {
		seen = deps.Events.Seen
	}
	events := api.Group("/events",
		middleware.RequireAPIKey(HeaderEventsKey, cfg.Notify.EventsKey),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Source: domain.SourceHTTP, MaxLen: 200}, seen),
		rl.Handler(),
	)
	{
		events.POST("/orders", h.PublishOrderEvent)
	}

	// Dashboard reads
	rt := api.Group("/realtime", middleware.Authenticate(deps.Resolver), rl.Handler())
	{
		rt.GET("/connections", h.ListConnections)
		rt.GET("/stats", h.Stats)
	}
}

// corsMiddleware returns the CORS posture: allow all when no origins are
// configured, otherwise echo allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, HeaderEventsKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath joins a normalized base path and a suffix starting with '/'.
func joinPath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}
