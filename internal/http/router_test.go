package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/storehub-realtime/internal/auth"
	"github.com/tbourn/storehub-realtime/internal/config"
	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/http/middleware"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/repo"
	"github.com/tbourn/storehub-realtime/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type testApp struct {
	r        *gin.Engine
	hub      *realtime.Hub
	resolver *auth.Resolver
	db       *gorm.DB
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		IdempotencyTTL: time.Hour,
		Security:       config.SecurityConfig{EnableHSTS: false},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		Notify:         config.NotifyConfig{Roles: []string{"manager"}, EventsKey: "events-secret"},
	}
}

func newApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub(zerolog.Nop(), realtime.ChatOptions{}, realtime.NotificationOptions{NotifyRoles: cfg.Notify.Roles})
	res, err := auth.NewResolver("router-secret", "", "")
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	db := newTestDB(t)
	svc := &services.EventService{DB: db, Notifier: hub.Notifications, TTL: cfg.IdempotencyTTL, Log: zerolog.Nop()}

	r := gin.New()
	RegisterRoutes(r, Deps{Hub: hub, Resolver: res, Events: svc}, cfg)
	return &testApp{r: r, hub: hub, resolver: res, db: db}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func eventRequest(key string) *http.Request {
	body := `{"type":"statusChanged","tenant_id":"t1","order_id":"42","actor_name":"Ana","status":"in_progress"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventsKey, "events-secret")
	if key != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
	}
	return req
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	app := newApp(t, baseConfig())

	// /health works and reports live connections
	s := realtime.NewSession("c1", domain.Identity{UserID: "u1", TenantID: "t1"}, 4)
	if err := app.hub.Chat.Connect(context.Background(), s); err != nil {
		t.Fatalf("connect: %v", err)
	}
	w := app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var health map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if health["status"] != "ok" || health["connections"] != float64(1) {
		t.Fatalf("unexpected health body %v", health)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = app.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w = app.do(httptest.NewRequest(http.MethodGet, "/nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w = app.do(httptest.NewRequest(http.MethodPost, "/health", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off by default
	if w = app.do(httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	app := newApp(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	w := app.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	app := newApp(t, cfg)

	w := app.do(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("swagger doc is not JSON: %v", err)
	}
	if doc["basePath"] != "/api/v1" {
		t.Fatalf("unexpected basePath %v", doc["basePath"])
	}
}

func TestEventsRoute_KeyIdempotencyAndReplay(t *testing.T) {
	app := newApp(t, baseConfig())

	// Missing ingress key → 401
	req := eventRequest("")
	req.Header.Del(HeaderEventsKey)
	if w := app.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	// First delivery → 202
	w := app.do(eventRequest("order-42-v2"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", w.Code, w.Body.String())
	}
	// Replay → 200 replayed
	w = app.do(eventRequest("order-42-v2"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d %s", w.Code, w.Body.String())
	}
	var res services.IngestResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Replayed {
		t.Fatalf("expected replayed=true, got %+v", res)
	}

	if _, err := repo.GetIdempotency(context.Background(), app.db, domain.SourceHTTP, "order-42-v2", time.Now().UTC()); err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
}

func TestEventsRoute_DisabledWithoutKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Notify.EventsKey = ""
	app := newApp(t, cfg)
	if w := app.do(eventRequest("")); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when ingress key unset, got %d", w.Code)
	}
}

func TestEventsRoute_RateLimitBypassedOnReplay(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1
	app := newApp(t, cfg)

	if w := app.do(eventRequest("k1")); w.Code != http.StatusAccepted {
		t.Fatalf("first: %d", w.Code)
	}
	if w := app.do(eventRequest("k2")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second fresh key should be limited, got %d", w.Code)
	}
	if w := app.do(eventRequest("k1")); w.Code != http.StatusOK {
		t.Fatalf("replay should bypass the limiter, got %d", w.Code)
	}
}

func TestRealtimeRoutes_RequireBearer(t *testing.T) {
	app := newApp(t, baseConfig())

	if w := app.do(httptest.NewRequest(http.MethodGet, "/api/v1/realtime/stats", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	tok, err := app.resolver.Issue(domain.Identity{UserID: "u1", TenantID: "t1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if w := app.do(req); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
}

func TestWebSocketRoute_UnauthenticatedIsRejected(t *testing.T) {
	app := newApp(t, baseConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws/chat", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Accept-Encoding", "gzip")
	w := app.do(req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Fatalf("websocket routes must not be compressed")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix_And_joinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	if joinPath("/", "/ws/") != "/ws/" || joinPath("/api/v1", "/ws/") != "/api/v1/ws/" {
		t.Fatalf("joinPath unexpected")
	}
}
