package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_PanicsWithoutSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic without AUTH_JWT_SECRET")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // -> "/api/v1"

	t.Setenv("DB_PATH", "db.sqlite")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("IDEMPOTENCY_TTL", "48h")
	t.Setenv("LEDGER_SWEEP_INTERVAL", "1m")

	// Realtime
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_JWT_ISSUER", "storehub")
	t.Setenv("AUTH_JWT_AUDIENCE", "dashboard")
	t.Setenv("CHAT_MAX_MESSAGE_LEN", "280")
	t.Setenv("CHAT_MESSAGE_RPS", "0")
	t.Setenv("CHAT_MESSAGE_BURST", "3")
	t.Setenv("WS_SEND_QUEUE", "16")
	t.Setenv("WS_WRITE_WAIT", "2s")
	t.Setenv("WS_PONG_WAIT", "30s")
	t.Setenv("WS_MAX_MESSAGE_BYTES", "4096")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://dash.example.com")
	t.Setenv("NOTIFY_ROLES", "Admin, Owner")
	t.Setenv("EVENTS_API_KEY", "k")
	t.Setenv("AMQP_ENABLED", "true")
	t.Setenv("AMQP_URL", "amqp://rabbit:5672/")
	t.Setenv("AMQP_QUEUE", "q")
	t.Setenv("AMQP_PREFETCH", "8")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" ||
		cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" {
		t.Fatalf("db path unexpected: %q", cfg.DBPath)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour || cfg.LedgerSweepInterval != time.Minute {
		t.Fatalf("idempotency unexpected: %v %v", cfg.IdempotencyTTL, cfg.LedgerSweepInterval)
	}

	if cfg.Auth != (AuthConfig{JWTSecret: "s3cret", Issuer: "storehub", Audience: "dashboard"}) {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if cfg.Chat != (ChatConfig{MaxMessageLen: 280, MessageRPS: 0, MessageBurst: 3}) {
		t.Fatalf("chat unexpected: %+v", cfg.Chat)
	}
	if cfg.WS.SendQueue != 16 || cfg.WS.WriteWait != 2*time.Second || cfg.WS.PongWait != 30*time.Second ||
		cfg.WS.MaxMessageBytes != 4096 || !reflect.DeepEqual(cfg.WS.AllowedOrigins, []string{"https://dash.example.com"}) {
		t.Fatalf("ws unexpected: %+v", cfg.WS)
	}
	if cfg.WS.PingPeriod() != 12*time.Second {
		t.Fatalf("ping period unexpected: %v", cfg.WS.PingPeriod())
	}
	if !reflect.DeepEqual(cfg.Notify.Roles, []string{"admin", "owner"}) || cfg.Notify.EventsKey != "k" {
		t.Fatalf("notify unexpected: %+v", cfg.Notify)
	}
	if cfg.AMQP != (AMQPConfig{Enabled: true, URL: "amqp://rabbit:5672/", Queue: "q", Prefetch: 8}) {
		t.Fatalf("amqp unexpected: %+v", cfg.AMQP)
	}

	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	if cfg.Chat.MaxMessageLen != 500 || cfg.Chat.MessageBurst != 10 {
		t.Fatalf("chat defaults unexpected: %+v", cfg.Chat)
	}
	if cfg.WS.SendQueue != 128 || cfg.WS.PongWait != time.Minute || cfg.WS.PingPeriod() != 24*time.Second {
		t.Fatalf("ws defaults unexpected: %+v", cfg.WS)
	}
	if !reflect.DeepEqual(cfg.Notify.Roles, []string{"admin", "manager"}) {
		t.Fatalf("notify roles default unexpected: %#v", cfg.Notify.Roles)
	}
	if cfg.Notify.EventsKey != "" {
		t.Fatalf("events key should default to empty (endpoint disabled)")
	}
	if cfg.AMQP.Enabled {
		t.Fatalf("amqp should be disabled by default")
	}
	if cfg.OTEL.ServiceName != "storehub-realtime" {
		t.Fatalf("otel service name default unexpected: %q", cfg.OTEL.ServiceName)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sweep interval", map[string]string{"LEDGER_SWEEP_INTERVAL": "0s"}, "LEDGER_SWEEP_INTERVAL"},
		{"blank secret", map[string]string{"AUTH_JWT_SECRET": "  "}, "AUTH_JWT_SECRET"},
		{"chat max len", map[string]string{"CHAT_MAX_MESSAGE_LEN": "0"}, "CHAT_MAX_MESSAGE_LEN"},
		{"chat rps negative", map[string]string{"CHAT_MESSAGE_RPS": "-2"}, "CHAT_MESSAGE_RPS"},
		{"chat burst", map[string]string{"CHAT_MESSAGE_BURST": "0"}, "CHAT_MESSAGE_BURST"},
		{"send queue", map[string]string{"WS_SEND_QUEUE": "0"}, "WS_SEND_QUEUE"},
		{"pong wait", map[string]string{"WS_PONG_WAIT": "0s"}, "WS_PONG_WAIT"},
		{"max message bytes", map[string]string{"WS_MAX_MESSAGE_BYTES": "10"}, "WS_MAX_MESSAGE_BYTES"},
		{"amqp queue missing", map[string]string{"AMQP_ENABLED": "1", "AMQP_QUEUE": " "}, "AMQP_QUEUE"},
		{"amqp prefetch", map[string]string{"AMQP_ENABLED": "1", "AMQP_PREFETCH": "0"}, "AMQP_PREFETCH"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_AMQPDisabledSkipsValidation(t *testing.T) {
	t.Setenv("AMQP_ENABLED", "false")
	t.Setenv("AMQP_QUEUE", " ")
	if _, err := Load(); err != nil {
		t.Fatalf("disabled amqp should not be validated: %v", err)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		t.Setenv("B_T", v)
		if !getbool("B_T", false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		t.Setenv("B_F", v)
		if getbool("B_F", true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	want := []string{"a", "b", "c"}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	// Every Load needs a signing secret; individual tests override or blank it.
	os.Setenv("AUTH_JWT_SECRET", "test-secret")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
