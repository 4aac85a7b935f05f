// Command server runs the realtime service: the chat and notification
// WebSockets, the order-event ingress (HTTP and, when enabled, AMQP) and the
// dashboard reads.
//
//	@title						StoreHub Realtime API
//	@version					1.0
//	@description				Company chat and order-notification WebSockets with an order-event ingress.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT issued by the identity provider, as "Bearer <token>".
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tbourn/storehub-realtime/internal/auth"
	"github.com/tbourn/storehub-realtime/internal/config"
	httpapi "github.com/tbourn/storehub-realtime/internal/http"
	"github.com/tbourn/storehub-realtime/internal/ingest"
	"github.com/tbourn/storehub-realtime/internal/observability"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/repo"
	"github.com/tbourn/storehub-realtime/internal/services"
	"github.com/tbourn/storehub-realtime/internal/sysutil"
)

var version = "dev"

func main() {
	if !sysutil.IsTruthy(os.Getenv("SKIP_DOTENV")) {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	cfg := config.MustLoad()
	logger := sysutil.NewLogger(sysutil.LoggerOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL,
		sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		return err
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	hub := realtime.NewHub(logger,
		realtime.ChatOptions{
			MaxMessageLen: cfg.Chat.MaxMessageLen,
			MessageRPS:    cfg.Chat.MessageRPS,
			MessageBurst:  cfg.Chat.MessageBurst,
		},
		realtime.NotificationOptions{NotifyRoles: cfg.Notify.Roles},
	)

	resolver, err := auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}

	events := &services.EventService{
		DB:       db,
		Notifier: hub.Notifications,
		TTL:      cfg.IdempotencyTTL,
		Log:      logger.With().Str("component", "events").Logger(),
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Hub: hub, Resolver: resolver, Events: events}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		events.RunSweeper(ctx, cfg.LedgerSweepInterval)
	}()

	var consumer *ingest.Consumer
	if cfg.AMQP.Enabled {
		consumer = ingest.New(cfg.AMQP, events, logger)
		bg.Add(1)
		go func() {
			defer bg.Done()
			_ = consumer.Run(ctx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}
	stop()

	// Sessions go first so clients see 1001 instead of a dropped socket;
	// hijacked connections are not tracked by srv.Shutdown.
	closed := hub.Shutdown()
	logger.Info().Int("sessions", closed).Msg("realtime sessions closed")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Warn().Err(err).Msg("amqp close")
		}
	}
	bg.Wait()

	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("stopped")
	return nil
}
