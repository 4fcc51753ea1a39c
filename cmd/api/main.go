// Command api runs the Milo nudge service: the HTTP facade over the nudge
// repository, with its document store and persisted cache selected by
// configuration.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ePaysa-ind/milo-sub005/internal/cache"
	"github.com/ePaysa-ind/milo-sub005/internal/config"
	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/docstore/memstore"
	"github.com/ePaysa-ind/milo-sub005/internal/docstore/pgstore"
	httpapi "github.com/ePaysa-ind/milo-sub005/internal/http"
	"github.com/ePaysa-ind/milo-sub005/internal/identity"
	"github.com/ePaysa-ind/milo-sub005/internal/observability"
	"github.com/ePaysa-ind/milo-sub005/internal/repo"
	"github.com/ePaysa-ind/milo-sub005/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 15 * time.Second

// @title           Milo Nudge Service API
// @version         1.0
// @description     Caching, rate-limited REST API over the nudge document store.
// @BasePath        /api/v1
func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.Init(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	var store docstore.Store
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres store open failed")
		}
		store = pg
		log.Info().Msg("document store: postgres")
	default:
		store = memstore.New()
		log.Info().Msg("document store: memory")
	}

	var kv cache.KV
	switch cfg.Cache.Backend {
	case "redis":
		kv, err = cache.OpenRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	default:
		kv, err = cache.OpenSQLiteKV(cfg.Cache.SQLitePath)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Cache.Backend).Msg("persisted cache open failed")
	}

	// The user identity always comes from the request context; the Identity
	// middleware applies DEFAULT_USER_ID as the fallback, so a Static
	// provider here would shadow per-request users.
	rep, err := repo.New(ctx, store, kv, identity.Contextual{}, repo.Config{
		RateLimit:         cfg.Nudge.RateLimit,
		EntityTTL:         cfg.Nudge.EntityTTL,
		ListTTL:           cfg.Nudge.ListTTL,
		ActiveTTL:         cfg.Nudge.ActiveTTL,
		SettingsTTL:       cfg.Nudge.SettingsTTL,
		TemplateTTL:       cfg.Nudge.TemplateTTL,
		SweepInterval:     cfg.Nudge.SweepInterval,
		RetryAttempts:     cfg.Nudge.RetryAttempts,
		RetryInitialDelay: cfg.Nudge.RetryDelay,
		KeyPrefix:         cfg.Nudge.CachePrefix,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("repository init failed")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, rep, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("base_path", cfg.APIBasePath).
			Str("version", version).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}
	stop()

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Drain in dependency order: stop accepting requests, then tear down the
	// repository and its backends, then flush traces.
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := rep.Close(); err != nil {
		log.Error().Err(err).Msg("repository close failed")
	}
	if err := kv.Close(); err != nil {
		log.Error().Err(err).Msg("persisted cache close failed")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("document store close failed")
	}
	if err := shutdownTracer(shutCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}
	log.Info().Msg("server stopped")
}
