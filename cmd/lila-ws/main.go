// Command lila-ws is the gateway's process entrypoint: it parses flags,
// dials Redis and MongoDB, wires the hub/cache/rate-limiter/session
// worker/bus workers together behind a Gin HTTP server, and shuts
// everything down in order on SIGINT/SIGTERM. Adapted from the teacher's
// api/cmd/main.go (env/flag parsing up front, dependency construction
// in dependency order, goroutines for background workers, signal-driven
// graceful shutdown at the bottom) — trimmed to the handful of
// dependencies this gateway actually has.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lichess-org/lila-ws/internal/bus"
	"github.com/lichess-org/lila-ws/internal/config"
	"github.com/lichess-org/lila-ws/internal/gamecache"
	"github.com/lichess-org/lila-ws/internal/hub"
	"github.com/lichess-org/lila-ws/internal/logger"
	"github.com/lichess-org/lila-ws/internal/middleware"
	"github.com/lichess-org/lila-ws/internal/ratelimit"
	"github.com/lichess-org/lila-ws/internal/session"
	"github.com/lichess-org/lila-ws/internal/socket"
	"github.com/lichess-org/lila-ws/internal/wire"
)

// lookupQueueCapacity bounds the in-flight session lookups so a Mongo
// slowdown degrades to anonymous-resolution rather than an unbounded
// goroutine pileup; the socket handler already treats a full queue as
// "resolve anonymous now" (see ServeWS).
const lookupQueueCapacity = 4096

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger.Initialize(cfg.LogLevel, cfg.Pretty)
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisBus, err := bus.Dial(ctx, cfg.Redis, *logger.Bus())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisBus.Close()

	store, err := session.Connect(ctx, cfg.Mongodb, *logger.Session())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	h := hub.New(*logger.Hub())

	cache, err := gamecache.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build game cache")
	}

	limiter := ratelimit.New(*logger.RateLimit(), cfg.RateLimiterCredits)

	outbound := bus.NewOutbound()
	defer outbound.Close()

	lookups := make(chan session.LookupRequest, lookupQueueCapacity)
	worker := session.NewWorker(store)

	gateway := socket.NewGateway(*logger.Socket(), *logger.Analysis(), h, cache, limiter, lookups, outbound, cfg.MaxConnections)

	// The gateway just (re)started, so any presence the backend is holding
	// for this process is stale; clear it before anything else connects.
	outbound.Push(wire.DisconnectAllIn().String())

	go worker.Run(ctx, lookups, gateway)

	ingress, ingressErr := redisBus.Ingress(ctx)
	go func() {
		for line := range ingress {
			gateway.HandleLilaOut(string(line))
		}
	}()
	go func() {
		if err := <-ingressErr; err != nil {
			log.Fatal().Err(err).Msg("site-out subscription failed")
		}
	}()

	go func() {
		if err := redisBus.RunEgress(ctx, outbound.Out()); err != nil {
			log.Fatal().Err(err).Msg("site-in publish failed")
		}
	}()

	srv := newHTTPServer(cfg, gateway, logger.HTTP())

	go func() {
		log.Info().Str("bind", cfg.Bind).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}
}

func newHTTPServer(cfg config.Config, gateway *socket.Gateway, log *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(*log))
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/socket", gateway.ServeWS)

	return &http.Server{
		Addr:              cfg.Bind,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
