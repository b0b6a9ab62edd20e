package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/config"
	"github.com/hubexhq/hubex/internal/rate"
	"github.com/hubexhq/hubex/internal/realtime"
	"github.com/hubexhq/hubex/internal/service"
	"github.com/hubexhq/hubex/internal/store"
	"github.com/hubexhq/hubex/internal/transport"
	"github.com/hubexhq/hubex/pkg/log"
)

func main() {
	logger := log.InitLogs()
	logger.Println("Starting API service")
	defer logger.Println("API service stopped")

	cfg, err := config.LoadOrGenerate(config.ConfigFile())
	if err != nil {
		logger.Fatalf("reading configuration: %v", err)
	}
	log.SetLevel(logger, cfg.Service.LogLevel)

	db, err := store.InitDB(cfg, logger)
	if err != nil {
		logger.Fatalf("initializing database: %v", err)
	}
	st := store.NewStore(db, logger.WithField("pkg", "store"))
	defer func() { _ = st.Close() }()

	if err := st.InitialMigration(); err != nil {
		logger.Fatalf("running database migrations: %v", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer,
		time.Duration(cfg.Auth.AccessTokenSeconds)*time.Second)
	hub := realtime.NewHub(cfg.Limits.MaxWSConnections, logger.WithField("pkg", "realtime"))
	limiter := rate.NewLimiter(cfg.Limits.RateLimitPerMin, cfg.Limits.RateLimitEnabled)

	serviceHandler := service.NewServiceHandler(st, cfg, jwtMgr, hub, limiter, logger.WithField("pkg", "service"))
	transportHandler := transport.NewTransportHandler(serviceHandler, logger.WithField("pkg", "transport"))
	wsHandler := transport.NewWebsocketHandler(serviceHandler, logger.WithField("pkg", "websocket"))
	router := transport.NewRouter(transportHandler, wsHandler, cfg, logger)

	server := &http.Server{
		Addr:    cfg.Service.Address,
		Handler: router,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("Listening on %s", cfg.Service.Address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serving API: %v", err)
	}
}
