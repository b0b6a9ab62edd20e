package main

import (
	"context"
	"fmt"
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
	"github.com/hubexhq/hubex/pkg/log"
)

const (
	drainInterval = 5 * time.Second
	drainBatch    = 20
)

func main() {
	logger := log.InitLogs()
	logger.Println("Starting effect worker")
	defer logger.Println("Effect worker stopped")

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

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	lockedBy := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := serviceHandler.RunEffectsOnce(ctx, drainBatch, lockedBy)
			if err != nil {
				logger.WithError(err).Error("effect drain pass failed")
				continue
			}
			if result.Processed > 0 {
				logger.WithFields(map[string]any{
					"processed": result.Processed,
					"done":      result.Done,
					"failed":    result.Failed,
				}).Info("drained effects")
			}
		}
	}
}
