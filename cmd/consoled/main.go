package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quayside/console/internal/httpx"
	"github.com/quayside/console/internal/service/dispatch"
	"github.com/quayside/console/internal/service/draft"
	"github.com/quayside/console/internal/service/lifecycle"
	"github.com/quayside/console/internal/service/reconcile"
	"github.com/quayside/console/internal/service/wizard"
	"github.com/quayside/console/internal/ws"
	"github.com/quayside/console/pkg/config"
	"github.com/quayside/console/pkg/deploy/client"
	"github.com/quayside/console/pkg/logger"
)

func main() {
	cfg := config.LoadConsoleConfig()
	log := logger.New("console", parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := client.New(cfg.DeployAPIURL)
	if err != nil {
		log.Error("invalid deploy service url", "url", cfg.DeployAPIURL, "error", err)
		os.Exit(1)
	}
	hub := ws.NewHub()
	defer hub.Close()

	drafts := draft.NewStore(log)
	reconciler := reconcile.New(api, drafts, hub, log)
	dispatcher := dispatch.New(api, log)
	lifecycleSvc := lifecycle.New(api, reconciler, reconciler, drafts, log)
	wizardSvc := wizard.New(dispatcher, drafts, reconciler, reconciler, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	defer limiter.Close()

	router := httpx.NewRouter(log, drafts, dispatcher, lifecycleSvc, reconciler, wizardSvc, api, hub, limiter)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("console server starting", "addr", cfg.Addr, "deploy_api", cfg.DeployAPIURL)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("console server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
