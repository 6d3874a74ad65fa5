package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notify-digest/internal/app"
	"github.com/jwalitptl/notify-digest/internal/config"
	"github.com/jwalitptl/notify-digest/internal/handler/health"
	"github.com/jwalitptl/notify-digest/internal/handler/prometheus"
	"github.com/jwalitptl/notify-digest/pkg/logger"
)

// setupHealthCheck serves probes and metrics on the health port.
func setupHealthCheck(a *app.App, port int, logger *logger.Logger) *http.Server {
	engine := gin.New()
	metrics := prometheus.New(a.Registry, app.MetricsNamespace)
	engine.Use(gin.Recovery(), metrics.Middleware())
	health.NewHandler(a.HealthChecks()).RegisterRoutes(engine)
	engine.GET("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := app.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to initialize")
	}
	defer a.Close()

	if err := a.Dispatcher.Ready(); err != nil {
		logger.Warn("SMTP is not configured, digest cycles will abort until it is", "error", err.Error())
	}

	healthSrv := setupHealthCheck(a, cfg.Server.HealthPort, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.DigestWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		a.LedgerCleanup.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health server forced to shutdown")
	}
}
