package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notify-digest/internal/app"
	"github.com/jwalitptl/notify-digest/internal/config"
	digesthandler "github.com/jwalitptl/notify-digest/internal/handler/digest"
	"github.com/jwalitptl/notify-digest/internal/handler/health"
	"github.com/jwalitptl/notify-digest/internal/handler/prometheus"
	settingshandler "github.com/jwalitptl/notify-digest/internal/handler/settings"
	"github.com/jwalitptl/notify-digest/internal/middleware"
	"github.com/jwalitptl/notify-digest/internal/router"
	"github.com/jwalitptl/notify-digest/pkg/auth"
	"github.com/jwalitptl/notify-digest/pkg/validator"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	logger := app.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize")
	}
	defer a.Close()

	// Initialize handlers
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		health.NewHandler(a.HealthChecks()),
		settingshandler.NewHandler(a.Settings, validator.New()),
		digesthandler.NewHandler(a.DigestWorker),
		prometheus.New(a.Registry, app.MetricsNamespace),
		router.RouterConfig{
			RateLimit: middleware.RateLimiterConfig{Rate: 10, Burst: 20},
			Logger:    logger,
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "failed to start server")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}

	logger.Info("server exited properly")
}
