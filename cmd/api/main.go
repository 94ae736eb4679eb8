package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/m7md-3asm/brainscan-insight-navigator/internal/adapters/http"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/bootstrap"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/config"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("brainscan-insight-navigator", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(app.AdmitUC, app.Orchestrator, app.StatusUC, httpadapter.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxConcurrent:  cfg.APIMaxConcurrent,
		QueueTimeout:   time.Duration(cfg.APIQueueTimeoutMS) * time.Millisecond,
		ServerMetrics:  app.ServerMetrics,
		HealthCheck:    app.HealthCheck,
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router.Handler(),
		// Uploads run to hundreds of megabytes; give slow clients room.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_incomplete", "error", err)
	}
	if err := app.Orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("workers_shutdown_incomplete", "error", err)
	}
}
