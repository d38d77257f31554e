package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/linkedin-posts-bot/internal/app"
	"github.com/pauljones0/linkedin-posts-bot/internal/config"
	"github.com/pauljones0/linkedin-posts-bot/internal/logging"
	"github.com/pauljones0/linkedin-posts-bot/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	slog.Info("Starting LinkedIn posts server...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	logs := logging.Setup(cfg.LogLevel, cfg.LogDir)
	err = run(cfg)
	logs.Close()
	if err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var sched *scheduler.Scheduler
	var schedule func() scheduler.Status
	if cfg.ScrapeIntervalMinutes > 0 {
		sched, err = scheduler.New(a.Processor, cfg.ScrapeIntervalMinutes, cfg.SchedulerLocation, cfg.RunTimeout)
		if err != nil {
			return err
		}
		schedule = sched.Status
	} else {
		slog.Info("SCRAPE_INTERVAL_MINUTES not set, scheduler disabled")
	}

	srv := NewServer(a.Processor, schedule, a.Metrics.Handler(), cfg.RunTimeout)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown on SIGTERM/SIGINT or when the listener fails.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if sched != nil {
			sched.Stop(shutdownCtx)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if sched != nil {
		sched.Start()
	}

	if cfg.RunOnStartup {
		g.Go(func() error {
			runCtx, cancel := context.WithTimeout(gctx, cfg.RunTimeout)
			defer cancel()
			res, err := a.Processor.RunBatch(runCtx)
			if err != nil {
				slog.Error("Startup run failed", "error", err)
				return nil
			}
			slog.Info("Startup run finished", "success", res.Success, "error", res.Error)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped.")
	return nil
}
