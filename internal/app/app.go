// Package app wires configuration into a ready-to-run pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/pauljones0/linkedin-posts-bot/internal/apify"
	"github.com/pauljones0/linkedin-posts-bot/internal/config"
	"github.com/pauljones0/linkedin-posts-bot/internal/hubspot"
	"github.com/pauljones0/linkedin-posts-bot/internal/metrics"
	"github.com/pauljones0/linkedin-posts-bot/internal/notifier"
	"github.com/pauljones0/linkedin-posts-bot/internal/processor"
	"github.com/pauljones0/linkedin-posts-bot/internal/ratelimit"
	"github.com/pauljones0/linkedin-posts-bot/internal/storage"
)

type App struct {
	Config    *config.Config
	Limiter   *ratelimit.Limiter
	HubSpot   *hubspot.Client
	Processor *processor.BatchProcessor
	Metrics   *metrics.Metrics
	// History is nil unless GOOGLE_CLOUD_PROJECT is set.
	History *storage.Client

	closers []func() error
}

// Build creates every collaborator described by cfg. Missing HubSpot or
// Apify credentials fail with models.ErrMissingCredentials.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.ProjectID != "" {
		var opts []option.ClientOption
		if cfg.FirestoreCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirestoreCredentialsFile))
		}
		fs, err := storage.New(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, err
		}
		a.History = fs
		a.closers = append(a.closers, fs.Close)
	}

	store, err := a.counterStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Limiter = ratelimit.New(store, cfg.MaxProfilesPerDay, cfg.RateLimitLocation)

	hs, err := hubspot.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.HubSpot = hs

	extractor, err := apify.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(reg)

	opts := []processor.Option{processor.WithObserver(a.Metrics)}
	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, processor.WithReporter(notifier.New(cfg.DiscordWebhookURL)))
	}
	if a.History != nil {
		opts = append(opts, processor.WithRecorder(a.History, cfg.MaxStoredRuns))
	}
	a.Processor = processor.New(hs, extractor, hs, a.Limiter, opts...)

	return a, nil
}

func (a *App) counterStore(ctx context.Context) (ratelimit.CounterStore, error) {
	cfg := a.Config
	switch cfg.RateLimitBackend {
	case config.BackendFirestore:
		if a.History == nil {
			return nil, errors.New("firestore rate limit backend requires GOOGLE_CLOUD_PROJECT")
		}
		slog.Info("Using Firestore rate limit counter", "project", cfg.ProjectID)
		return a.History, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
		slog.Info("Using Redis rate limit counter", "addr", cfg.RedisAddr)
		return storage.NewRedisCounter(rdb, ""), nil
	default:
		slog.Info("Using file rate limit counter", "path", cfg.RateLimitFile)
		return storage.NewFileCounter(cfg.RateLimitFile), nil
	}
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
