// Command scrapectl runs and inspects the LinkedIn posts pipeline from a shell.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/pauljones0/linkedin-posts-bot/internal/app"
	"github.com/pauljones0/linkedin-posts-bot/internal/config"
	"github.com/pauljones0/linkedin-posts-bot/internal/logging"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(loadDeps).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadDeps builds the real pipeline from the environment.
func loadDeps(ctx context.Context, debug bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if debug {
		level = slog.LevelDebug
	}
	logs := logging.Setup(level, cfg.LogDir)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logs.Close()
		return nil, err
	}

	d := &deps{
		processor: a.Processor,
		source:    a.HubSpot,
		quota:     a.Limiter,
		closers:   []io.Closer{a, logs},
	}
	if a.History != nil {
		d.history = a.History
	}
	return d, nil
}
