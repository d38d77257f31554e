// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Setup installs a default logger writing text to stderr and JSON lines to a
// daily file under dir. When dir is empty or unusable only stderr is used.
// The returned closer releases the current log file.
func Setup(level slog.Level, dir string) io.Closer {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, opts)}

	var closer io.Closer = nopCloser{}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "log directory %s unavailable, logging to stderr only: %v\n", dir, err)
		} else {
			df := NewDailyFile(dir)
			handlers = append(handlers, slog.NewJSONHandler(df, opts))
			closer = df
		}
	}

	slog.SetDefault(slog.New(NewFanout(handlers...)))
	return closer
}

// Fanout sends every record to each handler that accepts its level.
type Fanout struct {
	handlers []slog.Handler
}

func NewFanout(handlers ...slog.Handler) *Fanout {
	return &Fanout{handlers: handlers}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: next}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: next}
}

// DailyFile appends to <dir>/YYYY-MM-DD.log, switching files when the date
// changes. Write never fails: records that cannot be written are dropped
// after one warning on stderr.
type DailyFile struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	day    string
	file   *os.File
	warned bool
}

func NewDailyFile(dir string) *DailyFile {
	return &DailyFile{dir: dir, now: time.Now}
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format("2006-01-02")
	if d.file == nil || day != d.day {
		if err := d.rotate(day); err != nil {
			if !d.warned {
				fmt.Fprintf(os.Stderr, "log file unavailable: %v\n", err)
				d.warned = true
			}
			return len(p), nil
		}
	}
	if _, err := d.file.Write(p); err != nil && !d.warned {
		fmt.Fprintf(os.Stderr, "log file write failed: %v\n", err)
		d.warned = true
	}
	return len(p), nil
}

func (d *DailyFile) rotate(day string) error {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
	f, err := os.OpenFile(filepath.Join(d.dir, day+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	d.file = f
	d.day = day
	d.warned = false
	return nil
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
