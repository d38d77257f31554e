// Package scheduler triggers pipeline runs on a fixed cron interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

// ErrDisabled is returned by New when the interval is not positive.
var ErrDisabled = errors.New("scheduler disabled")

// Runner is the part of the processor the scheduler drives.
type Runner interface {
	RunBatch(ctx context.Context) (*models.RunResult, error)
}

// Status describes the schedule for the stats endpoint.
type Status struct {
	Enabled     bool       `json:"enabled"`
	Expression  string     `json:"expression"`
	Interval    int        `json:"intervalMinutes"`
	Timezone    string     `json:"timezone"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	LastTrigger *time.Time `json:"lastTrigger,omitempty"`
	Skipped     int        `json:"skipped"`
}

type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	expr     string
	interval int
	loc      *time.Location
	timeout  time.Duration

	mu          sync.Mutex
	entry       cron.EntryID
	lastTrigger time.Time
	skipped     int
}

// Expression converts an interval in minutes to a five-field cron
// expression. Intervals of an hour or more run on the hour; leftover minutes
// are dropped.
func Expression(minutes int) (string, error) {
	switch {
	case minutes <= 0:
		return "", ErrDisabled
	case minutes < 60:
		return fmt.Sprintf("*/%d * * * *", minutes), nil
	case minutes >= 24*60:
		return "0 0 * * *", nil
	default:
		return fmt.Sprintf("0 */%d * * *", minutes/60), nil
	}
}

func New(runner Runner, intervalMinutes int, loc *time.Location, timeout time.Duration) (*Scheduler, error) {
	expr, err := Expression(intervalMinutes)
	if err != nil {
		return nil, err
	}
	if intervalMinutes >= 60 && intervalMinutes%60 != 0 {
		slog.Warn("Scheduler interval rounded down to whole hours", "minutes", intervalMinutes, "expression", expr)
	}
	if loc == nil {
		loc = time.UTC
	}

	logger := slogLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		runner:   runner,
		expr:     expr,
		interval: intervalMinutes,
		loc:      loc,
		timeout:  timeout,
	}

	id, err := s.cron.AddFunc(expr, func() { s.tick(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("failed to schedule %q: %w", expr, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "expression", s.expr, "timezone", s.loc.String(), "next", s.cron.Entry(s.entry).Next)
}

// Stop prevents new triggers and waits for a running trigger to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("Scheduler stopped")
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out with a run still active")
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:    true,
		Expression: s.expr,
		Interval:   s.interval,
		Timezone:   s.loc.String(),
		Skipped:    s.skipped,
	}
	if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
		st.NextRun = &next
	}
	if !s.lastTrigger.IsZero() {
		last := s.lastTrigger
		st.LastTrigger = &last
	}
	return st
}

// tick runs one scheduled batch. An active run makes it skip with a warning.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.lastTrigger = time.Now()
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	slog.Info("Scheduled run triggered", "expression", s.expr)
	run, err := s.runner.RunBatch(ctx)
	switch {
	case errors.Is(err, models.ErrRunInProgress):
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		slog.Warn("Previous run still active, skipping scheduled run")
	case err != nil:
		slog.Error("Scheduled run failed", "error", err)
	case run != nil && !run.Success:
		slog.Info("Scheduled run ended early", "reason", run.Error)
	}
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
