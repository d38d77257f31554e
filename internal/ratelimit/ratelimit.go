// Package ratelimit enforces the daily profile quota.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

// DateLayout is the calendar-day format of the persisted counter.
const DateLayout = "2006-01-02"

// CounterStore persists the single quota record. Load returns a zero counter
// and a nil error when nothing has been stored yet.
type CounterStore interface {
	Load(ctx context.Context) (models.RateLimitCounter, error)
	Save(ctx context.Context, c models.RateLimitCounter) error
}

// Incrementer is implemented by stores that can add to the counter
// atomically. Increment resets the counter first when its date is not day.
type Incrementer interface {
	Increment(ctx context.Context, day string, amount int) (int, error)
}

// Limiter tracks how many profiles were processed today. Storage failures are
// logged and read as a zero count; none of its methods fail.
//
// Without an Incrementer store, IncrementCount is a read-modify-write and is
// only safe with a single writer.
type Limiter struct {
	store CounterStore
	max   int
	loc   *time.Location
	now   func() time.Time
}

// New returns a Limiter allowing max profiles per calendar day in loc.
// A nil loc means UTC.
func New(store CounterStore, max int, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.UTC
	}
	return &Limiter{store: store, max: max, loc: loc, now: time.Now}
}

// Max returns the configured daily maximum.
func (l *Limiter) Max() int {
	return l.max
}

func (l *Limiter) today() string {
	return l.now().In(l.loc).Format(DateLayout)
}

func (l *Limiter) load(ctx context.Context) models.RateLimitCounter {
	c, err := l.store.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load rate limit counter, assuming zero", "error", err)
		return models.RateLimitCounter{}
	}
	return c
}

// CanProcessMore reports whether today's count is below the maximum. A
// counter left over from an earlier day is reset and persisted first.
func (l *Limiter) CanProcessMore(ctx context.Context) bool {
	today := l.today()
	c := l.load(ctx)
	if c.Date != today {
		c = models.RateLimitCounter{Date: today, Count: 0}
		if err := l.store.Save(ctx, c); err != nil {
			slog.Warn("Failed to persist rate limit rollover", "date", today, "error", err)
		} else {
			slog.Info("Rate limit counter reset for new day", "date", today)
		}
	}
	return c.Count < l.max
}

// IncrementCount adds amount to today's count and returns the new count.
func (l *Limiter) IncrementCount(ctx context.Context, amount int) int {
	today := l.today()

	if inc, ok := l.store.(Incrementer); ok {
		n, err := inc.Increment(ctx, today, amount)
		if err == nil {
			slog.Info("Rate limit counter incremented", "date", today, "count", n, "max", l.max)
			return n
		}
		slog.Warn("Atomic increment failed, falling back to read-modify-write", "error", err)
	}

	c := l.load(ctx)
	if c.Date != today {
		c = models.RateLimitCounter{Date: today}
	}
	c.Count += amount
	if err := l.store.Save(ctx, c); err != nil {
		slog.Error("Failed to persist rate limit counter", "date", today, "count", c.Count, "error", err)
	}
	slog.Info("Rate limit counter incremented", "date", today, "count", c.Count, "max", l.max)
	return c.Count
}

// GetStats reports today's usage. A stale counter reads as zero without
// being rewritten.
func (l *Limiter) GetStats(ctx context.Context) models.RateLimitStats {
	today := l.today()
	c := l.load(ctx)
	count := 0
	if c.Date == today {
		count = c.Count
	}
	return models.RateLimitStats{
		Date:      today,
		Count:     count,
		Limit:     l.max,
		Remaining: max(0, l.max-count),
	}
}

// Reset zeroes today's counter.
func (l *Limiter) Reset(ctx context.Context) error {
	return l.store.Save(ctx, models.RateLimitCounter{Date: l.today(), Count: 0})
}
