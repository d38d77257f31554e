package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

type memoryStore struct {
	mu      sync.Mutex
	counter models.RateLimitCounter
	loadErr error
	saveErr error
	saves   int
}

func (m *memoryStore) Load(ctx context.Context) (models.RateLimitCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return models.RateLimitCounter{}, m.loadErr
	}
	return m.counter, nil
}

func (m *memoryStore) Save(ctx context.Context, c models.RateLimitCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.counter = c
	return nil
}

type atomicStore struct {
	memoryStore
	increments int
}

func (a *atomicStore) Increment(ctx context.Context, day string, amount int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.increments++
	if a.counter.Date != day {
		a.counter = models.RateLimitCounter{Date: day}
	}
	a.counter.Count += amount
	return a.counter.Count, nil
}

func newTestLimiter(store CounterStore, max int, now time.Time) *Limiter {
	l := New(store, max, time.UTC)
	l.now = func() time.Time { return now }
	return l
}

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func TestIncrementCount_Monotonic(t *testing.T) {
	store := &memoryStore{}
	l := newTestLimiter(store, 50, testNow)
	ctx := context.Background()

	sum := 0
	for _, n := range []int{2, 0, 5, 1} {
		sum += n
		if got := l.IncrementCount(ctx, n); got != sum {
			t.Errorf("IncrementCount(%d) = %d, want %d", n, got, sum)
		}
		if stats := l.GetStats(ctx); stats.Count != sum {
			t.Errorf("GetStats().Count = %d, want %d", stats.Count, sum)
		}
	}
	if store.counter.Date != "2025-03-14" {
		t.Errorf("Expected persisted date 2025-03-14, got %s", store.counter.Date)
	}
}

func TestCanProcessMore_DayRollover(t *testing.T) {
	store := &memoryStore{counter: models.RateLimitCounter{Date: "2025-03-13", Count: 50}}
	l := newTestLimiter(store, 50, testNow)
	ctx := context.Background()

	if stats := l.GetStats(ctx); stats.Count != 0 || stats.Remaining != 50 {
		t.Errorf("Expected stale counter to read as 0/50, got %+v", stats)
	}
	if store.saves != 0 {
		t.Errorf("GetStats should not persist, got %d saves", store.saves)
	}

	if !l.CanProcessMore(ctx) {
		t.Error("Expected CanProcessMore to be true after rollover")
	}
	if store.counter != (models.RateLimitCounter{Date: "2025-03-14", Count: 0}) {
		t.Errorf("Expected persisted reset counter, got %+v", store.counter)
	}
}

func TestCanProcessMore_LimitReached(t *testing.T) {
	store := &memoryStore{counter: models.RateLimitCounter{Date: "2025-03-14", Count: 50}}
	l := newTestLimiter(store, 50, testNow)

	if l.CanProcessMore(context.Background()) {
		t.Error("Expected CanProcessMore to be false at the limit")
	}
}

func TestGetStats_RemainingFloorsAtZero(t *testing.T) {
	store := &memoryStore{counter: models.RateLimitCounter{Date: "2025-03-14", Count: 57}}
	l := newTestLimiter(store, 50, testNow)

	stats := l.GetStats(context.Background())
	want := models.RateLimitStats{Date: "2025-03-14", Count: 57, Limit: 50, Remaining: 0}
	if stats != want {
		t.Errorf("GetStats() = %+v, want %+v", stats, want)
	}
}

func TestLoadFailureReadsAsZero(t *testing.T) {
	store := &memoryStore{loadErr: errors.New("disk on fire")}
	l := newTestLimiter(store, 10, testNow)
	ctx := context.Background()

	if !l.CanProcessMore(ctx) {
		t.Error("Expected CanProcessMore to be true when the counter cannot be read")
	}
	if stats := l.GetStats(ctx); stats.Count != 0 || stats.Remaining != 10 {
		t.Errorf("Expected zero usage, got %+v", stats)
	}
	if got := l.IncrementCount(ctx, 3); got != 3 {
		t.Errorf("IncrementCount() = %d, want 3", got)
	}
}

func TestSaveFailureStillReturnsCount(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("read-only filesystem")}
	l := newTestLimiter(store, 10, testNow)

	if got := l.IncrementCount(context.Background(), 4); got != 4 {
		t.Errorf("IncrementCount() = %d, want 4", got)
	}
}

func TestIncrementCount_UsesAtomicStore(t *testing.T) {
	store := &atomicStore{memoryStore: memoryStore{counter: models.RateLimitCounter{Date: "2025-03-13", Count: 9}}}
	l := newTestLimiter(store, 10, testNow)

	if got := l.IncrementCount(context.Background(), 2); got != 2 {
		t.Errorf("IncrementCount() = %d, want 2 after rollover", got)
	}
	if store.increments != 1 {
		t.Errorf("Expected 1 atomic increment, got %d", store.increments)
	}
	if store.saves != 0 {
		t.Errorf("Expected no read-modify-write saves, got %d", store.saves)
	}
}

func TestTimezoneDecidesDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 02:00 UTC on the 15th is still the 14th in New York.
	l := New(&memoryStore{}, 5, loc)
	l.now = func() time.Time { return time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC) }

	if got := l.GetStats(context.Background()).Date; got != "2025-03-14" {
		t.Errorf("Expected 2025-03-14, got %s", got)
	}
}

func TestReset(t *testing.T) {
	store := &memoryStore{counter: models.RateLimitCounter{Date: "2025-03-14", Count: 8}}
	l := newTestLimiter(store, 10, testNow)

	if err := l.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if store.counter.Count != 0 {
		t.Errorf("Expected count 0 after reset, got %d", store.counter.Count)
	}
}
