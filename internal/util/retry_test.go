package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testBase = time.Millisecond

func TestRetryWithBackoff_SuccessFirstTry(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, testBase, func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, testBase, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (2 failures + 1 success), got %d", calls)
	}
}

func TestRetryWithBackoff_AllAttemptsExhausted(t *testing.T) {
	calls := 0
	persistent := errors.New("persistent error")
	err := RetryWithBackoff(context.Background(), 2, testBase, func(attempt int) error {
		calls++
		return persistent
	})
	if !errors.Is(err, persistent) {
		t.Fatalf("Expected wrapped persistent error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (maxRetries+1), got %d", calls)
	}
}

func TestRetryWithBackoff_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	unauthorized := errors.New("401 unauthorized")
	err := RetryWithBackoff(context.Background(), 5, testBase, func(attempt int) error {
		calls++
		return Permanent(unauthorized)
	})
	if err != unauthorized {
		t.Fatalf("Expected the unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, 3, testBase, func(attempt int) error {
		calls++
		return errors.New("should not retry after cancellation")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected only the first attempt to run, got %d", calls)
	}
}

func TestRetryWithBackoff_BackoffIncreases(t *testing.T) {
	start := time.Now()
	_ = RetryWithBackoff(context.Background(), 2, 10*time.Millisecond, func(attempt int) error {
		return errors.New("fail")
	})
	// 10ms + 20ms of backoff
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Expected at least ~30ms of backoff, got %v", elapsed)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if IsPermanent(errors.New("x")) {
		t.Error("plain error should not be permanent")
	}
	if !IsPermanent(Permanent(errors.New("x"))) {
		t.Error("wrapped error should be permanent")
	}
}
