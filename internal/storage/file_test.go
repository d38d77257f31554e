package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

func TestFileCounter_MissingFileIsZero(t *testing.T) {
	f := NewFileCounter(filepath.Join(t.TempDir(), "nope", "rate-limit.json"))

	c, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c != (models.RateLimitCounter{}) {
		t.Errorf("Expected zero counter, got %+v", c)
	}
}

func TestFileCounter_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rate-limit.json")
	f := NewFileCounter(path)
	ctx := context.Background()

	want := models.RateLimitCounter{Date: "2025-03-14", Count: 7}
	if err := f.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := f.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the counter file, found %d entries", len(entries))
	}
}

func TestFileCounter_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate-limit.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileCounter(path).Load(context.Background()); err == nil {
		t.Error("Expected an error for a corrupt file")
	}
}
