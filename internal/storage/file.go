package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

// FileCounter keeps the quota record in a small JSON file.
type FileCounter struct {
	path string
}

func NewFileCounter(path string) *FileCounter {
	return &FileCounter{path: path}
}

// Load returns a zero counter when the file does not exist yet.
func (f *FileCounter) Load(ctx context.Context) (models.RateLimitCounter, error) {
	var c models.RateLimitCounter
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return models.RateLimitCounter{}, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return c, nil
}

// Save writes the counter through a temp file and rename so readers never
// see a partial record.
func (f *FileCounter) Save(ctx context.Context, c models.RateLimitCounter) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.path, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".rate-limit-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write counter: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
