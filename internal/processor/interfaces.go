package processor

import (
	"context"
	"time"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

// ProfileSource abstracts the CRM contact list that supplies profiles.
type ProfileSource interface {
	FetchUnprocessedProfiles(ctx context.Context) ([]models.Profile, error)
	MarkProfileProcessed(ctx context.Context, id string) error
	ResetAllProcessed(ctx context.Context) error
	AllProcessed(ctx context.Context) (bool, error)
}

// Extractor abstracts the batch scraping collaborator.
type Extractor interface {
	SubmitExtractionBatch(ctx context.Context, urls []string) (*models.ExtractionBatchResult, error)
}

// Sink abstracts the record store that receives accepted posts.
type Sink interface {
	CreateSinkRecord(ctx context.Context, post models.Post, profileURL, displayName string) (*models.SinkRecord, error)
}

// Quota abstracts the daily rate limiter.
type Quota interface {
	CanProcessMore(ctx context.Context) bool
	IncrementCount(ctx context.Context, amount int) int
	GetStats(ctx context.Context) models.RateLimitStats
}

// RunRecorder persists run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.RunResult) error
	TrimOldRuns(ctx context.Context, maxRuns int) error
}

// RunReporter announces finished runs.
type RunReporter interface {
	ReportRun(ctx context.Context, run models.RunResult) error
}

// RunObserver receives run outcomes for metrics.
type RunObserver interface {
	ObserveRun(run models.RunResult, elapsed time.Duration)
}
