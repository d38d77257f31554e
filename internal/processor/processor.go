// Package processor drives one pipeline run: quota check, profile selection,
// extraction, reconciliation, sink writes and the processed-flag rotation.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/reconcile"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
	"github.com/pauljones0/linkedin-posts-bot/internal/validator"
)

const defaultMaxStoredRuns = 500

type Processor interface {
	RunBatch(ctx context.Context) (*models.RunResult, error)
	RunForURLs(ctx context.Context, urls []string) (*models.RunResult, error)
	Status(ctx context.Context) models.Status
}

// Option configures optional collaborators.
type Option func(*BatchProcessor)

// WithRecorder stores every run and trims history to maxRuns.
func WithRecorder(r RunRecorder, maxRuns int) Option {
	return func(p *BatchProcessor) {
		p.recorder = r
		if maxRuns > 0 {
			p.maxStoredRuns = maxRuns
		}
	}
}

// WithReporter announces runs that did work or failed.
func WithReporter(r RunReporter) Option {
	return func(p *BatchProcessor) { p.reporter = r }
}

// WithObserver feeds run outcomes to metrics.
func WithObserver(o RunObserver) Option {
	return func(p *BatchProcessor) { p.observer = o }
}

// WithMatcher replaces the default reconciliation strategies.
func WithMatcher(m *reconcile.Matcher) Option {
	return func(p *BatchProcessor) { p.reconciler = reconcile.New(m) }
}

type BatchProcessor struct {
	source     ProfileSource
	extractor  Extractor
	sink       Sink
	quota      Quota
	reconciler *reconcile.Reconciler
	validate   *validator.Validator

	recorder      RunRecorder
	reporter      RunReporter
	observer      RunObserver
	maxStoredRuns int

	running atomic.Bool
	mu      sync.Mutex
	lastRun *models.RunResult

	newID func() string
	now   func() time.Time
}

func New(source ProfileSource, extractor Extractor, sink Sink, quota Quota, opts ...Option) *BatchProcessor {
	p := &BatchProcessor{
		source:        source,
		extractor:     extractor,
		sink:          sink,
		quota:         quota,
		reconciler:    reconcile.New(nil),
		validate:      validator.New(),
		maxStoredRuns: defaultMaxStoredRuns,
		newID:         uuid.NewString,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Running reports whether a run is in progress.
func (p *BatchProcessor) Running() bool {
	return p.running.Load()
}

// Status returns the run flag, the last finished run and today's quota.
func (p *BatchProcessor) Status(ctx context.Context) models.Status {
	st := models.Status{
		Running:   p.running.Load(),
		RateLimit: p.quota.GetStats(ctx),
	}
	p.mu.Lock()
	if p.lastRun != nil {
		last := *p.lastRun
		last.Results = nil
		st.LastRun = &last
	}
	p.mu.Unlock()
	return st
}

// RunBatch processes the next quota-bounded slice of unprocessed profiles.
// Expected stop conditions (daily limit, no profiles) return a result with
// Success false and a nil error. Fetch and extraction failures abort the run
// and are returned. Only one run may be active; overlapping calls get
// models.ErrRunInProgress.
func (p *BatchProcessor) RunBatch(ctx context.Context) (*models.RunResult, error) {
	return p.withRunLock(ctx, func(run *models.RunResult) error {
		if !p.quota.CanProcessMore(ctx) {
			slog.Warn("Daily limit reached, skipping run")
			run.Error = models.StopDailyLimitReached
			return nil
		}

		profiles, err := p.source.FetchUnprocessedProfiles(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch profiles: %w", err)
		}
		if len(profiles) == 0 {
			slog.Warn("No unprocessed profiles found")
			run.Error = models.StopNoProfiles
			return nil
		}

		selected, ok := p.truncateToQuota(ctx, run, profiles)
		if !ok {
			return nil
		}
		return p.process(ctx, run, selected, true)
	})
}

// RunForURLs runs the pipeline over explicit profile URLs. Invalid URLs are
// dropped; when none remain the error wraps models.ErrInvalidProfileURL.
// No profile is marked processed since the URLs carry no source identity.
func (p *BatchProcessor) RunForURLs(ctx context.Context, urls []string) (*models.RunResult, error) {
	var profiles []models.Profile
	seen := make(map[string]bool)
	for _, raw := range urls {
		u := util.NormalizeURL(raw)
		if !util.IsProfileURL(u) {
			slog.Warn("Dropping invalid profile URL", "url", raw)
			continue
		}
		key := strings.ToLower(strings.TrimRight(u, "/"))
		if seen[key] {
			continue
		}
		seen[key] = true
		profiles = append(profiles, models.Profile{CanonicalURL: u})
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: none of %d URLs is a LinkedIn profile", models.ErrInvalidProfileURL, len(urls))
	}

	return p.withRunLock(ctx, func(run *models.RunResult) error {
		if !p.quota.CanProcessMore(ctx) {
			slog.Warn("Daily limit reached, skipping explicit run")
			run.Error = models.StopDailyLimitReached
			return nil
		}
		selected, ok := p.truncateToQuota(ctx, run, profiles)
		if !ok {
			return nil
		}
		return p.process(ctx, run, selected, false)
	})
}

// withRunLock holds the run lock around fn and finalizes the run afterwards.
func (p *BatchProcessor) withRunLock(ctx context.Context, fn func(run *models.RunResult) error) (*models.RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, models.ErrRunInProgress
	}
	defer p.running.Store(false)

	run := &models.RunResult{RunID: p.newID(), StartedAt: p.now()}
	slog.Info("Run started", "runId", run.RunID)

	err := fn(run)
	p.finish(ctx, run, err)
	return run, err
}

// truncateToQuota keeps the first profiles that fit in today's remaining quota.
func (p *BatchProcessor) truncateToQuota(ctx context.Context, run *models.RunResult, profiles []models.Profile) ([]models.Profile, bool) {
	stats := p.quota.GetStats(ctx)
	if stats.Remaining <= 0 {
		slog.Warn("No remaining quota for today", "count", stats.Count, "limit", stats.Limit)
		run.Error = models.StopNoRemainingQuota
		return nil, false
	}
	n := min(stats.Remaining, len(profiles))
	slog.Info("Selected profiles for run", "candidates", len(profiles), "selected", n, "remaining", stats.Remaining)
	return profiles[:n], true
}

func (p *BatchProcessor) process(ctx context.Context, run *models.RunResult, profiles []models.Profile, mark bool) error {
	urls := make([]string, len(profiles))
	for i, prof := range profiles {
		urls[i] = prof.CanonicalURL
	}

	extraction, err := p.extractor.SubmitExtractionBatch(ctx, urls)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	if extraction == nil {
		extraction = &models.ExtractionBatchResult{}
	}

	groups := p.reconciler.Reconcile(profiles, extraction.RawItems)
	slog.Info("Reconciled extraction output", "items", extraction.TotalItems, "groups", len(groups))

	marked := make(map[string]bool)
	markOnce := func(prof *models.Profile) {
		if !mark || prof.ID == "" || marked[prof.ID] {
			return
		}
		marked[prof.ID] = true
		if err := p.source.MarkProfileProcessed(ctx, prof.ID); err != nil {
			slog.Error("Failed to mark profile processed", "id", prof.ID, "url", prof.CanonicalURL, "error", err)
			run.Summary.MarkFailures++
		}
	}

	for _, g := range groups {
		if g.Associated() {
			markOnce(g.Profile)
		} else {
			run.Summary.Unassociated++
			slog.Warn("Processing posts for unassociated profile", "profileUrl", g.ProfileURL, "posts", len(g.Posts))
		}

		for _, post := range g.Posts {
			res := p.writePost(ctx, g, post)
			run.Results = append(run.Results, res)
			run.Summary.Add(res)
		}
	}

	// Submitted profiles are consumed even when they produced no posts.
	for i := range profiles {
		markOnce(&profiles[i])
	}

	run.Summary.ProfilesProcessed = len(profiles)
	p.quota.IncrementCount(ctx, len(profiles))

	run.Reset = p.checkExhaustion(ctx)
	run.Success = true
	return nil
}

func (p *BatchProcessor) writePost(ctx context.Context, g models.ProfilePostGroup, post models.Post) models.PostResult {
	res := models.PostResult{
		ProfileURL:  g.ProfileURL,
		ProfileName: g.ProfileDisplayName,
		PostURL:     post.URL,
		Outcome:     models.OutcomeFailed,
	}

	if err := p.validate.ValidatePost(post); err != nil {
		res.Error = err.Error()
		slog.Warn("Skipping invalid post", "postUrl", post.URL, "error", err)
		return res
	}

	rec, err := p.sink.CreateSinkRecord(ctx, post, g.ProfileURL, g.ProfileDisplayName)
	switch {
	case err != nil:
		res.Error = err.Error()
		slog.Error("Failed to save post", "postUrl", post.URL, "profile", g.ProfileDisplayName, "error", err)
	case rec == nil:
		res.Error = "sink returned no record"
		slog.Error("Failed to save post", "postUrl", post.URL, "profile", g.ProfileDisplayName, "error", res.Error)
	case rec.Duplicate:
		res.Outcome = models.OutcomeDuplicate
		res.Duplicate = true
	default:
		res.Outcome = models.OutcomeSaved
		res.Success = true
		res.DealID = rec.ID
	}
	return res
}

// checkExhaustion resets every processed flag once all profiles are consumed.
func (p *BatchProcessor) checkExhaustion(ctx context.Context) bool {
	all, err := p.source.AllProcessed(ctx)
	if err != nil {
		slog.Warn("Failed to check whether all profiles are processed", "error", err)
		return false
	}
	if !all {
		return false
	}
	slog.Info("All profiles processed, resetting for the next cycle")
	if err := p.source.ResetAllProcessed(ctx); err != nil {
		slog.Error("Failed to reset processed profiles", "error", err)
	}
	return true
}

func (p *BatchProcessor) finish(ctx context.Context, run *models.RunResult, runErr error) {
	run.FinishedAt = p.now()
	if runErr != nil {
		run.Success = false
		run.Error = runErr.Error()
	}
	run.Stats = p.quota.GetStats(ctx)
	elapsed := run.FinishedAt.Sub(run.StartedAt)

	p.mu.Lock()
	last := *run
	p.lastRun = &last
	p.mu.Unlock()

	if runErr != nil {
		slog.Error("Run failed", "runId", run.RunID, "error", runErr, "duration", elapsed)
	} else {
		slog.Info("Run finished",
			"runId", run.RunID,
			"success", run.Success,
			"error", run.Error,
			"profiles", run.Summary.ProfilesProcessed,
			"total", run.Summary.Total,
			"saved", run.Summary.Successful,
			"duplicates", run.Summary.Duplicates,
			"failed", run.Summary.Failed,
			"reset", run.Reset,
			"duration", elapsed,
		)
	}

	if p.observer != nil {
		p.observer.ObserveRun(*run, elapsed)
	}

	// A cancelled run is still recorded and reported.
	bg := context.WithoutCancel(ctx)
	if p.recorder != nil {
		if err := p.recorder.RecordRun(bg, *run); err != nil {
			slog.Warn("Failed to record run", "runId", run.RunID, "error", err)
		} else if err := p.recorder.TrimOldRuns(bg, p.maxStoredRuns); err != nil {
			slog.Warn("Failed to trim run history", "error", err)
		}
	}
	if p.reporter != nil && (runErr != nil || run.Summary.ProfilesProcessed > 0) {
		if err := p.reporter.ReportRun(bg, *run); err != nil {
			slog.Warn("Failed to report run", "runId", run.RunID, "error", err)
		}
	}
}
