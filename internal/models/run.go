package models

import (
	"errors"
	"time"
)

var (
	ErrRunInProgress      = errors.New("a run is already in progress")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidProfileURL  = errors.New("invalid profile url")
)

// Early-stop reasons recorded in RunResult.Error.
const (
	StopDailyLimitReached = "Daily limit reached"
	StopNoProfiles        = "No profiles found"
	StopNoRemainingQuota  = "No remaining profiles for today"
)

// PostOutcome classifies a single sink write.
type PostOutcome string

const (
	OutcomeSaved     PostOutcome = "saved"
	OutcomeDuplicate PostOutcome = "duplicate"
	OutcomeFailed    PostOutcome = "failed"
)

// PostResult records what happened to one post.
type PostResult struct {
	ProfileURL  string      `json:"profileUrl"`
	ProfileName string      `json:"profileName"`
	PostURL     string      `json:"postUrl"`
	Outcome     PostOutcome `json:"outcome"`
	Success     bool        `json:"success"`
	Duplicate   bool        `json:"duplicate"`
	DealID      string      `json:"hubspotDealId,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Summary aggregates post outcomes for one run.
type Summary struct {
	Total             int `json:"total"`
	Successful        int `json:"successful"`
	Failed            int `json:"failed"`
	Duplicates        int `json:"duplicates"`
	ProfilesProcessed int `json:"profilesProcessed"`
	Unassociated      int `json:"unassociatedGroups"`
	MarkFailures      int `json:"markFailures"`
}

// Add counts one post result.
func (s *Summary) Add(r PostResult) {
	s.Total++
	switch r.Outcome {
	case OutcomeSaved:
		s.Successful++
	case OutcomeDuplicate:
		s.Duplicates++
	default:
		s.Failed++
	}
}

// RunResult is returned by every run, including graceful early stops.
type RunResult struct {
	RunID      string         `json:"runId" firestore:"runId"`
	Success    bool           `json:"success" firestore:"success"`
	Error      string         `json:"error,omitempty" firestore:"error,omitempty"`
	Results    []PostResult   `json:"results,omitempty" firestore:"-"`
	Summary    Summary        `json:"summary" firestore:"summary"`
	Stats      RateLimitStats `json:"stats" firestore:"stats"`
	Reset      bool           `json:"reset" firestore:"reset"`
	StartedAt  time.Time      `json:"startedAt" firestore:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt" firestore:"finishedAt"`
}

// Status is the orchestrator's externally visible state.
type Status struct {
	Running   bool           `json:"isRunning"`
	LastRun   *RunResult     `json:"lastRun,omitempty"`
	RateLimit RateLimitStats `json:"rateLimit"`
}
