package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/processor"
	"github.com/pauljones0/linkedin-posts-bot/internal/scheduler"
)

const maxRequestBody = 1 << 20

type Server struct {
	processor  processor.Processor
	schedule   func() scheduler.Status
	metrics    http.Handler
	runTimeout time.Duration
}

// NewServer returns the HTTP surface. schedule and metrics may be nil.
func NewServer(p processor.Processor, schedule func() scheduler.Status, metrics http.Handler, runTimeout time.Duration) *Server {
	if schedule == nil {
		schedule = func() scheduler.Status { return scheduler.Status{} }
	}
	return &Server{processor: p, schedule: schedule, metrics: metrics, runTimeout: runTimeout}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("GET /api/scraper/stats", s.StatsHandler)
	mux.HandleFunc("POST /api/scraper/run-now", s.RunNowHandler)
	mux.HandleFunc("POST /api/scraper/extract-posts", s.ExtractPostsHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

type statsResponse struct {
	Success   bool                  `json:"success"`
	IsRunning bool                  `json:"isRunning"`
	RateLimit models.RateLimitStats `json:"rateLimit"`
	Scheduler scheduler.Status      `json:"scheduler"`
	LastRun   *models.RunResult     `json:"lastRun,omitempty"`
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	st := s.processor.Status(r.Context())
	writeJSON(w, http.StatusOK, statsResponse{
		Success:   true,
		IsRunning: st.Running,
		RateLimit: st.RateLimit,
		Scheduler: s.schedule(),
		LastRun:   st.LastRun,
	})
}

// RunNowHandler runs one batch synchronously and returns its result.
func (s *Server) RunNowHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.runContext(r)
	defer cancel()

	run, err := s.processor.RunBatch(ctx)
	switch {
	case errors.Is(err, models.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("Manual run failed", "error", err)
		writeRunError(w, run, err)
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

type extractRequest struct {
	ProfileLinks []string `json:"profileLinks"`
	UseHubSpot   bool     `json:"useHubSpot"`
}

// ExtractPostsHandler runs the pipeline on explicit profile links, or on the
// next HubSpot batch when useHubSpot is set.
func (s *Server) ExtractPostsHandler(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.UseHubSpot && len(req.ProfileLinks) == 0 {
		writeError(w, http.StatusBadRequest, "provide profileLinks or set useHubSpot")
		return
	}

	ctx, cancel := s.runContext(r)
	defer cancel()

	var (
		run *models.RunResult
		err error
	)
	if req.UseHubSpot {
		run, err = s.processor.RunBatch(ctx)
	} else {
		run, err = s.processor.RunForURLs(ctx, req.ProfileLinks)
	}

	switch {
	case errors.Is(err, models.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidProfileURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		slog.Error("Extraction request failed", "error", err)
		writeRunError(w, run, err)
	case run == nil:
		writeError(w, http.StatusInternalServerError, "run produced no result")
	case run.Error == models.StopDailyLimitReached, run.Error == models.StopNoRemainingQuota:
		writeJSON(w, http.StatusTooManyRequests, run)
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// runContext detaches the run from the client connection and bounds it by
// the run timeout.
func (s *Server) runContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.Context())
	if s.runTimeout > 0 {
		return context.WithTimeout(ctx, s.runTimeout)
	}
	return context.WithCancel(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeRunError(w http.ResponseWriter, run *models.RunResult, err error) {
	if run == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusInternalServerError, run)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
