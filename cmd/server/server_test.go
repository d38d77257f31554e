package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/scheduler"
)

type mockProcessor struct {
	run      *models.RunResult
	err      error
	status   models.Status
	batches  int
	urlCalls [][]string
}

func (m *mockProcessor) RunBatch(ctx context.Context) (*models.RunResult, error) {
	m.batches++
	return m.run, m.err
}

func (m *mockProcessor) RunForURLs(ctx context.Context, urls []string) (*models.RunResult, error) {
	m.urlCalls = append(m.urlCalls, urls)
	return m.run, m.err
}

func (m *mockProcessor) Status(ctx context.Context) models.Status {
	return m.status
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, NewServer(&mockProcessor{}, nil, nil, 0), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}

func TestStatsHandler(t *testing.T) {
	p := &mockProcessor{status: models.Status{
		Running:   true,
		RateLimit: models.RateLimitStats{Date: "2025-03-14", Count: 10, Limit: 50, Remaining: 40},
		LastRun:   &models.RunResult{RunID: "r1", Success: true},
	}}
	schedule := func() scheduler.Status { return scheduler.Status{Enabled: true, Expression: "*/30 * * * *", Interval: 30} }

	rec := do(t, NewServer(p, schedule, nil, 0), http.MethodGet, "/api/scraper/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var got statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsRunning || got.RateLimit.Remaining != 40 || got.Scheduler.Expression != "*/30 * * * *" {
		t.Errorf("Unexpected stats %+v", got)
	}
	if got.LastRun == nil || got.LastRun.RunID != "r1" {
		t.Errorf("Expected last run r1, got %+v", got.LastRun)
	}
}

func TestRunNowHandler(t *testing.T) {
	tests := []struct {
		name     string
		run      *models.RunResult
		err      error
		wantCode int
	}{
		{"success", &models.RunResult{RunID: "r1", Success: true}, nil, http.StatusOK},
		{"early stop", &models.RunResult{RunID: "r2", Error: models.StopNoProfiles}, nil, http.StatusOK},
		{"already running", nil, models.ErrRunInProgress, http.StatusConflict},
		{"failure", &models.RunResult{RunID: "r3", Error: "extraction failed"}, errors.New("extraction failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProcessor{run: tt.run, err: tt.err}
			rec := do(t, NewServer(p, nil, nil, 0), http.MethodPost, "/api/scraper/run-now", "")
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			if p.batches != 1 {
				t.Errorf("Expected one run, got %d", p.batches)
			}
		})
	}
}

func TestRunNowHandler_MethodNotAllowed(t *testing.T) {
	p := &mockProcessor{}
	rec := do(t, NewServer(p, nil, nil, 0), http.MethodGet, "/api/scraper/run-now", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
	if p.batches != 0 {
		t.Error("GET must not trigger a run")
	}
}

func TestExtractPostsHandler(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		run         *models.RunResult
		err         error
		wantCode    int
		wantBatches int
		wantURLRuns int
	}{
		{name: "bad json", body: `{`, wantCode: http.StatusBadRequest},
		{name: "empty request", body: `{}`, wantCode: http.StatusBadRequest},
		{
			name:        "explicit links",
			body:        `{"profileLinks":["https://www.linkedin.com/in/jane-doe"]}`,
			run:         &models.RunResult{Success: true},
			wantCode:    http.StatusOK,
			wantURLRuns: 1,
		},
		{
			name:        "hubspot batch",
			body:        `{"useHubSpot":true}`,
			run:         &models.RunResult{Success: true},
			wantCode:    http.StatusOK,
			wantBatches: 1,
		},
		{
			name:        "invalid links",
			body:        `{"profileLinks":["https://example.com"]}`,
			err:         fmt.Errorf("%w: none", models.ErrInvalidProfileURL),
			wantCode:    http.StatusBadRequest,
			wantURLRuns: 1,
		},
		{
			name:        "daily limit",
			body:        `{"useHubSpot":true}`,
			run:         &models.RunResult{Error: models.StopDailyLimitReached},
			wantCode:    http.StatusTooManyRequests,
			wantBatches: 1,
		},
		{
			name:        "no remaining quota",
			body:        `{"profileLinks":["https://www.linkedin.com/in/jane-doe"]}`,
			run:         &models.RunResult{Error: models.StopNoRemainingQuota},
			wantCode:    http.StatusTooManyRequests,
			wantURLRuns: 1,
		},
		{
			name:        "already running",
			body:        `{"useHubSpot":true}`,
			err:         models.ErrRunInProgress,
			wantCode:    http.StatusConflict,
			wantBatches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProcessor{run: tt.run, err: tt.err}
			rec := do(t, NewServer(p, nil, nil, 0), http.MethodPost, "/api/scraper/extract-posts", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}
			if p.batches != tt.wantBatches || len(p.urlCalls) != tt.wantURLRuns {
				t.Errorf("Expected %d batch and %d URL runs, got %d and %d", tt.wantBatches, tt.wantURLRuns, p.batches, len(p.urlCalls))
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "linkedin_posts_runs_total 1")
	})
	rec := do(t, NewServer(&mockProcessor{}, nil, metrics, 0), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "runs_total") {
		t.Errorf("Unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}
