package apify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pauljones0/linkedin-posts-bot/internal/config"
	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

func newTestClient(t *testing.T, batchSize int, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(&config.Config{
		ApifyToken:     "apify-test",
		ApifyBaseURL:   server.URL,
		ApifyActorID:   "someone/linkedin-posts",
		ApifyBatchSize: batchSize,
		Actor:          config.ActorInput{MaxPosts: 5, IncludeQuotePosts: true, MaxReactions: 5, MaxComments: 5},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	c.retryBase = time.Millisecond
	c.pollInterval = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeActor serves the actor API. Runs report RUNNING once before their final status.
type fakeActor struct {
	t           *testing.T
	mu          sync.Mutex
	inputs      [][]string
	polls       map[string]int
	finalStatus string
}

func (f *fakeActor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer apify-test" {
		f.t.Errorf("Authorization = %q", got)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/acts/someone~linkedin-posts/runs":
		if r.URL.Query().Get("waitForFinish") != "60" {
			f.t.Errorf("Expected waitForFinish=60")
		}
		var in actorInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			f.t.Errorf("decode input: %v", err)
			return
		}
		if in.MaxPosts != 5 || !in.IncludeQuotePosts || in.IncludeReposts {
			f.t.Errorf("Unexpected actor input %+v", in)
		}
		f.inputs = append(f.inputs, in.TargetURLs)
		id := fmt.Sprintf("run-%d", len(f.inputs))
		writeJSON(w, runEnvelope{Data: runInfo{ID: id, Status: "RUNNING", DefaultDatasetID: "ds-" + id}})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/actor-runs/"):
		id := strings.TrimPrefix(r.URL.Path, "/v2/actor-runs/")
		f.polls[id]++
		status := "RUNNING"
		if f.polls[id] > 1 {
			status = f.finalStatus
		}
		writeJSON(w, runEnvelope{Data: runInfo{ID: id, Status: status, DefaultDatasetID: "ds-" + id}})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/datasets/"):
		if r.URL.Query().Get("clean") != "true" {
			f.t.Errorf("Expected clean=true")
		}
		ds := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/datasets/"), "/items")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"url":"https://www.linkedin.com/posts/a_%s-activity-1"},{"url":"https://www.linkedin.com/posts/b_%s-activity-2"}]`, ds, ds)

	default:
		f.t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://www.linkedin.com/in/person-%d", i)
	}
	return out
}

func TestNew_MissingToken(t *testing.T) {
	if _, err := New(&config.Config{}); !errors.Is(err, models.ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
}

func TestSubmitExtractionBatch_Chunks(t *testing.T) {
	actor := &fakeActor{t: t, polls: map[string]int{}, finalStatus: StatusSucceeded}
	c := newTestClient(t, 10, actor.ServeHTTP)

	res, err := c.SubmitExtractionBatch(context.Background(), urls(23))
	if err != nil {
		t.Fatalf("SubmitExtractionBatch() error: %v", err)
	}

	if res.BatchesProcessed != 3 {
		t.Errorf("Expected 3 batches, got %d", res.BatchesProcessed)
	}
	if res.TotalItems != 6 || len(res.RawItems) != 6 {
		t.Errorf("Expected 6 items, got %d/%d", res.TotalItems, len(res.RawItems))
	}
	wantSizes := []int{10, 10, 3}
	if len(actor.inputs) != len(wantSizes) {
		t.Fatalf("Expected %d actor runs, got %d", len(wantSizes), len(actor.inputs))
	}
	for i, want := range wantSizes {
		if len(actor.inputs[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(actor.inputs[i]), want)
		}
	}
	if actor.inputs[2][0] != "https://www.linkedin.com/in/person-20" {
		t.Errorf("Expected URLs in order, batch 3 starts with %s", actor.inputs[2][0])
	}
	if !strings.Contains(string(res.RawItems[0]), "ds-run-1") {
		t.Errorf("Expected items in batch order, first item %s", res.RawItems[0])
	}
}

func TestSubmitExtractionBatch_FailedRun(t *testing.T) {
	actor := &fakeActor{t: t, polls: map[string]int{}, finalStatus: "FAILED"}
	c := newTestClient(t, 10, actor.ServeHTTP)

	_, err := c.SubmitExtractionBatch(context.Background(), urls(3))
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("Expected RunError, got %v", err)
	}
	if runErr.Status != "FAILED" || runErr.RunID != "run-1" {
		t.Errorf("Unexpected run error %+v", runErr)
	}
}

func TestSubmitExtractionBatch_StartFailsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, 10, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.SubmitExtractionBatch(context.Background(), urls(2))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("Expected 502 APIError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single start attempt, got %d", calls)
	}
}

func TestSubmitExtractionBatch_Empty(t *testing.T) {
	c := newTestClient(t, 10, func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request expected")
	})

	if _, err := c.SubmitExtractionBatch(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
}

func TestSubmitExtractionBatch_DelayHonoursContext(t *testing.T) {
	actor := &fakeActor{t: t, polls: map[string]int{}, finalStatus: StatusSucceeded}
	c := newTestClient(t, 1, actor.ServeHTTP)
	c.batchDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := c.SubmitExtractionBatch(ctx, urls(2))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded during batch delay, got %v", err)
	}
	if len(actor.inputs) != 1 {
		t.Errorf("Expected only the first batch to run, got %d", len(actor.inputs))
	}
}
