// Package apify runs the LinkedIn posts scraping actor and collects its
// dataset items.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/linkedin-posts-bot/internal/config"
	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
)

const (
	StatusSucceeded = "SUCCEEDED"

	waitForFinishSecs   = 60
	maxRetries          = 3
	defaultRetryBase    = time.Second
	defaultPollInterval = 5 * time.Second
	maxErrorBody        = 512
)

var ErrEmptyBatch = errors.New("no URLs to extract")

// RunError reports an actor run that ended in a status other than SUCCEEDED.
type RunError struct {
	RunID  string
	Status string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("actor run %s finished with status %s", e.RunID, e.Status)
}

// APIError is a non-2xx response from the Apify API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify status: %s, body: %s", e.Status, e.Body)
}

type actorInput struct {
	TargetURLs        []string `json:"targetUrls"`
	MaxPosts          int      `json:"maxPosts"`
	IncludeQuotePosts bool     `json:"includeQuotePosts"`
	IncludeReposts    bool     `json:"includeReposts"`
	ScrapeReactions   bool     `json:"scrapeReactions"`
	MaxReactions      int      `json:"maxReactions"`
	ScrapeComments    bool     `json:"scrapeComments"`
	MaxComments       int      `json:"maxComments"`
}

type runInfo struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type runEnvelope struct {
	Data runInfo `json:"data"`
}

type Client struct {
	baseURL    string
	token      string
	actorID    string
	batchSize  int
	batchDelay time.Duration
	input      config.ActorInput

	client       *http.Client
	retryBase    time.Duration
	pollInterval time.Duration
}

// New returns a Client. It fails with models.ErrMissingCredentials when no
// token is configured.
func New(cfg *config.Config) (*Client, error) {
	if cfg.ApifyToken == "" {
		return nil, fmt.Errorf("APIFY_API_TOKEN: %w", models.ErrMissingCredentials)
	}
	batchSize := cfg.ApifyBatchSize
	if batchSize < 1 {
		batchSize = 10
	}
	return &Client{
		baseURL:      cfg.ApifyBaseURL,
		token:        cfg.ApifyToken,
		actorID:      cfg.ApifyActorID,
		batchSize:    batchSize,
		batchDelay:   cfg.ApifyBatchDelay,
		input:        cfg.Actor,
		client:       &http.Client{Timeout: (waitForFinishSecs + 30) * time.Second},
		retryBase:    defaultRetryBase,
		pollInterval: defaultPollInterval,
	}, nil
}

// SubmitExtractionBatch runs the actor over urls in chunks of the configured
// batch size and returns every dataset item. Any failed chunk fails the
// whole extraction.
func (c *Client) SubmitExtractionBatch(ctx context.Context, urls []string) (*models.ExtractionBatchResult, error) {
	if len(urls) == 0 {
		return nil, ErrEmptyBatch
	}

	batches := (len(urls) + c.batchSize - 1) / c.batchSize
	slog.Info("Starting extraction", "actor", c.actorID, "urls", len(urls), "batches", batches, "batchSize", c.batchSize)

	result := &models.ExtractionBatchResult{}
	for start := 0; start < len(urls); start += c.batchSize {
		end := min(start+c.batchSize, len(urls))
		n := result.BatchesProcessed + 1

		if start > 0 && c.batchDelay > 0 {
			slog.Debug("Waiting before next batch", "delay", c.batchDelay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.batchDelay):
			}
		}

		slog.Info("Running actor batch", "batch", n, "of", batches, "urls", end-start)
		items, err := c.runBatch(ctx, urls[start:end])
		if err != nil {
			return nil, fmt.Errorf("extraction batch %d/%d failed: %w", n, batches, err)
		}
		slog.Info("Actor batch finished", "batch", n, "items", len(items))

		result.RawItems = append(result.RawItems, items...)
		result.TotalItems += len(items)
		result.BatchesProcessed = n
	}

	slog.Info("Extraction complete", "batches", result.BatchesProcessed, "items", result.TotalItems)
	return result, nil
}

func (c *Client) runBatch(ctx context.Context, urls []string) ([]json.RawMessage, error) {
	in := actorInput{
		TargetURLs:        urls,
		MaxPosts:          c.input.MaxPosts,
		IncludeQuotePosts: c.input.IncludeQuotePosts,
		IncludeReposts:    c.input.IncludeReposts,
		ScrapeReactions:   c.input.ScrapeReactions,
		MaxReactions:      c.input.MaxReactions,
		ScrapeComments:    c.input.ScrapeComments,
		MaxComments:       c.input.MaxComments,
	}

	wait := url.Values{"waitForFinish": {strconv.Itoa(waitForFinishSecs)}}
	actorPath := "/v2/acts/" + url.PathEscape(strings.ReplaceAll(c.actorID, "/", "~")) + "/runs"

	// Starting a run is billed, so it is never retried.
	var env runEnvelope
	if err := c.do(ctx, http.MethodPost, actorPath, wait, in, &env); err != nil {
		return nil, fmt.Errorf("failed to start actor: %w", err)
	}
	run := env.Data
	slog.Info("Actor run started", "runId", run.ID, "status", run.Status)

	for !isTerminal(run.Status) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		var polled runEnvelope
		if err := c.get(ctx, "/v2/actor-runs/"+url.PathEscape(run.ID), wait, &polled); err != nil {
			return nil, fmt.Errorf("failed to poll run %s: %w", run.ID, err)
		}
		run = polled.Data
		slog.Debug("Actor run status", "runId", run.ID, "status", run.Status)
	}

	if run.Status != StatusSucceeded {
		return nil, &RunError{RunID: run.ID, Status: run.Status}
	}

	var items []json.RawMessage
	q := url.Values{"clean": {"true"}, "format": {"json"}}
	if err := c.get(ctx, "/v2/datasets/"+url.PathEscape(run.DefaultDatasetID)+"/items", q, &items); err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", run.DefaultDatasetID, err)
	}
	return items, nil
}

func isTerminal(status string) bool {
	switch status {
	case StatusSucceeded, "FAILED", "ABORTED", "TIMED-OUT":
		return true
	}
	return false
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return util.RetryWithBackoff(ctx, maxRetries, c.retryBase, func(attempt int) error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return util.Permanent(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
