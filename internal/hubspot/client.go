// Package hubspot reads the LinkedIn profile list from HubSpot contacts and
// writes extracted posts back as deals.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/linkedin-posts-bot/internal/config"
	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
	"github.com/pauljones0/linkedin-posts-bot/internal/validator"
)

const (
	maxRetries       = 3
	defaultRetryBase = 500 * time.Millisecond
	maxErrorBody     = 512
)

var (
	ErrUnauthorized = errors.New("hubspot token invalid or expired")
	ErrListNotFound = errors.New("hubspot list not found")
)

// APIError is a non-2xx response from the HubSpot API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot status: %s, body: %s", e.Status, e.Body)
}

type Client struct {
	baseURL      string
	token        string
	listID       string
	processedKey string
	pipelineID   string
	stageID      string
	currency     string
	maxPages     int

	client      *http.Client
	rateLimiter *rate.Limiter
	validate    *validator.Validator
	retryBase   time.Duration

	stageMu sync.Mutex
	stage   *dealStage
}

// New returns a Client for the configured portal. It fails with
// models.ErrMissingCredentials when no token is configured.
func New(cfg *config.Config) (*Client, error) {
	if cfg.HubSpotToken == "" {
		return nil, fmt.Errorf("HUBSPOT_TOKEN: %w", models.ErrMissingCredentials)
	}
	rps := cfg.HubSpotRequestsPerSecond
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Client{
		baseURL:      cfg.HubSpotBaseURL,
		token:        cfg.HubSpotToken,
		listID:       cfg.HubSpotListID,
		processedKey: cfg.HubSpotProcessedProperty,
		pipelineID:   cfg.HubSpotPipelineID,
		stageID:      cfg.HubSpotDealStageID,
		currency:     cfg.HubSpotDealCurrency,
		maxPages:     cfg.HubSpotMaxPages,
		client:       &http.Client{Timeout: 30 * time.Second},
		rateLimiter:  rate.NewLimiter(limit, 1),
		validate:     validator.New(),
		retryBase:    defaultRetryBase,
	}, nil
}

// do sends one request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

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
	req.Header.Set("Content-Type", "application/json")

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
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// doWithRetry retries transient failures. 4xx responses other than 429 are
// not retried.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return util.RetryWithBackoff(ctx, maxRetries, c.retryBase, func(attempt int) error {
		err := c.do(ctx, method, path, query, body, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return util.Permanent(err)
		}
		return err
	})
}
