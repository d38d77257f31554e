// Package notifier posts run summaries to a Discord webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

const (
	colorSuccess = 3066993  // #2ECC71
	colorSkipped = 9807270  // #95A5A6
	colorFailure = 15158332 // #E74C3C

	maxRetries     = 3
	baseBackoff    = time.Second
	maxRetryAfter  = 30 * time.Second
	maxErrorLength = 1024
)

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	backoff     func(resp *http.Response, attempt int) time.Duration
}

// New returns a reporter. An empty webhook URL makes ReportRun a no-op.
func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Discord allows roughly 30 webhook messages per minute.
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		backoff:     retryBackoff,
	}
}

// ReportRun posts a summary embed for run.
func (c *Client) ReportRun(ctx context.Context, run models.RunResult) error {
	if c.webhookURL == "" {
		return nil
	}
	id, err := c.send(ctx, formatRunEmbed(run))
	if err != nil {
		return fmt.Errorf("failed to report run %s: %w", run.RunID, err)
	}
	slog.Debug("Run reported to Discord", "runId", run.RunID, "messageId", id)
	return nil
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatRunEmbed(run models.RunResult) discordEmbed {
	embed := discordEmbed{
		Title:  "LinkedIn posts run succeeded",
		Color:  colorSuccess,
		Footer: discordEmbedFooter{Text: "Run " + run.RunID},
	}
	switch {
	case run.Success:
	case run.Summary.ProfilesProcessed == 0 && run.Error != "" && isEarlyStop(run.Error):
		embed.Title = "LinkedIn posts run skipped"
		embed.Color = colorSkipped
		embed.Description = run.Error
	default:
		embed.Title = "LinkedIn posts run failed"
		embed.Color = colorFailure
		embed.Description = truncate(run.Error, maxErrorLength)
	}

	if !run.FinishedAt.IsZero() {
		embed.Timestamp = run.FinishedAt.UTC().Format(time.RFC3339)
	}

	s := run.Summary
	embed.Fields = []discordEmbedField{
		{Name: "Profiles", Value: strconv.Itoa(s.ProfilesProcessed), Inline: true},
		{Name: "Saved", Value: strconv.Itoa(s.Successful), Inline: true},
		{Name: "Duplicates", Value: strconv.Itoa(s.Duplicates), Inline: true},
		{Name: "Failed", Value: strconv.Itoa(s.Failed), Inline: true},
		{Name: "Unassociated", Value: strconv.Itoa(s.Unassociated), Inline: true},
		{Name: "Quota", Value: fmt.Sprintf("%d/%d (%d left)", run.Stats.Count, run.Stats.Limit, run.Stats.Remaining), Inline: true},
	}
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   "Duration",
			Value:  run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			Inline: true,
		})
	}
	if s.MarkFailures > 0 {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Mark failures", Value: strconv.Itoa(s.MarkFailures), Inline: true})
	}
	if run.Reset {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Cycle", Value: "All profiles processed, flags reset"})
	}
	return embed
}

func isEarlyStop(msg string) bool {
	switch msg {
	case models.StopDailyLimitReached, models.StopNoProfiles, models.StopNoRemainingQuota:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// send posts the embed with ?wait=true and returns the created message ID.
// 429 and 5xx responses are retried; other 4xx responses are not.
func (c *Client) send(ctx context.Context, embed discordEmbed) (string, error) {
	payloadBytes, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var msgResponse discordMessageResponse
			if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
				return "", err
			}
			return msgResponse.ID, nil
		}

		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		wait := c.backoff(resp, attempt)
		if wait == 0 || attempt == maxRetries {
			break
		}
		slog.Warn("Discord webhook failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the response is not retryable.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return min(time.Duration(secs*float64(time.Second)), maxRetryAfter)
		}
		return baseBackoff << attempt
	case resp.StatusCode >= 500:
		return baseBackoff << attempt
	default:
		return 0
	}
}
