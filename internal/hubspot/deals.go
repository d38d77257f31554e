package hubspot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
)

const (
	maxDescriptionContent = 1000
	notAvailable          = "Not available"
)

var numericID = regexp.MustCompile(`^\d+$`)

type dealStage struct {
	pipelineID string
	stageID    string
}

type pipelinesResponse struct {
	Results []struct {
		ID     string `json:"id"`
		Label  string `json:"label"`
		Stages []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"stages"`
	} `json:"results"`
}

type searchResponse struct {
	Results []struct {
		ID         string `json:"id"`
		Properties struct {
			Description string `json:"description"`
		} `json:"properties"`
	} `json:"results"`
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateSinkRecord creates a deal for post unless one already references the
// post URL, in which case the returned record has Duplicate set and no ID.
func (c *Client) CreateSinkRecord(ctx context.Context, post models.Post, profileURL, displayName string) (*models.SinkRecord, error) {
	if post.URL == "" {
		return nil, fmt.Errorf("post has no URL")
	}

	dup, err := c.isDuplicate(ctx, post.URL)
	if err != nil {
		slog.Debug("Duplicate search failed, continuing", "postUrl", post.URL, "error", err)
	}
	if dup {
		slog.Info("Skipping duplicate post", "postUrl", post.URL)
		return &models.SinkRecord{Duplicate: true}, nil
	}

	author := strings.TrimSpace(displayName)
	if author == "" {
		author = strings.TrimSpace(post.Author)
	}
	if author == "" {
		author = notAvailable
	}

	record := models.SinkRecord{
		Name:        author + " - LinkedIn Post",
		Description: DealDescription(author, profileURL, post),
	}
	props := map[string]string{
		"dealname":           record.Name,
		"description":        record.Description,
		"amount":             "0",
		"deal_currency_code": c.currency,
	}
	stage := c.resolveStage(ctx)
	if stage.pipelineID != "" {
		props["pipeline"] = stage.pipelineID
	}
	if stage.stageID != "" {
		props["dealstage"] = stage.stageID
	}

	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals", nil, map[string]any{"properties": props}, &resp); err != nil {
		return nil, fmt.Errorf("failed to create deal for %s: %w", post.URL, err)
	}
	record.ID = resp.ID
	slog.Info("Deal created", "id", resp.ID, "postUrl", post.URL)
	return &record, nil
}

// DealDescription renders the semi-structured deal description. The post URL
// line doubles as the duplicate search key.
func DealDescription(author, profileURL string, post models.Post) string {
	if profileURL == "" {
		profileURL = notAvailable
	}
	var b strings.Builder
	b.WriteString("LinkedIn post\n\n")
	fmt.Fprintf(&b, "Author/Profile: %s\n", author)
	fmt.Fprintf(&b, "Profile URL: %s\n", profileURL)
	fmt.Fprintf(&b, "Post URL: %s\n\n", post.URL)
	if post.Text != "" {
		fmt.Fprintf(&b, "Content:\n%s\n\n", util.Truncate(post.Text, maxDescriptionContent))
	}
	if post.CreatedAt != "" {
		fmt.Fprintf(&b, "Post date: %s\n", post.CreatedAt)
	}
	return b.String()
}

func (c *Client) isDuplicate(ctx context.Context, postURL string) (bool, error) {
	body := map[string]any{
		"filterGroups": []any{
			map[string]any{
				"filters": []any{
					map[string]string{
						"propertyName": "description",
						"operator":     "CONTAINS_TOKEN",
						"value":        postURL,
					},
				},
			},
		},
		"limit":      10,
		"properties": []string{"dealname", "description"},
	}

	var resp searchResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/crm/v3/objects/deals/search", nil, body, &resp); err != nil {
		return false, err
	}
	for _, deal := range resp.Results {
		if strings.Contains(deal.Properties.Description, postURL) {
			slog.Debug("Duplicate deal found", "dealId", deal.ID, "postUrl", postURL)
			return true, nil
		}
	}
	return false, nil
}

// resolveStage picks the deal pipeline and stage. A configured numeric stage
// is used as is; otherwise the first stage of the configured (or first)
// pipeline is looked up once and cached.
func (c *Client) resolveStage(ctx context.Context) dealStage {
	if numericID.MatchString(c.stageID) {
		return dealStage{pipelineID: c.pipelineID, stageID: c.stageID}
	}

	c.stageMu.Lock()
	defer c.stageMu.Unlock()
	if c.stage != nil {
		return *c.stage
	}

	var resp pipelinesResponse
	err := c.doWithRetry(ctx, http.MethodGet, "/crm/v3/pipelines/deals", nil, nil, &resp)
	if err != nil || len(resp.Results) == 0 {
		slog.Warn("Could not resolve deal pipeline, creating deal without stage", "error", err)
		if numericID.MatchString(c.pipelineID) {
			return dealStage{pipelineID: c.pipelineID}
		}
		return dealStage{}
	}

	target := resp.Results[0]
	for _, p := range resp.Results {
		if c.pipelineID != "" && p.ID == c.pipelineID {
			target = p
			break
		}
	}
	stage := dealStage{pipelineID: target.ID}
	if len(target.Stages) > 0 {
		stage.stageID = target.Stages[0].ID
	}
	slog.Debug("Using deal pipeline", "pipeline", target.ID, "label", target.Label, "stage", stage.stageID)
	c.stage = &stage
	return stage
}
