package hubspot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
)

const (
	pageSize        = 100
	batchUpdateSize = 100
)

// Contact properties that may hold a LinkedIn URL, in priority order.
var linkedInProperties = []string{"linkedin", "hs_linkedin_url", "linkedin_profile_link"}

type propertyValue struct {
	Value string `json:"value"`
}

type listContact struct {
	VID        int64                    `json:"vid"`
	Properties map[string]propertyValue `json:"properties"`
}

type listPage struct {
	Contacts  []listContact `json:"contacts"`
	HasMore   bool          `json:"has-more"`
	VIDOffset int64         `json:"vid-offset"`
}

// FetchUnprocessedProfiles returns the list's LinkedIn profiles that are not
// yet marked processed, in list order.
func (c *Client) FetchUnprocessedProfiles(ctx context.Context) ([]models.Profile, error) {
	profiles, err := c.listProfiles(ctx)
	if err != nil {
		return nil, err
	}
	out := profiles[:0]
	for _, p := range profiles {
		if !p.Processed {
			out = append(out, p)
		}
	}
	slog.Info("Fetched unprocessed profiles from HubSpot", "total", len(profiles), "unprocessed", len(out))
	return out, nil
}

// AllProcessed reports whether every LinkedIn profile in the list is marked
// processed. An empty list is never considered exhausted.
func (c *Client) AllProcessed(ctx context.Context) (bool, error) {
	profiles, err := c.listProfiles(ctx)
	if err != nil {
		return false, err
	}
	if len(profiles) == 0 {
		return false, nil
	}
	for _, p := range profiles {
		if !p.Processed {
			return false, nil
		}
	}
	return true, nil
}

// MarkProfileProcessed flags a contact as processed. Marking twice is harmless.
func (c *Client) MarkProfileProcessed(ctx context.Context, id string) error {
	body := map[string]any{
		"properties": map[string]string{c.processedKey: "true"},
	}
	if err := c.doWithRetry(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+url.PathEscape(id), nil, body, nil); err != nil {
		return fmt.Errorf("failed to mark contact %s processed: %w", id, err)
	}
	return nil
}

// ResetAllProcessed clears the processed flag on every processed contact of
// the list. Failed chunks are skipped and reported in the returned error.
func (c *Client) ResetAllProcessed(ctx context.Context) error {
	profiles, err := c.listProfiles(ctx)
	if err != nil {
		return err
	}

	var ids []string
	for _, p := range profiles {
		if p.Processed {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		slog.Info("No processed contacts to reset")
		return nil
	}

	type input struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	}

	var errs []error
	failed := 0
	for start := 0; start < len(ids); start += batchUpdateSize {
		end := min(start+batchUpdateSize, len(ids))
		inputs := make([]input, 0, end-start)
		for _, id := range ids[start:end] {
			inputs = append(inputs, input{ID: id, Properties: map[string]string{c.processedKey: "false"}})
		}
		body := map[string]any{"inputs": inputs}
		if err := c.doWithRetry(ctx, http.MethodPost, "/crm/v3/objects/contacts/batch/update", nil, body, nil); err != nil {
			slog.Error("Failed to reset contact chunk", "from", start, "to", end, "error", err)
			errs = append(errs, err)
			failed += end - start
			continue
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to reset %d of %d contacts: %w", failed, len(ids), errors.Join(errs...))
	}
	slog.Info("Reset processed flag on contacts", "count", len(ids))
	return nil
}

// listProfiles pages through the contact list. Authentication and missing
// list errors are fatal; any other page error stops paging and returns what
// was gathered so far.
func (c *Client) listProfiles(ctx context.Context) ([]models.Profile, error) {
	props := append([]string{}, linkedInProperties...)
	props = append(props, "firstname", "lastname", "name", c.processedKey)

	var (
		profiles  []models.Profile
		offset    int64
		contacts  int
		noLinkURL int
	)
	path := "/contacts/v1/lists/" + url.PathEscape(c.listID) + "/contacts/all"

	for page := 1; page <= c.maxPages; page++ {
		q := url.Values{}
		q.Set("count", strconv.Itoa(pageSize))
		for _, p := range props {
			q.Add("property", p)
		}
		if offset != 0 {
			q.Set("vidOffset", strconv.FormatInt(offset, 10))
		}

		var resp listPage
		err := c.doWithRetry(ctx, http.MethodGet, path, q, nil, &resp)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				switch apiErr.StatusCode {
				case http.StatusUnauthorized:
					return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
				case http.StatusNotFound:
					return nil, fmt.Errorf("%w: list %s: %v", ErrListNotFound, c.listID, err)
				}
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Stopping contact list paging after error", "page", page, "error", err)
			break
		}

		contacts += len(resp.Contacts)
		for _, contact := range resp.Contacts {
			p, ok := c.toProfile(contact)
			if !ok {
				noLinkURL++
				continue
			}
			profiles = append(profiles, p)
		}

		if !resp.HasMore {
			break
		}
		offset = resp.VIDOffset
	}

	slog.Debug("Listed HubSpot contacts", "contacts", contacts, "profiles", len(profiles), "withoutLinkedIn", noLinkURL)
	if len(profiles) == 0 && contacts > 0 {
		slog.Warn("Contacts found but none has a valid LinkedIn URL", "contacts", contacts)
	}
	return profiles, nil
}

func (c *Client) toProfile(contact listContact) (models.Profile, bool) {
	var raw string
	for _, key := range linkedInProperties {
		if v := strings.TrimSpace(contact.Properties[key].Value); v != "" {
			raw = v
			break
		}
	}
	if !strings.Contains(strings.ToLower(raw), "linkedin.com") || !util.IsProfileURL(raw) {
		return models.Profile{}, false
	}

	p := models.Profile{
		ID:           strconv.FormatInt(contact.VID, 10),
		DisplayName:  displayName(contact.Properties),
		CanonicalURL: util.NormalizeURL(raw),
		Processed:    strings.EqualFold(strings.TrimSpace(contact.Properties[c.processedKey].Value), "true"),
	}
	if err := c.validate.ValidateProfile(p); err != nil {
		slog.Warn("Skipping contact with invalid profile", "id", p.ID, "url", raw, "error", err)
		return models.Profile{}, false
	}
	return p, true
}

func displayName(props map[string]propertyValue) string {
	full := strings.TrimSpace(props["firstname"].Value + " " + props["lastname"].Value)
	if full != "" {
		return full
	}
	return strings.TrimSpace(props["name"].Value)
}
