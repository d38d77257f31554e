// Package reconcile attributes raw extraction items back to the profiles that
// were submitted for extraction.
package reconcile

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

// UnknownProfileName labels a group when nothing better is available.
const UnknownProfileName = "Unknown profile"

// Display name sources, best first.
const (
	nameFromProfile = iota
	nameFromAuthor
	nameFromURL
	nameFromPlaceholder
	nameUnset
)

type group struct {
	out        models.ProfilePostGroup
	nameSource int
}

// Reconciler groups raw items by resolved profile. It holds no state between
// calls.
type Reconciler struct {
	matcher *Matcher
}

// New returns a Reconciler. A nil matcher uses the default strategies.
func New(m *Matcher) *Reconciler {
	if m == nil {
		m = NewMatcher()
	}
	return &Reconciler{matcher: m}
}

// Reconcile decodes items in arrival order and groups them by the known
// profile they resolve to. Items that match nothing are grouped by their own
// profile URL and returned with a nil Profile. Items without a post URL, items
// that are not JSON objects and repeated post URLs are skipped.
func (r *Reconciler) Reconcile(profiles []models.Profile, items []json.RawMessage) []models.ProfilePostGroup {
	var order []*group
	byKey := make(map[string]*group)
	seenPosts := make(map[string]bool)

	for i, raw := range items {
		rec, err := decodeItem(raw)
		if err != nil {
			slog.Warn("Skipping malformed extraction item", "index", i, "error", err)
			continue
		}
		if rec.postURL == "" {
			slog.Warn("Skipping extraction item without post URL", "index", i, "profileUrl", rec.profileURL)
			continue
		}
		postKey := strings.ToLower(rec.postURL)
		if seenPosts[postKey] {
			slog.Debug("Skipping repeated post in batch", "postUrl", rec.postURL)
			continue
		}

		m := r.matcher.Resolve(Candidate{
			ProfileURL: rec.profileURL,
			PostURL:    rec.postURL,
			AuthorName: rec.author.Name,
		}, profiles)

		key := rec.profileURL
		if m.Profile != nil {
			key = m.Profile.CanonicalURL
		}
		if key == "" {
			slog.Warn("Dropping extraction item with no profile URL and no match",
				"index", i, "postUrl", rec.postURL, "author", rec.author.Name)
			continue
		}
		seenPosts[postKey] = true

		if m.Profile != nil && m.Confidence < LowConfidence {
			slog.Warn("Low-confidence profile match",
				"tier", m.Tier,
				"confidence", m.Confidence,
				"profileUrl", m.Profile.CanonicalURL,
				"itemProfileUrl", rec.profileURL,
				"author", rec.author.Name,
				"postUrl", rec.postURL,
			)
		}

		mapKey := strings.ToLower(strings.TrimRight(key, "/"))
		g, ok := byKey[mapKey]
		if !ok {
			g = &group{
				out: models.ProfilePostGroup{
					ProfileURL: key,
					Profile:    m.Profile,
					Tier:       m.Tier,
					Confidence: m.Confidence,
				},
				nameSource: nameUnset,
			}
			byKey[mapKey] = g
			order = append(order, g)
		} else if m.Confidence > g.out.Confidence {
			g.out.Tier, g.out.Confidence = m.Tier, m.Confidence
		}
		g.resolveName(rec.author.Name)

		author := rec.author.Name
		if author == "" && g.nameSource <= nameFromAuthor {
			author = g.out.ProfileDisplayName
		}
		g.out.Posts = append(g.out.Posts, models.Post{
			URL:           rec.postURL,
			Text:          rec.text,
			Author:        author,
			CreatedAt:     rec.createdAt,
			ReactionCount: rec.reactions,
			CommentCount:  rec.comments,
		})
	}

	out := make([]models.ProfilePostGroup, 0, len(order))
	for _, g := range order {
		out = append(out, g.out)
	}
	return out
}

// resolveName upgrades the group's display name when a better source appears.
func (g *group) resolveName(author string) {
	name, source := UnknownProfileName, nameFromPlaceholder
	switch {
	case g.out.Profile != nil && strings.TrimSpace(g.out.Profile.DisplayName) != "":
		name, source = strings.TrimSpace(g.out.Profile.DisplayName), nameFromProfile
	case author != "":
		name, source = author, nameFromAuthor
	case g.out.ProfileURL != "":
		name, source = g.out.ProfileURL, nameFromURL
	}
	if source < g.nameSource {
		g.out.ProfileDisplayName, g.nameSource = name, source
	}
}
