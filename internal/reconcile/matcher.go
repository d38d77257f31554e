package reconcile

import (
	"strings"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
)

// Slugs and names this short match too much to be trusted.
const (
	minSlugLen = 4
	minNameLen = 3
)

// LowConfidence is the threshold below which matches are logged as suspect.
const LowConfidence = 0.6

// Candidate is what a raw item offers for matching.
type Candidate struct {
	ProfileURL string
	PostURL    string
	AuthorName string
}

// Strategy is one matching tier. Match reports whether the candidate belongs
// to the given known profile.
type Strategy struct {
	Tier       models.MatchTier
	Confidence float64
	Match      func(c Candidate, p *models.Profile) bool
}

// Match is the outcome of resolving a candidate.
type Match struct {
	Profile    *models.Profile
	Tier       models.MatchTier
	Confidence float64
}

// Matcher resolves candidates against known profiles by trying each strategy
// in order. The first strategy that matches any profile wins; within a tier,
// profiles are tried in the order given.
type Matcher struct {
	strategies []Strategy
}

// NewMatcher returns a Matcher using strategies, or DefaultStrategies if none are given.
func NewMatcher(strategies ...Strategy) *Matcher {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Matcher{strategies: strategies}
}

// Resolve returns the first match, or a MatchUnassociated result with a nil Profile.
func (m *Matcher) Resolve(c Candidate, profiles []models.Profile) Match {
	for _, s := range m.strategies {
		for i := range profiles {
			if s.Match(c, &profiles[i]) {
				return Match{Profile: &profiles[i], Tier: s.Tier, Confidence: s.Confidence}
			}
		}
	}
	return Match{Tier: models.MatchUnassociated}
}

// DefaultStrategies returns exact, slug, post-author-slug and name-containment
// tiers, in that order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Tier: models.MatchExact, Confidence: 1.0, Match: exactMatch},
		{Tier: models.MatchSlug, Confidence: 0.9, Match: slugMatch},
		{Tier: models.MatchPostSlug, Confidence: 0.75, Match: postSlugMatch},
		{Tier: models.MatchName, Confidence: 0.5, Match: nameMatch},
	}
}

func exactMatch(c Candidate, p *models.Profile) bool {
	if c.ProfileURL == "" || p.CanonicalURL == "" {
		return false
	}
	return strings.EqualFold(
		strings.TrimRight(util.NormalizeURL(c.ProfileURL), "/"),
		strings.TrimRight(util.NormalizeURL(p.CanonicalURL), "/"),
	)
}

func slugMatch(c Candidate, p *models.Profile) bool {
	slug := util.LastSegment(c.ProfileURL)
	return len(slug) >= minSlugLen && slug == util.LastSegment(p.CanonicalURL)
}

// postSlugMatch handles items whose only URL is a post URL of the form
// /posts/<author-slug>_<title>-activity-<id>.
func postSlugMatch(c Candidate, p *models.Profile) bool {
	want := util.LastSegment(p.CanonicalURL)
	if len(want) < minSlugLen {
		return false
	}
	for _, u := range []string{c.ProfileURL, c.PostURL} {
		if util.PostAuthorSlug(u) == want {
			return true
		}
	}
	return false
}

func nameMatch(c Candidate, p *models.Profile) bool {
	author := strings.ToLower(strings.TrimSpace(c.AuthorName))
	known := strings.ToLower(strings.TrimSpace(p.DisplayName))
	if len(author) < minNameLen || len(known) < minNameLen {
		return false
	}
	return strings.Contains(known, author) || strings.Contains(author, known)
}
