package models

// Profile is a CRM contact or organization page eligible for scraping.
type Profile struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName,omitempty"`
	CanonicalURL string `json:"canonicalUrl" validate:"required,url,linkedin_profile"`
	Processed    bool   `json:"processed"`
}

// Post is one extracted unit of content. URL is the downstream dedup key.
type Post struct {
	URL           string `json:"url" validate:"required,url"`
	Text          string `json:"text,omitempty"`
	Author        string `json:"author,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	ReactionCount int    `json:"reactionCount" validate:"gte=0"`
	CommentCount  int    `json:"commentCount" validate:"gte=0"`
}

// MatchTier names the matching rule that attributed a group to a profile.
type MatchTier string

const (
	MatchExact        MatchTier = "exact"
	MatchSlug         MatchTier = "slug"
	MatchPostSlug     MatchTier = "post_slug"
	MatchName         MatchTier = "name"
	MatchUnassociated MatchTier = "unassociated"
)

// ProfilePostGroup holds the posts attributed to one profile, in arrival order.
// Profile is nil for unassociated groups.
type ProfilePostGroup struct {
	ProfileURL         string    `json:"profileUrl"`
	ProfileDisplayName string    `json:"profileDisplayName"`
	Profile            *Profile  `json:"-"`
	Tier               MatchTier `json:"matchTier"`
	Confidence         float64   `json:"confidence"`
	Posts              []Post    `json:"posts"`
}

// Associated reports whether the group resolved to a known profile.
func (g *ProfilePostGroup) Associated() bool {
	return g.Profile != nil
}
