package util

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// profileSections lists the first path segments that identify a profile or organization page.
var profileSections = map[string]bool{
	"in":       true,
	"company":  true,
	"school":   true,
	"showcase": true,
}

// NormalizeURL trims whitespace, adds https:// when no scheme is present and
// drops everything from the first '?' or '#'. Case is preserved.
func NormalizeURL(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "https://" + strings.TrimPrefix(u, "//")
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

// IsProfileURL reports whether rawURL points at a LinkedIn profile or organization page.
func IsProfileURL(rawURL string) bool {
	parsed, err := url.Parse(NormalizeURL(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(parsed.Hostname()))
	if err != nil || domain != "linkedin.com" {
		return false
	}
	segments := pathSegments(parsed.Path)
	return len(segments) >= 2 && profileSections[strings.ToLower(segments[0])]
}

// LastSegment returns the final path segment of rawURL, lowercased, ignoring a trailing slash.
func LastSegment(rawURL string) string {
	segments := pathSegments(urlPath(rawURL))
	if len(segments) == 0 {
		return ""
	}
	return strings.ToLower(segments[len(segments)-1])
}

// PostAuthorSlug extracts the author slug from a post URL such as
// https://www.linkedin.com/posts/jane-doe_some-title-activity-123. It returns
// "" for URLs that are not post URLs.
func PostAuthorSlug(rawURL string) string {
	segments := pathSegments(urlPath(rawURL))
	for i, seg := range segments {
		if strings.EqualFold(seg, "posts") && i+1 < len(segments) {
			slug, _, found := strings.Cut(segments[i+1], "_")
			if !found {
				return ""
			}
			return strings.ToLower(slug)
		}
	}
	return ""
}

func urlPath(rawURL string) string {
	parsed, err := url.Parse(NormalizeURL(rawURL))
	if err != nil {
		return ""
	}
	return parsed.Path
}

func pathSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
