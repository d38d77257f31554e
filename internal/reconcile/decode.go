package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/linkedin-posts-bot/internal/util"
)

var errNotObject = errors.New("item is not a JSON object")

// Field candidates, checked in order. The scraping actor has changed its
// output shape several times, so every field has fallbacks.
var (
	profileURLKeys = []string{"profileUrl", "authorProfileUrl", "authorUrl", "inputUrl", "url", "linkedinUrl"}
	postURLKeys    = []string{"url", "postUrl", "linkedinUrl", "postLink"}
	authorKeys     = []string{"author", "authorName", "authorFullName"}
	textKeys       = []string{"text", "content", "description"}
	createdAtKeys  = []string{"createdAt", "date", "publishedAt", "postedAt"}
	reactionKeys   = []string{"reactions", "likes", "numLikes", "reactionCount"}
	commentKeys    = []string{"comments", "numComments", "commentCount"}

	nameKeys = []string{"name", "fullName", "authorName", "text"}
)

// Text is a string-ish JSON value. Strings are trimmed, numbers and booleans
// are rendered verbatim and objects yield their first name-like field.
// Arrays and null decode as invalid. Decoding never fails.
type Text struct {
	Value string
	Valid bool
}

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if json.Unmarshal(data, &s) == nil {
			t.set(s)
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) != nil {
			return nil
		}
		for _, k := range nameKeys {
			var inner Text
			if raw, ok := obj[k]; ok {
				_ = inner.UnmarshalJSON(raw)
				if inner.Valid {
					*t = inner
					return nil
				}
			}
		}
		var first, last Text
		_ = first.UnmarshalJSON(obj["firstName"])
		_ = last.UnmarshalJSON(obj["lastName"])
		t.set(first.Value + " " + last.Value)
	case '[', 'n':
	default:
		t.set(string(data))
	}
	return nil
}

func (t *Text) set(s string) {
	s = strings.TrimSpace(s)
	t.Value, t.Valid = s, s != ""
}

// Author is the author field of an item: a bare name or a nested object
// carrying a name and a profile URL.
type Author struct {
	Name string
	URL  string
}

func (a *Author) UnmarshalJSON(data []byte) error {
	*a = Author{}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) == nil {
			for _, k := range []string{"url", "profileUrl", "linkedinUrl"} {
				var u Text
				_ = u.UnmarshalJSON(obj[k])
				if u.Valid {
					a.URL = u.Value
					break
				}
			}
		}
	}
	var name Text
	_ = name.UnmarshalJSON(data)
	a.Name = name.Value
	return nil
}

// Timestamp keeps string dates as they are and renders epoch seconds or
// milliseconds as RFC 3339 in UTC.
type Timestamp struct {
	Value string
	Valid bool
}

// Epoch values above this are taken to be milliseconds.
const millisThreshold = 1e11

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var t Text
		_ = t.UnmarshalJSON(data)
		ts.Value, ts.Valid = t.Value, t.Valid
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) != nil {
			return nil
		}
		for _, k := range []string{"date", "timestamp"} {
			var inner Timestamp
			if raw, ok := obj[k]; ok {
				_ = inner.UnmarshalJSON(raw)
				if inner.Valid {
					*ts = inner
					return nil
				}
			}
		}
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil || f <= 0 {
			return nil
		}
		var t time.Time
		if f > millisThreshold {
			t = time.UnixMilli(int64(f))
		} else {
			t = time.Unix(int64(f), 0)
		}
		ts.Value, ts.Valid = t.UTC().Format(time.RFC3339), true
	}
	return nil
}

// Count is an engagement count. It accepts a number, a formatted string such
// as "1,234" or "1.2K", an array (its length) or an object with a count or
// total field. Negative or implausibly large numbers decode as invalid.
type Count struct {
	N     int
	Valid bool
}

func (c *Count) UnmarshalJSON(data []byte) error {
	*c = Count{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if json.Unmarshal(data, &s) == nil {
			c.N, c.Valid = util.ParseCount(s)
		}
	case '[':
		var arr []json.RawMessage
		if json.Unmarshal(data, &arr) == nil {
			c.N, c.Valid = len(arr), true
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) != nil {
			return nil
		}
		for _, k := range []string{"count", "total", "total_reactions"} {
			var inner Count
			if raw, ok := obj[k]; ok {
				_ = inner.UnmarshalJSON(raw)
				if inner.Valid {
					*c = inner
					return nil
				}
			}
		}
	case 'n', 't', 'f':
	default:
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			c.N, c.Valid = util.CountFromFloat(f)
		}
	}
	return nil
}

// record is one raw item after decoding at the ingestion boundary.
type record struct {
	profileURL string
	postURL    string
	author     Author
	text       string
	createdAt  string
	reactions  int
	comments   int
}

type rawItem map[string]json.RawMessage

func decodeItem(raw json.RawMessage) (record, error) {
	var item rawItem
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return record{}, errNotObject
	}
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return record{}, err
	}

	var rec record
	for _, k := range authorKeys {
		var a Author
		if v, ok := item[k]; ok {
			_ = a.UnmarshalJSON(v)
			if a.Name != "" || a.URL != "" {
				rec.author = a
				break
			}
		}
	}

	rec.profileURL = item.profileURL(rec.author.URL)
	rec.postURL = util.NormalizeURL(item.text(postURLKeys...))
	rec.text = util.HTMLToText(item.text(textKeys...))

	for _, k := range createdAtKeys {
		var ts Timestamp
		if v, ok := item[k]; ok {
			_ = ts.UnmarshalJSON(v)
			if ts.Valid {
				rec.createdAt = ts.Value
				break
			}
		}
	}

	rec.reactions = item.count(reactionKeys...)
	rec.comments = item.count(commentKeys...)
	if stats, ok := item["stats"]; ok {
		var nested rawItem
		if json.Unmarshal(stats, &nested) == nil {
			if rec.reactions == 0 {
				rec.reactions = nested.count("total_reactions", "reactions", "likes")
			}
			if rec.comments == 0 {
				rec.comments = nested.count("comments")
			}
		}
	}
	return rec, nil
}

// profileURL picks the first candidate that looks like a profile page,
// falling back to the first candidate present at all.
func (it rawItem) profileURL(authorURL string) string {
	var candidates []string
	for _, k := range profileURLKeys {
		var t Text
		_ = t.UnmarshalJSON(it[k])
		if t.Valid {
			candidates = append(candidates, t.Value)
		}
		if k == "authorUrl" && authorURL != "" {
			candidates = append(candidates, authorURL)
		}
	}
	for _, c := range candidates {
		if util.IsProfileURL(c) {
			return util.NormalizeURL(c)
		}
	}
	if len(candidates) > 0 {
		return util.NormalizeURL(candidates[0])
	}
	return ""
}

func (it rawItem) text(keys ...string) string {
	for _, k := range keys {
		var t Text
		if v, ok := it[k]; ok {
			_ = t.UnmarshalJSON(v)
			if t.Valid {
				return t.Value
			}
		}
	}
	return ""
}

func (it rawItem) count(keys ...string) int {
	for _, k := range keys {
		var c Count
		if v, ok := it[k]; ok {
			_ = c.UnmarshalJSON(v)
			if c.Valid {
				return c.N
			}
		}
	}
	return 0
}
