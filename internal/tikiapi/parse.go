package tikiapi

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vielabs/tiki-review-crawler/internal/review"
)

// The upstream payload shape is loosely specified and has drifted over
// time, so parsing works over generic JSON with ordered field
// fallbacks rather than a fixed struct.

// parseReviews extracts review records from a decoded reviews payload.
// Malformed items are skipped, never fatal.
func parseReviews(data map[string]any) []review.ReviewRecord {
	raw := data["data"]
	if raw == nil {
		raw = data["reviews"]
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items = flattenKeyed(v)
	}

	out := make([]review.ReviewRecord, 0, len(items))
	for _, it := range items {
		e, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, review.ReviewRecord{
			Reviewer:   strings.TrimSpace(reviewerOf(e)),
			ReviewDate: dateOf(e),
			Rating:     ratingOf(e),
			Body:       strings.TrimSpace(firstString(e, "content", "title", "comment")),
			ImageURLs:  mediaURLs(pickMedia(e, "images", "attachments"), "full_path", "url", "origin"),
			VideoURLs:  mediaURLs(pickMedia(e, "videos"), "url", "source"),
		})
	}
	return out
}

// PageMeta carries the pagination facts of one reviews page. Zero
// values mean the upstream reported nothing.
type PageMeta struct {
	CurrentPage int
	TotalPages  int
	TotalItems  int
}

// LastPage reports whether the upstream says no further pages exist.
// Unknown pagination never claims the last page.
func (m PageMeta) LastPage() bool {
	return m.TotalPages > 0 && m.CurrentPage > 0 && m.CurrentPage >= m.TotalPages
}

func parsePageMeta(data map[string]any, requestedPage int) PageMeta {
	m := PageMeta{
		CurrentPage: firstInt(data, "current_page", "page"),
		TotalPages:  firstInt(data, "last_page", "total_pages"),
		TotalItems:  firstInt(data, "total"),
	}
	if m.CurrentPage == 0 {
		m.CurrentPage = requestedPage
	}
	return m
}

func reviewerOf(e map[string]any) string {
	if by, ok := e["created_by"].(map[string]any); ok {
		if name := asString(by["name"]); name != "" {
			return name
		}
	}
	return firstString(e, "created_by_name")
}

// dateOf keeps the review date verbatim; numeric epochs are rendered
// as their integer form.
func dateOf(e map[string]any) string {
	for _, key := range []string{"created_at", "time"} {
		switch v := e[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatInt(int64(v), 10)
			}
		}
	}
	return ""
}

// ratingOf coerces the reported rating to an int, returning zero when
// the payload carries nothing usable.
func ratingOf(e map[string]any) int {
	for _, key := range []string{"rating", "stars", "score"} {
		switch v := e[key].(type) {
		case float64:
			if v == float64(int(v)) && v != 0 {
				return int(v)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n != 0 {
				return n
			}
		}
	}
	return 0
}

// pickMedia returns the first non-empty media collection, flattening
// keyed maps to their values.
func pickMedia(e map[string]any, keys ...string) []any {
	for _, key := range keys {
		switch v := e[key].(type) {
		case []any:
			if len(v) > 0 {
				return v
			}
		case map[string]any:
			if len(v) > 0 {
				return flattenKeyed(v)
			}
		}
	}
	return nil
}

// flattenKeyed turns a keyed collection into a slice in key order, so
// repeated parses of the same payload yield the same sequence.
func flattenKeyed(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flat := make([]any, 0, len(m))
	for _, k := range keys {
		flat = append(flat, m[k])
	}
	return flat
}

// mediaURLs extracts URL strings from a media collection whose entries
// may be plain strings or objects carrying the URL under varying keys.
func mediaURLs(items []any, objectKeys ...string) []string {
	var urls []string
	for _, it := range items {
		switch v := it.(type) {
		case string:
			if v != "" {
				urls = append(urls, v)
			}
		case map[string]any:
			for _, key := range objectKeys {
				if u := asString(v[key]); u != "" {
					urls = append(urls, u)
					break
				}
			}
		}
	}
	return urls
}

func firstString(e map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(e[key]); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(e map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := e[key].(type) {
		case float64:
			if v != 0 {
				return int(v)
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil && n != 0 {
				return n
			}
		}
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
