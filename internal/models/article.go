package models

import "time"

// CategoryAll selects every configured category, flattened in declaration order.
const CategoryAll = "all"

// Defaults applied when a feed item omits a field.
const (
	DefaultTitle       = "No Title"
	DefaultLink        = "#"
	DefaultDescription = "No Description"
)

// PubDateLayout is used when an item has no publication date and the
// normalization time is substituted.
const PubDateLayout = "2006-01-02T15:04:05.000Z07:00"

// FeedSource is one syndication endpoint in the registry.
type FeedSource struct {
	URL  string `json:"url" toml:"url"`
	Name string `json:"name" toml:"name"`
}

// Article is the normalized record produced from a single feed item. The JSON
// layout is the persisted cache format.
type Article struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	PubDate     string `json:"pubDate"`
	Category    string `json:"category"`
	FeedName    string `json:"feedName"`
}

// PublishedAt parses PubDate on a best-effort basis.
func (a Article) PublishedAt() (time.Time, bool) {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, a.PubDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var pubDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02",
}

type CategoryInfo struct {
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	SourceCount int          `json:"sourceCount"`
	Sources     []FeedSource `json:"sources,omitempty"`
}

type ArticlesResponse struct {
	Articles  []Article `json:"articles"`
	Category  string    `json:"category"`
	Count     int       `json:"count"`
	Empty     bool      `json:"empty"`
	Message   string    `json:"message,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}
