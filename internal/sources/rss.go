package sources

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/models"
)

// FeedParser normalizes RSS and Atom documents into articles.
type FeedParser struct {
	maxItems int
	now      func() time.Time
	logger   *logging.Logger
}

func NewFeedParser(maxItems int, logger *logging.Logger) *FeedParser {
	return &FeedParser{
		maxItems: maxItems,
		now:      time.Now,
		logger:   logger,
	}
}

// Parse returns the items of raw in document order. A feed with no items is
// not an error.
func (p *FeedParser) Parse(raw string) ([]models.Article, error) {
	// gofeed parsers keep per-document state, so each call gets its own.
	feed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	if len(feed.Items) == 0 {
		if p.logger != nil {
			p.logger.Warn("No articles found in feed", logging.WithField("feed_title", feed.Title))
		}
		return []models.Article{}, nil
	}

	items := feed.Items
	if p.maxItems > 0 && len(items) > p.maxItems {
		items = items[:p.maxItems]
	}

	articles := make([]models.Article, 0, len(items))
	for _, item := range items {
		articles = append(articles, p.normalize(item))
	}
	return articles, nil
}

func (p *FeedParser) normalize(item *gofeed.Item) models.Article {
	pubDate := strings.TrimSpace(item.Published)
	if pubDate == "" {
		pubDate = strings.TrimSpace(item.Updated)
	}
	if pubDate == "" {
		pubDate = p.now().UTC().Format(models.PubDateLayout)
	}

	return models.Article{
		Title:       orDefault(cleanText(item.Title), models.DefaultTitle),
		Link:        orDefault(strings.TrimSpace(item.Link), models.DefaultLink),
		Description: orDefault(cleanText(item.Description), models.DefaultDescription),
		PubDate:     pubDate,
	}
}

func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
