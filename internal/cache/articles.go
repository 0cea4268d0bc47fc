package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/johnrirwin/feeddash/internal/models"
)

// ArticlesKey holds the most recent aggregated list as a JSON array.
const ArticlesKey = "cachedArticles"

var ErrEmptyList = errors.New("cache: refusing to store an empty article list")

// ArticleCache is the single slot holding the last aggregated list. There is
// no expiry: a list is valid until the next successful aggregation replaces it.
type ArticleCache struct {
	store Store
}

func NewArticleCache(store Store) *ArticleCache {
	return &ArticleCache{store: store}
}

// Write serializes the full list and overwrites the slot.
func (c *ArticleCache) Write(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return ErrEmptyList
	}

	data, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("failed to encode articles: %w", err)
	}
	if err := c.store.Set(ctx, ArticlesKey, string(data)); err != nil {
		return fmt.Errorf("failed to write article cache: %w", err)
	}
	return nil
}

// Read returns the cached list, or ok=false when nothing has been cached yet.
func (c *ArticleCache) Read(ctx context.Context) ([]models.Article, bool, error) {
	raw, ok, err := c.store.Get(ctx, ArticlesKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read article cache: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var articles []models.Article
	if err := json.Unmarshal([]byte(raw), &articles); err != nil {
		return nil, false, fmt.Errorf("failed to decode article cache: %w", err)
	}
	if len(articles) == 0 {
		return nil, false, nil
	}
	return articles, true, nil
}
