package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/feeddash/internal/cache"
	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/sources"
)

// ErrEmptyResult means every source for the selector produced nothing. The
// cached list is left as it was.
var ErrEmptyResult = errors.New("no articles available, try refreshing")

// Snapshot is the list currently on display.
type Snapshot struct {
	Articles  []models.Article
	Category  string
	UpdatedAt time.Time
	FromCache bool
}

// Aggregator fans out fetch+parse over a category's sources and merges the
// results in registry order.
//
// Overlapping Aggregate calls are not serialized: whichever finishes last owns
// the cache slot and the current snapshot.
type Aggregator struct {
	registry *sources.Registry
	fetcher  sources.Fetcher
	parser   sources.Parser
	cache    *cache.ArticleCache
	metrics  *Metrics
	logger   *logging.Logger

	mu      sync.RWMutex
	current Snapshot
	// settled flips once the first Aggregate or cache load has finished.
	settled atomic.Bool
}

func New(registry *sources.Registry, fetcher sources.Fetcher, parser sources.Parser, articles *cache.ArticleCache, metrics *Metrics, logger *logging.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		fetcher:  fetcher,
		parser:   parser,
		cache:    articles,
		metrics:  metrics,
		logger:   logger,
		current:  Snapshot{Articles: []models.Article{}},
	}
}

// Aggregate fetches every source for selector concurrently, waits for all of
// them, and returns the merged list. Failed sources contribute nothing.
func (a *Aggregator) Aggregate(ctx context.Context, selector string) ([]models.Article, error) {
	defer a.settled.Store(true)

	log := a.logger.With(
		logging.WithField("run_id", uuid.NewString()),
		logging.WithField("category", selector),
	)

	feeds := a.registry.Resolve(selector)
	log.Info("Fetching feeds", logging.WithField("sources", len(feeds)))

	start := time.Now()
	results := make([][]models.Article, len(feeds))

	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed models.FeedSource) {
			defer wg.Done()
			results[i] = a.collect(ctx, feed, log)
		}(i, feed)
	}
	wg.Wait()

	merged := make([]models.Article, 0)
	for i, articles := range results {
		for _, article := range articles {
			article.Category = selector
			article.FeedName = feeds[i].Name
			merged = append(merged, article)
		}
	}

	a.metrics.observeAggregation(selector, len(merged), time.Since(start))

	if len(merged) == 0 {
		log.Warn("No articles found, check feed URLs or relay")
		return nil, ErrEmptyResult
	}

	if a.cache != nil {
		if err := a.cache.Write(ctx, merged); err != nil {
			log.Warn("Failed to write article cache", logging.WithField("error", err.Error()))
		}
	}

	a.mu.Lock()
	a.current = Snapshot{
		Articles:  merged,
		Category:  selector,
		UpdatedAt: time.Now(),
	}
	a.mu.Unlock()

	log.Info("Aggregation complete", logging.WithFields(map[string]interface{}{
		"total_items":  len(merged),
		"sources_used": len(feeds),
		"duration_ms":  time.Since(start).Milliseconds(),
	}))

	return merged, nil
}

// collect runs fetch then parse for one source. It never fails: errors and
// panics are logged and degrade to zero articles.
func (a *Aggregator) collect(ctx context.Context, feed models.FeedSource, log *logging.Logger) (articles []models.Article) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Source task panicked", logging.WithFields(map[string]interface{}{
				"source": feed.Name,
				"panic":  fmt.Sprint(r),
			}))
			a.metrics.sourceResult(outcomeFetchError)
			articles = nil
		}
	}()

	raw, err := a.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		log.Warn("Failed to fetch from source", logging.WithFields(map[string]interface{}{
			"source": feed.Name,
			"url":    feed.URL,
			"error":  err.Error(),
		}))
		a.metrics.sourceResult(outcomeFetchError)
		return nil
	}

	articles, err = a.parser.Parse(raw)
	if err != nil {
		log.Warn("Failed to parse source", logging.WithFields(map[string]interface{}{
			"source": feed.Name,
			"url":    feed.URL,
			"error":  err.Error(),
		}))
		a.metrics.sourceResult(outcomeParseError)
		return nil
	}

	log.Debug("Fetched items from source", logging.WithFields(map[string]interface{}{
		"source": feed.Name,
		"count":  len(articles),
	}))
	a.metrics.sourceResult(outcomeOK)
	return articles
}

// Load installs the cached list if there is one, otherwise aggregates
// defaultCategory.
func (a *Aggregator) Load(ctx context.Context, defaultCategory string) (Snapshot, error) {
	if a.cache != nil {
		cached, ok, err := a.cache.Read(ctx)
		if err != nil {
			a.logger.Warn("Failed to read article cache", logging.WithField("error", err.Error()))
		}
		if ok {
			snap := Snapshot{
				Articles:  cached,
				Category:  cached[0].Category,
				UpdatedAt: time.Now(),
				FromCache: true,
			}
			a.mu.Lock()
			a.current = snap
			a.mu.Unlock()
			a.settled.Store(true)

			a.logger.Info("Loaded cached articles", logging.WithField("count", len(cached)))
			return snap, nil
		}
	}

	if _, err := a.Aggregate(ctx, defaultCategory); err != nil {
		return a.Current(), err
	}
	return a.Current(), nil
}

// Current returns the snapshot last installed by Aggregate or Load.
func (a *Aggregator) Current() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Settled reports whether any aggregation or cache load has completed, so an
// empty snapshot can be told apart from one that is still loading.
func (a *Aggregator) Settled() bool {
	return a.settled.Load()
}

func (a *Aggregator) Registry() *sources.Registry {
	return a.registry
}
