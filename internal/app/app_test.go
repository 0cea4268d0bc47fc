package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/cache"
	"github.com/johnrirwin/feeddash/internal/config"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/testutil"
)

const sampleFeed = `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>Relayed</title><link>https://example.com/relayed</link></item>
</channel></rss>`

// newRelay serves sampleFeed for every requested URL, wrapped in the relay envelope.
func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"contents": sampleFeed})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFeeds(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(relay, feeds string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0", EnableManualRefresh: true},
		Relay:  config.RelayConfig{Endpoint: relay + "/get?url="},
		Cache:  config.CacheConfig{Backend: "memory"},
		Feeds:  config.FeedsConfig{ConfigPath: feeds, DefaultCategory: "news"},
	}
}

const twoCategories = `{"categories":[
	{"name":"news","sources":[{"url":"https://a.example/rss","name":"A"},{"url":"https://b.example/rss","name":"B","disabled":true}]},
	{"name":"blogs","sources":[{"url":"https://c.example/rss"}]}
]}`

func TestNew_LoadsFeedsFile(t *testing.T) {
	relay := newRelay(t)
	a, err := NewWithLogger(testConfig(relay.URL, writeFeeds(t, twoCategories)), testutil.NullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	assert.Equal(t, []string{"news", "blogs"}, a.Registry.Names())
	assert.Len(t, a.Registry.Resolve(models.CategoryAll), 2, "disabled sources are dropped")
	assert.Equal(t, "news", a.DefaultCategory())
	assert.IsType(t, &cache.MemoryStore{}, a.Store)
}

func TestNew_ExplicitBadFeedsFileFails(t *testing.T) {
	_, err := NewWithLogger(testConfig("http://unused", writeFeeds(t, `{"categories":[{"name":"all"}]}`)), testutil.NullLogger())
	assert.Error(t, err)
}

func TestDefaultCategory_FallsBackToAll(t *testing.T) {
	cfg := testConfig("http://unused", writeFeeds(t, twoCategories))
	cfg.Feeds.DefaultCategory = "nope"

	a, err := NewWithLogger(cfg, testutil.NullLogger())
	require.NoError(t, err)
	assert.Equal(t, models.CategoryAll, a.DefaultCategory())
}

func TestRunRefreshOnce(t *testing.T) {
	relay := newRelay(t)
	cfg := testConfig(relay.URL, writeFeeds(t, twoCategories))
	cfg.Server.RefreshOnceMode = true

	a, err := NewWithLogger(cfg, testutil.NullLogger())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	cached, ok, err := a.Articles.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "Relayed", cached[0].Title)
	assert.Equal(t, "news", cached[0].Category)
	assert.Equal(t, "A", cached[0].FeedName)
}

func TestRunRefreshOnce_Empty(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(relay.Close)

	cfg := testConfig(relay.URL, writeFeeds(t, twoCategories))
	cfg.Server.RefreshOnceMode = true

	a, err := NewWithLogger(cfg, testutil.NullLogger())
	require.NoError(t, err)

	err = a.Run(context.Background())
	assert.ErrorIs(t, err, aggregator.ErrEmptyResult)
}

func TestLoad_UsesCacheFile(t *testing.T) {
	relay := newRelay(t)
	cfg := testConfig(relay.URL, writeFeeds(t, twoCategories))
	cfg.Cache = config.CacheConfig{Backend: "file", FilePath: filepath.Join(t.TempDir(), "state.json")}
	cfg.Server.RefreshOnceMode = true

	first, err := NewWithLogger(cfg, testutil.NullLogger())
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))

	second, err := NewWithLogger(cfg, testutil.NullLogger())
	require.NoError(t, err)
	second.load(context.Background())

	snap := second.Aggregator.Current()
	assert.True(t, snap.FromCache)
	assert.Equal(t, "news", snap.Category)
	assert.Len(t, snap.Articles, 1)
}

func TestInitCache_RedisFallsBackToMemory(t *testing.T) {
	cfg := testConfig("http://unused", writeFeeds(t, twoCategories))
	cfg.Cache = config.CacheConfig{Backend: "redis", RedisAddr: "127.0.0.1:1"}

	a, err := NewWithLogger(cfg, testutil.NullLogger())
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryStore{}, a.Store)
}
