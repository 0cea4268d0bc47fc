package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/cache"
	"github.com/johnrirwin/feeddash/internal/config"
	"github.com/johnrirwin/feeddash/internal/database"
	"github.com/johnrirwin/feeddash/internal/httpapi"
	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/mcp"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/presenter"
	"github.com/johnrirwin/feeddash/internal/ratelimit"
	"github.com/johnrirwin/feeddash/internal/sources"
)

// App holds all application dependencies
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Store      cache.Store
	Articles   *cache.ArticleCache
	Theme      *cache.ThemeStore
	Registry   *sources.Registry
	Aggregator *aggregator.Aggregator
	Metrics    *prometheus.Registry
	HTTPServer *httpapi.Server
	MCPServer  *mcp.Server

	db             *database.DB
	redis          *cache.RedisStore
	refreshLimiter ratelimit.RateLimiter
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	return NewWithLogger(cfg, initLogger(cfg.Logging))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg *config.Config, logger *logging.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	// Initialize state store
	app.Store = app.initCache()
	app.Articles = cache.NewArticleCache(app.Store)
	app.Theme = cache.NewThemeStore(app.Store)

	// Initialize feed registry and fetch pipeline
	registry, err := app.initRegistry()
	if err != nil {
		app.Shutdown(context.Background())
		return nil, err
	}
	app.Registry = registry

	app.Metrics = prometheus.NewRegistry()
	app.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := aggregator.NewMetrics(app.Metrics)

	hostLimiter := ratelimit.New(cfg.Relay.RateLimitDur)
	fetcher := sources.NewRelayFetcher(hostLimiter, sources.FetcherConfig{
		RelayEndpoint: cfg.Relay.Endpoint,
		Timeout:       cfg.Relay.Timeout,
		MaxItems:      cfg.Relay.MaxItems,
		UserAgent:     cfg.Relay.UserAgent,
	})
	parser := sources.NewFeedParser(cfg.Relay.MaxItems, app.Logger)

	app.Aggregator = aggregator.New(registry, fetcher, parser, app.Articles, metrics, app.Logger)

	// Initialize servers
	app.initServers()

	return app, nil
}

// Run starts the application in the appropriate mode
func (a *App) Run(ctx context.Context) error {
	switch {
	case a.Config.Server.RefreshOnceMode:
		return a.runRefreshOnce(ctx)
	case a.Config.Server.MCPMode:
		return a.runMCPMode(ctx)
	default:
		return a.runHTTPMode(ctx)
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Error("Redis close error", logging.WithField("error", err.Error()))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}

	return nil
}

// DefaultCategory is the configured startup category, or "all" when the
// registry does not know it.
func (a *App) DefaultCategory() string {
	name := a.Config.Feeds.DefaultCategory
	if name == "" || !a.Registry.Has(name) {
		return models.CategoryAll
	}
	return name
}

func initLogger(cfg config.LoggingConfig) *logging.Logger {
	return logging.NewWithWriter(logging.ParseLevel(cfg.Level), os.Stderr, cfg.Format)
}

func (a *App) initCache() cache.Store {
	cfg := a.Config.Cache

	switch cfg.Backend {
	case "redis":
		a.Logger.Info("Using Redis cache backend", logging.WithField("addr", cfg.RedisAddr))
		redisStore, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			a.Logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			a.initRefreshLimiter(nil)
			return cache.NewMemory()
		}
		a.redis = redisStore
		// Use Redis for the refresh cooldown so it holds across instances
		a.initRefreshLimiter(redisStore)
		return redisStore

	case "postgres":
		a.initRefreshLimiter(nil)
		if store := a.initDatabaseStore(); store != nil {
			return store
		}
		return cache.NewMemory()

	case "file":
		a.initRefreshLimiter(nil)
		fileStore, err := cache.NewFile(cfg.FilePath)
		if err != nil {
			a.Logger.Error("Failed to open cache file, falling back to memory cache", logging.WithFields(map[string]interface{}{
				"path":  cfg.FilePath,
				"error": err.Error(),
			}))
			return cache.NewMemory()
		}
		a.Logger.Info("Using file cache backend", logging.WithField("path", fileStore.Path()))
		return fileStore

	default:
		a.Logger.Info("Using in-memory cache backend")
		a.initRefreshLimiter(nil)
		return cache.NewMemory()
	}
}

func (a *App) initRefreshLimiter(redisStore *cache.RedisStore) {
	cooldown := a.Config.Server.RefreshCooldown
	if cooldown <= 0 {
		return
	}
	if redisStore != nil {
		a.refreshLimiter = ratelimit.NewRedis(redisStore.Client(), "ratelimit:", cooldown)
		a.Logger.Info("Using Redis for refresh rate limiting")
		return
	}
	a.refreshLimiter = ratelimit.New(cooldown)
}

func (a *App) initDatabaseStore() cache.Store {
	dbConfig := database.DefaultConfig()
	dbConfig.Host = a.Config.Database.Host
	dbConfig.Port = a.Config.Database.Port
	dbConfig.User = a.Config.Database.User
	dbConfig.Password = a.Config.Database.Password
	dbConfig.Database = a.Config.Database.Database
	dbConfig.SSLMode = a.Config.Database.SSLMode

	db, err := database.New(dbConfig)
	if err != nil {
		a.Logger.Warn("Failed to connect to PostgreSQL, falling back to memory cache", logging.WithField("error", err.Error()))
		return nil
	}

	a.Logger.Info("Connected to PostgreSQL")
	if err := db.Migrate(context.Background()); err != nil {
		a.Logger.Warn("Failed to run migrations, falling back to memory cache", logging.WithField("error", err.Error()))
		db.Close()
		return nil
	}

	a.db = db
	return database.NewStateStore(db)
}

func (a *App) initRegistry() (*sources.Registry, error) {
	configPath := a.Config.Feeds.ConfigPath
	explicit := configPath != ""
	if !explicit {
		configPath = sources.FindFeedsConfig()
	}

	if configPath == "" {
		a.Logger.Info("No feeds file found, using default sources")
		return sources.DefaultRegistry(), nil
	}

	feedsConfig, err := sources.LoadFeedsConfig(configPath)
	if err != nil {
		if explicit {
			return nil, fmt.Errorf("failed to load feeds from %s: %w", configPath, err)
		}
		a.Logger.Warn("Failed to load feeds config, using defaults", logging.WithFields(map[string]interface{}{
			"path":  configPath,
			"error": err.Error(),
		}))
		return sources.DefaultRegistry(), nil
	}

	registry := sources.RegistryFromConfig(feedsConfig)
	a.Logger.Info("Loaded feeds configuration", logging.WithFields(map[string]interface{}{
		"path":       configPath,
		"categories": len(registry.Names()),
		"sources":    len(registry.Resolve(models.CategoryAll)),
	}))
	return registry, nil
}

func (a *App) initServers() {
	a.HTTPServer = httpapi.New(a.Aggregator, httpapi.Options{
		Theme:          a.Theme,
		Presenter:      presenter.New(nil),
		RefreshLimiter: a.refreshLimiter,
		ManualRefresh:  a.Config.Server.EnableManualRefresh,
		Metrics:        a.Metrics,
	}, a.Logger)

	mcpHandler := mcp.NewHandler(a.Aggregator, a.Logger)
	a.MCPServer = mcp.NewServer(mcpHandler, a.Logger)
}

// load installs the cached list, or aggregates the default category when
// nothing is cached. An empty first result is not fatal.
func (a *App) load(ctx context.Context) {
	snap, err := a.Aggregator.Load(ctx, a.DefaultCategory())
	if err != nil {
		a.Logger.Warn("Initial load found no articles", logging.WithField("error", err.Error()))
		return
	}
	a.Logger.Info("Initial load complete", logging.WithFields(map[string]interface{}{
		"count":      len(snap.Articles),
		"category":   snap.Category,
		"from_cache": snap.FromCache,
	}))
}

func (a *App) runRefreshOnce(ctx context.Context) error {
	category := a.DefaultCategory()
	a.Logger.Info("Running single refresh", logging.WithField("category", category))

	articles, err := a.Aggregator.Aggregate(ctx, category)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", category, err)
	}

	a.Logger.Info("Refresh complete", logging.WithField("count", len(articles)))
	return nil
}

func (a *App) runMCPMode(ctx context.Context) error {
	a.Logger.Info("Starting MCP server in stdio mode")

	a.Logger.Info("Loading feeds...")
	a.load(ctx)

	return a.MCPServer.Run(ctx)
}

func (a *App) runHTTPMode(ctx context.Context) error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))

	// Load feeds in background; the dashboard shows a loading message meanwhile
	go func() {
		a.Logger.Info("Loading feeds in background...")
		a.load(ctx)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.HTTPServer.Shutdown(shutdownCtx)
	}()

	err := a.HTTPServer.Start(a.Config.Server.HTTPAddr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
