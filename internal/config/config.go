package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Relay    RelayConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Feeds    FeedsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP/MCP server configuration
type ServerConfig struct {
	HTTPAddr            string
	MCPMode             bool
	RefreshOnceMode     bool
	EnableManualRefresh bool
	// RefreshCooldown is the minimum gap between manual refreshes. Zero disables the limit.
	RefreshCooldown time.Duration
}

// RelayConfig controls how feeds are fetched through the relay.
type RelayConfig struct {
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
	MaxItems  int
	// RateLimitDur is the minimum delay between requests for feeds on the same host.
	RateLimitDur time.Duration
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Backend       string // "memory", "file", "redis" or "postgres"
	FilePath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// FeedsConfig locates the category registry.
type FeedsConfig struct {
	ConfigPath      string
	DefaultCategory string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Load reads .env, then parses command-line flags, then applies environment
// overrides.
func Load() *Config {
	return load(flag.CommandLine, os.Args[1:])
}

// LoadEnv builds configuration from defaults, .env and the environment only,
// for commands that parse their own flags.
func LoadEnv() *Config {
	return load(flag.NewFlagSet("env", flag.ContinueOnError), nil)
}

func load(flags *flag.FlagSet, args []string) *Config {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg := &Config{}

	// Define flags with defaults
	httpAddr := flags.String("http", ":8080", "HTTP server address")
	mcpMode := flags.Bool("mcp", false, "Run in MCP stdio mode")
	refreshOnce := flags.Bool("refresh-once", false, "Aggregate the default category once and exit")
	manualRefresh := flags.Bool("manual-refresh", true, "Allow refreshes over HTTP and MCP")
	refreshCooldown := flags.Duration("refresh-cooldown", 10*time.Second, "Minimum delay between manual refreshes")
	relayEndpoint := flags.String("relay", "https://api.allorigins.win/get?url=", "Relay endpoint prefix; the feed URL is appended escaped")
	relayTimeout := flags.Duration("relay-timeout", 30*time.Second, "Per-request timeout for relay fetches (0 disables)")
	userAgent := flags.String("user-agent", "feeddash/1.0", "User-Agent sent to the relay")
	maxItems := flags.Int("max-items", 0, "Maximum items kept per feed (0 keeps all)")
	rateLimitDur := flags.Duration("rate-limit", 0, "Minimum delay between requests for feeds on the same host")
	cacheBackend := flags.String("cache-backend", "file", "Cache backend: memory, file, redis or postgres")
	cacheFile := flags.String("cache-file", defaultCacheFile(), "State file for the file cache backend")
	redisAddr := flags.String("redis-addr", "localhost:6379", "Redis server address")
	redisDB := flags.Int("redis-db", 0, "Redis database number")
	cachePrefix := flags.String("cache-prefix", "feeddash:", "Key prefix for the redis cache backend")
	logLevel := flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flags.String("log-format", "text", "Log format (text, json)")
	feedsPath := flags.String("feeds", "", "Path to feeds.json or feeds.toml (searched for when empty)")
	defaultCategory := flags.String("category", "all", "Category aggregated on startup when nothing is cached")
	dbHost := flags.String("db-host", "localhost", "PostgreSQL host")
	dbPort := flags.Int("db-port", 5432, "PostgreSQL port")
	dbUser := flags.String("db-user", "postgres", "PostgreSQL user")
	dbPassword := flags.String("db-password", "postgres", "PostgreSQL password")
	dbName := flags.String("db-name", "feeddash", "PostgreSQL database name")
	dbSSLMode := flags.String("db-sslmode", "disable", "PostgreSQL SSL mode")

	_ = flags.Parse(args)

	// Apply environment variable overrides
	envString("HTTP_ADDR", httpAddr)
	envBool("MCP_MODE", mcpMode)
	envBool("REFRESH_ONCE_MODE", refreshOnce)
	envBool("ENABLE_MANUAL_REFRESH", manualRefresh)
	envDuration("REFRESH_COOLDOWN", refreshCooldown)
	envString("RELAY_ENDPOINT", relayEndpoint)
	envDuration("RELAY_TIMEOUT", relayTimeout)
	envString("USER_AGENT", userAgent)
	envInt("MAX_ITEMS", maxItems)
	envDuration("RATE_LIMIT", rateLimitDur)
	envString("CACHE_BACKEND", cacheBackend)
	envString("CACHE_FILE", cacheFile)
	envString("REDIS_ADDR", redisAddr)
	envInt("REDIS_DB", redisDB)
	envString("CACHE_PREFIX", cachePrefix)
	envString("LOG_LEVEL", logLevel)
	envString("LOG_FORMAT", logFormat)
	envString("FEEDS_CONFIG_PATH", feedsPath)
	envString("DEFAULT_CATEGORY", defaultCategory)
	envString("DB_HOST", dbHost)
	envInt("DB_PORT", dbPort)
	envString("DB_USER", dbUser)
	envString("DB_PASSWORD", dbPassword)
	envString("DB_NAME", dbName)
	envString("DB_SSLMODE", dbSSLMode)

	// Build config struct
	cfg.Server = ServerConfig{
		HTTPAddr:            *httpAddr,
		MCPMode:             *mcpMode,
		RefreshOnceMode:     *refreshOnce,
		EnableManualRefresh: *manualRefresh,
		RefreshCooldown:     *refreshCooldown,
	}

	cfg.Relay = RelayConfig{
		Endpoint:     *relayEndpoint,
		Timeout:      *relayTimeout,
		UserAgent:    *userAgent,
		MaxItems:     *maxItems,
		RateLimitDur: *rateLimitDur,
	}

	cfg.Cache = CacheConfig{
		Backend:       strings.ToLower(*cacheBackend),
		FilePath:      *cacheFile,
		RedisAddr:     *redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       *redisDB,
		Prefix:        *cachePrefix,
	}

	cfg.Database = DatabaseConfig{
		Host:     *dbHost,
		Port:     *dbPort,
		User:     *dbUser,
		Password: *dbPassword,
		Database: *dbName,
		SSLMode:  *dbSSLMode,
	}

	cfg.Feeds = FeedsConfig{
		ConfigPath:      *feedsPath,
		DefaultCategory: *defaultCategory,
	}

	cfg.Logging = LoggingConfig{
		Level:  *logLevel,
		Format: *logFormat,
	}

	return cfg
}

// loadDotEnv populates the environment from path without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func defaultCacheFile() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + string(os.PathSeparator) + "feeddash" + string(os.PathSeparator) + "state.json"
	}
	return "feeddash-state.json"
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envString(key string, dst *string) {
	*dst = getEnvOrDefault(key, *dst)
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
