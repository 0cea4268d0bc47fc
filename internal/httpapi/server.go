package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/cache"
	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/presenter"
	"github.com/johnrirwin/feeddash/internal/ratelimit"
)

const (
	refreshTimeout = 2 * time.Minute
	refreshKey     = "manual-refresh"
	requestIDKey   = "X-Request-ID"
)

// Options carries the optional collaborators of Server.
type Options struct {
	Theme     *cache.ThemeStore
	Presenter *presenter.Presenter
	// RefreshLimiter throttles manual refreshes; nil means unlimited.
	RefreshLimiter ratelimit.RateLimiter
	ManualRefresh  bool
	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer
}

type Server struct {
	agg       *aggregator.Aggregator
	theme     *cache.ThemeStore
	presenter *presenter.Presenter
	limiter   ratelimit.RateLimiter
	refresh   bool
	metrics   prometheus.Gatherer
	logger    *logging.Logger
	server    *http.Server
}

func New(agg *aggregator.Aggregator, opts Options, logger *logging.Logger) *Server {
	theme := opts.Theme
	if theme == nil {
		theme = cache.NewThemeStore(cache.NewMemory())
	}
	pres := opts.Presenter
	if pres == nil {
		pres = presenter.New(nil)
	}
	return &Server{
		agg:       agg,
		theme:     theme,
		presenter: pres,
		limiter:   opts.RefreshLimiter,
		refresh:   opts.ManualRefresh,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Dashboard
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/refresh", s.handleDashboardRefresh)
	mux.HandleFunc("/theme", s.handleDashboardTheme)

	// JSON API
	mux.HandleFunc("/api/articles", s.corsMiddleware(s.handleGetArticles))
	mux.HandleFunc("/api/categories", s.corsMiddleware(s.handleGetCategories))
	mux.HandleFunc("/api/refresh", s.corsMiddleware(s.handleRefresh))
	mux.HandleFunc("/api/theme", s.corsMiddleware(s.handleTheme))

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	return s.requestIDMiddleware(mux)
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: refreshTimeout + 15*time.Second,
	}

	s.logger.Info("HTTP server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// requestIDMiddleware echoes X-Request-ID, minting one when the client sent none.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDKey)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDKey, id)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug("HTTP request", logging.WithFields(map[string]interface{}{
			"request_id":  id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}))
	})
}

func (s *Server) handleGetArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	snap := s.agg.Current()
	s.writeJSON(w, http.StatusOK, articlesResponse(snap.Articles, snap.Category, snap.UpdatedAt))
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	registry := s.agg.Registry()
	categories := []models.CategoryInfo{{
		Name:        models.CategoryAll,
		Label:       presenter.CategoryLabel(models.CategoryAll),
		SourceCount: len(registry.Resolve(models.CategoryAll)),
	}}
	for _, c := range registry.Categories() {
		categories = append(categories, models.CategoryInfo{
			Name:        c.Name,
			Label:       presenter.CategoryLabel(c.Name),
			SourceCount: len(c.Sources),
			Sources:     c.Sources,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	category := categoryParam(r.URL.Query())
	articles, status, err := s.refreshCategory(r.Context(), category)
	switch {
	case status != http.StatusOK:
		s.writeError(w, status, errorCode(status), err.Error())
	case errors.Is(err, aggregator.ErrEmptyResult):
		resp := articlesResponse(nil, category, time.Now())
		resp.Message = presenter.EmptyMessage
		s.writeJSON(w, http.StatusOK, resp)
	default:
		s.writeJSON(w, http.StatusOK, articlesResponse(articles, category, time.Now()))
	}
}

var (
	errRefreshDisabled = errors.New("manual refresh is disabled")
	errRefreshTooSoon  = errors.New("refresh requested too soon, try again shortly")
)

// refreshCategory runs a user-requested refresh. A non-200 status means the
// refresh was refused or failed; ErrEmptyResult comes back with a 200.
func (s *Server) refreshCategory(ctx context.Context, category string) ([]models.Article, int, error) {
	if !s.refresh {
		return nil, http.StatusForbidden, errRefreshDisabled
	}
	if s.limiter != nil && !s.limiter.Allow(refreshKey) {
		return nil, http.StatusTooManyRequests, errRefreshTooSoon
	}

	articles, err := s.aggregate(ctx, category)
	if err != nil && !errors.Is(err, aggregator.ErrEmptyResult) {
		return nil, http.StatusInternalServerError, err
	}
	return articles, http.StatusOK, err
}

func (s *Server) aggregate(ctx context.Context, category string) ([]models.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	articles, err := s.agg.Aggregate(ctx, category)
	if err != nil && !errors.Is(err, aggregator.ErrEmptyResult) {
		s.logger.Error("Failed to refresh feeds", logging.WithField("error", err.Error()))
	}
	return articles, err
}

type themeRequest struct {
	Dark *bool `json:"dark"`
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		dark, err := s.theme.Dark(ctx)
		if err != nil {
			s.logger.Error("Failed to read theme", logging.WithField("error", err.Error()))
			s.writeError(w, http.StatusInternalServerError, "internal_error", "failed to read theme")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"dark": dark})

	case http.MethodPost:
		var req themeRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid_input", "body must be {\"dark\": bool}")
				return
			}
		}

		var (
			dark bool
			err  error
		)
		if req.Dark == nil {
			dark, err = s.theme.Toggle(ctx)
		} else {
			dark = *req.Dark
			err = s.theme.SetDark(ctx, dark)
		}
		if err != nil {
			s.logger.Error("Failed to store theme", logging.WithField("error", err.Error()))
			s.writeError(w, http.StatusInternalServerError, "internal_error", "failed to store theme")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"dark": dark})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

func articlesResponse(articles []models.Article, category string, at time.Time) models.ArticlesResponse {
	if articles == nil {
		articles = []models.Article{}
	}
	if category == "" {
		category = models.CategoryAll
	}
	return models.ArticlesResponse{
		Articles:  articles,
		Category:  category,
		Count:     len(articles),
		Empty:     len(articles) == 0,
		FetchedAt: at,
	}
}

func categoryParam(values url.Values) string {
	if c := values.Get("category"); c != "" {
		return c
	}
	return models.CategoryAll
}

func errorCode(status int) string {
	switch status {
	case http.StatusForbidden:
		return "refresh_disabled"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal_error"
	}
}
