package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/cache"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/presenter"
	"github.com/johnrirwin/feeddash/internal/ratelimit"
	"github.com/johnrirwin/feeddash/internal/sources"
	"github.com/johnrirwin/feeddash/internal/testutil"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	raw, ok := m[url]
	if !ok {
		return "", &sources.FetchError{URL: url, Err: fmt.Errorf("no such feed")}
	}
	return raw, nil
}

func rss(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)
	for _, title := range titles {
		fmt.Fprintf(&b, "<item><title>%s</title><link>https://example.com/%s</link></item>", title, title)
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

func newTestServer(t *testing.T, opts Options) (*Server, *aggregator.Aggregator) {
	t.Helper()

	registry := sources.NewRegistry([]sources.Category{
		{Name: "tech", Sources: []models.FeedSource{{URL: "https://tech.example/rss", Name: "Tech Feed"}}},
		{Name: "art", Sources: []models.FeedSource{{URL: "https://art.example/rss", Name: "Art Feed"}}},
		{Name: "quiet", Sources: []models.FeedSource{{URL: "https://down.example/rss", Name: "Down"}}},
	})
	fetcher := mapFetcher{
		"https://tech.example/rss": rss("compilers", "kernels"),
		"https://art.example/rss":  rss("sculpture"),
	}
	logger := testutil.NullLogger()
	agg := aggregator.New(registry, fetcher, sources.NewFeedParser(0, logger),
		cache.NewArticleCache(cache.NewMemory()), nil, logger)

	if opts.Presenter == nil {
		opts.Presenter = presenter.New(time.UTC)
	}
	return New(agg, opts, logger), agg
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestWriteError(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	tests := []struct {
		name    string
		status  int
		code    string
		message string
	}{
		{"bad request", http.StatusBadRequest, "invalid_input", "body must be JSON"},
		{"rate limited", http.StatusTooManyRequests, "rate_limited", "slow down"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.writeError(w, tt.status, tt.code, tt.message)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}

			response := decode[map[string]string](t, w)
			if response["code"] != tt.code {
				t.Errorf("code = %s, want %s", response["code"], tt.code)
			}
			if response["message"] != tt.message {
				t.Errorf("message = %s, want %s", response["message"], tt.message)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	handler := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("OPTIONS request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodOptions, "/api/articles", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if w.Header().Get("Access-Control-Allow-Origin") == "" {
			t.Error("Missing Access-Control-Allow-Origin header")
		}
	})

	t.Run("GET request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/api/articles", nil))

		if w.Code != http.StatusTeapot {
			t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
		}
	})
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/health", nil)
	if id := w.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a uuid", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); id != "abc-123" {
		t.Errorf("X-Request-ID = %q, want echoed %q", id, "abc-123")
	}
}

func TestArticlesAndRefresh(t *testing.T) {
	s, _ := newTestServer(t, Options{ManualRefresh: true})
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/articles", nil)
	before := decode[models.ArticlesResponse](t, w)
	if !before.Empty || before.Count != 0 || before.Articles == nil {
		t.Fatalf("initial articles = %+v, want empty non-nil list", before)
	}

	w = do(t, h, http.MethodPost, "/api/refresh?category=tech", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d", w.Code, http.StatusOK)
	}
	refreshed := decode[models.ArticlesResponse](t, w)
	if refreshed.Count != 2 || refreshed.Category != "tech" {
		t.Fatalf("refresh = %+v, want 2 tech articles", refreshed)
	}
	if refreshed.Articles[0].Title != "compilers" || refreshed.Articles[0].FeedName != "Tech Feed" {
		t.Errorf("first article = %+v", refreshed.Articles[0])
	}

	w = do(t, h, http.MethodGet, "/api/articles", nil)
	current := decode[models.ArticlesResponse](t, w)
	if current.Count != 2 || current.Category != "tech" {
		t.Errorf("current = %+v, want the refreshed list", current)
	}

	w = do(t, h, http.MethodGet, "/api/refresh", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/refresh status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestRefresh_EmptyResult(t *testing.T) {
	s, _ := newTestServer(t, Options{ManualRefresh: true})
	h := s.Handler()

	do(t, h, http.MethodPost, "/api/refresh?category=art", nil)

	for _, category := range []string{"quiet", "no-such-category"} {
		w := do(t, h, http.MethodPost, "/api/refresh?category="+category, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		resp := decode[models.ArticlesResponse](t, w)
		if !resp.Empty || resp.Message != presenter.EmptyMessage {
			t.Errorf("%s: response = %+v, want empty with message", category, resp)
		}
	}

	current := decode[models.ArticlesResponse](t, do(t, h, http.MethodGet, "/api/articles", nil))
	if current.Category != "art" || current.Count != 1 {
		t.Errorf("current = %+v, want the earlier art list kept", current)
	}
}

func TestRefresh_Limited(t *testing.T) {
	s, _ := newTestServer(t, Options{ManualRefresh: true, RefreshLimiter: ratelimit.New(time.Hour)})
	h := s.Handler()

	if w := do(t, h, http.MethodPost, "/api/refresh", nil); w.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d, want %d", w.Code, http.StatusOK)
	}

	w := do(t, h, http.MethodPost, "/api/refresh", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second refresh status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if resp := decode[map[string]string](t, w); resp["code"] != "rate_limited" {
		t.Errorf("code = %q, want rate_limited", resp["code"])
	}
}

func TestRefresh_Disabled(t *testing.T) {
	s, agg := newTestServer(t, Options{ManualRefresh: false})

	w := do(t, s.Handler(), http.MethodPost, "/api/refresh?category=tech", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if agg.Settled() {
		t.Error("a refused refresh must not aggregate")
	}
}

func TestCategories(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	w := do(t, s.Handler(), http.MethodGet, "/api/categories", nil)
	resp := decode[struct {
		Categories []models.CategoryInfo `json:"categories"`
		Count      int                   `json:"count"`
	}](t, w)

	if resp.Count != 4 || len(resp.Categories) != 4 {
		t.Fatalf("count = %d, want 4 (all + 3)", resp.Count)
	}
	all := resp.Categories[0]
	if all.Name != models.CategoryAll || all.SourceCount != 3 || all.Label != "All Categories" {
		t.Errorf("all = %+v", all)
	}
	if resp.Categories[1].Name != "tech" || resp.Categories[1].Label != "Tech" {
		t.Errorf("second = %+v, want tech", resp.Categories[1])
	}
}

func TestTheme(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	dark := func(w *httptest.ResponseRecorder) bool {
		t.Helper()
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		return decode[map[string]bool](t, w)["dark"]
	}

	if dark(do(t, h, http.MethodGet, "/api/theme", nil)) {
		t.Error("default theme is dark, want light")
	}
	if !dark(do(t, h, http.MethodPost, "/api/theme", nil)) {
		t.Error("toggle from light = light, want dark")
	}
	if !dark(do(t, h, http.MethodGet, "/api/theme", nil)) {
		t.Error("theme not persisted")
	}
	if !dark(do(t, h, http.MethodPost, "/api/theme", bytes.NewBufferString(`{"dark":true}`))) {
		t.Error(`{"dark":true} = light`)
	}
	if dark(do(t, h, http.MethodPost, "/api/theme", bytes.NewBufferString(`{"dark":false}`))) {
		t.Error(`{"dark":false} = dark`)
	}

	w := do(t, h, http.MethodPost, "/api/theme", bytes.NewBufferString(`{"dark":`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDashboard(t *testing.T) {
	s, agg := newTestServer(t, Options{ManualRefresh: true})
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/", nil)
	if !strings.Contains(w.Body.String(), presenter.LoadingMessage) {
		t.Error("dashboard before first load should show the loading message")
	}

	w = do(t, h, http.MethodGet, "/?category=tech", nil)
	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %s, want text/html", ct)
	}
	for _, want := range []string{"compilers", "kernels", `<option value="tech" selected>`} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if agg.Current().Category != "tech" {
		t.Errorf("current category = %q, want tech", agg.Current().Category)
	}

	w = do(t, h, http.MethodGet, "/?category=quiet", nil)
	if !strings.Contains(w.Body.String(), presenter.EmptyMessage) {
		t.Error("empty category should show the empty message")
	}

	if w := do(t, h, http.MethodGet, "/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("/missing status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDashboardRefreshAndTheme(t *testing.T) {
	s, agg := newTestServer(t, Options{ManualRefresh: true})
	h := s.Handler()

	form := url.Values{"category": {"art"}}
	req := httptest.NewRequest(http.MethodPost, "/refresh", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/?category=art" {
		t.Errorf("Location = %q, want /?category=art", loc)
	}
	if agg.Current().Category != "art" {
		t.Errorf("current category = %q, want art", agg.Current().Category)
	}

	req = httptest.NewRequest(http.MethodPost, "/theme", nil)
	req.Header.Set("Referer", "http://localhost:8080/?category=art")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("theme status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/?category=art" {
		t.Errorf("theme Location = %q, want /?category=art", loc)
	}
	if !strings.Contains(do(t, h, http.MethodGet, "/", nil).Body.String(), `class="dark-mode"`) {
		t.Error("dashboard should render dark after toggling")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	aggregator.NewMetrics(reg)

	s, _ := newTestServer(t, Options{Metrics: reg})
	w := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	s, _ = newTestServer(t, Options{})
	if w := do(t, s.Handler(), http.MethodGet, "/metrics", nil); w.Code != http.StatusNotFound {
		t.Errorf("metrics without a gatherer status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
