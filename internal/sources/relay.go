package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/johnrirwin/feeddash/internal/ratelimit"
)

// RelayFetcher pulls feeds through a content relay that returns the target
// body inside a JSON envelope.
type RelayFetcher struct {
	endpoint string
	limiter  *ratelimit.Limiter
	config   FetcherConfig
	client   *http.Client
}

type relayEnvelope struct {
	Contents *string `json:"contents"`
}

func NewRelayFetcher(limiter *ratelimit.Limiter, config FetcherConfig) *RelayFetcher {
	endpoint := config.RelayEndpoint
	if endpoint == "" {
		endpoint = DefaultRelayEndpoint
	}
	return &RelayFetcher{
		endpoint: endpoint,
		limiter:  limiter,
		config:   config,
		client:   &http.Client{},
	}
}

// RelayURL is the request URL for a given feed.
func (f *RelayFetcher) RelayURL(sourceURL string) string {
	return f.endpoint + url.QueryEscape(sourceURL)
}

func (f *RelayFetcher) Fetch(ctx context.Context, sourceURL string) (string, error) {
	if f.limiter != nil {
		f.limiter.Wait(hostOf(sourceURL))
	}

	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.RelayURL(sourceURL), nil)
	if err != nil {
		return "", &FetchError{URL: sourceURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", &FetchError{URL: sourceURL, Err: fmt.Errorf("relay returned status %d", resp.StatusCode)}
	}

	var envelope relayEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", &FetchError{URL: sourceURL, Err: fmt.Errorf("failed to decode relay envelope: %w", err)}
	}
	if envelope.Contents == nil {
		return "", &FetchError{URL: sourceURL, Err: ErrMissingContents}
	}

	return *envelope.Contents, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
