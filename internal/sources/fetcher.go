package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnrirwin/feeddash/internal/models"
)

// DefaultRelayEndpoint wraps any URL in a {"contents": "..."} JSON envelope.
const DefaultRelayEndpoint = "https://api.allorigins.win/get?url="

// Fetcher retrieves the raw markup of one feed.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) (string, error)
}

// Parser turns raw feed markup into partial articles (category and feed name unset).
type Parser interface {
	Parse(raw string) ([]models.Article, error)
}

type FetcherConfig struct {
	RelayEndpoint string
	Timeout       time.Duration
	MaxItems      int
	UserAgent     string
}

func DefaultConfig() FetcherConfig {
	return FetcherConfig{
		RelayEndpoint: DefaultRelayEndpoint,
		Timeout:       30 * time.Second,
		MaxItems:      0,
		UserAgent:     "feeddash/1.0",
	}
}

var ErrMissingContents = errors.New("relay envelope has no contents")

// FetchError is a relay or network failure for a single source.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError means the markup was not a readable feed.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
