package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"github.com/johnrirwin/feeddash/internal/models"
)

// SourceEntry is a single feed as written in feeds.json / feeds.toml
type SourceEntry struct {
	URL      string `json:"url" toml:"url"`
	Name     string `json:"name" toml:"name"`
	Disabled bool   `json:"disabled,omitempty" toml:"disabled,omitempty"`
}

// CategoryEntry groups sources under a category name. Order is significant.
type CategoryEntry struct {
	Name    string        `json:"name" toml:"name"`
	Sources []SourceEntry `json:"sources" toml:"sources"`
}

// FeedsConfig holds the feeds configuration
type FeedsConfig struct {
	Categories []CategoryEntry `json:"categories" toml:"categories"`
}

// LoadFeedsConfig loads feed categories from a JSON or TOML config file.
// The format is chosen by file extension.
func LoadFeedsConfig(configPath string) (*FeedsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}

	var config FeedsConfig
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse feeds config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse feeds config: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *FeedsConfig) validate() error {
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return fmt.Errorf("feeds config: category %d has no name", i)
		}
		if name == models.CategoryAll {
			return fmt.Errorf("feeds config: %q is reserved", models.CategoryAll)
		}
		if seen[name] {
			return fmt.Errorf("feeds config: duplicate category %q", name)
		}
		seen[name] = true

		for j, src := range cat.Sources {
			if strings.TrimSpace(src.URL) == "" {
				return fmt.Errorf("feeds config: category %q source %d has no url", name, j)
			}
		}
	}
	return nil
}

// FindFeedsConfig searches for a feeds file in common locations
func FindFeedsConfig() string {
	locations := []string{
		"feeds.json",
		"feeds.toml",
		"config/feeds.json",
		"config/feeds.toml",
		"/app/feeds.json",
		"/app/feeds.toml",
	}

	if envPath := os.Getenv("FEEDS_CONFIG_PATH"); envPath != "" {
		locations = append([]string{envPath}, locations...)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}

	return ""
}

// Category is a named, ordered group of feed sources.
type Category struct {
	Name    string
	Sources []models.FeedSource
}

// Registry maps category names to their sources, keeping declaration order.
type Registry struct {
	categories []Category
	index      map[string]int
}

func NewRegistry(categories []Category) *Registry {
	r := &Registry{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}
	for _, c := range categories {
		r.index[c.Name] = len(r.categories)
		r.categories = append(r.categories, Category{
			Name:    c.Name,
			Sources: append([]models.FeedSource(nil), c.Sources...),
		})
	}
	return r
}

// RegistryFromConfig builds a registry, dropping disabled sources.
func RegistryFromConfig(config *FeedsConfig) *Registry {
	categories := lo.Map(config.Categories, func(c CategoryEntry, _ int) Category {
		enabled := lo.Filter(c.Sources, func(s SourceEntry, _ int) bool { return !s.Disabled })
		return Category{
			Name: strings.TrimSpace(c.Name),
			Sources: lo.Map(enabled, func(s SourceEntry, _ int) models.FeedSource {
				name := s.Name
				if name == "" {
					name = s.URL
				}
				return models.FeedSource{URL: s.URL, Name: name}
			}),
		}
	})
	return NewRegistry(categories)
}

// Resolve returns the sources for a selector. "all" flattens every category in
// declaration order; an unknown name resolves to no sources.
func (r *Registry) Resolve(selector string) []models.FeedSource {
	if selector == models.CategoryAll {
		return lo.FlatMap(r.categories, func(c Category, _ int) []models.FeedSource {
			return c.Sources
		})
	}

	i, ok := r.index[selector]
	if !ok {
		return []models.FeedSource{}
	}
	return append([]models.FeedSource(nil), r.categories[i].Sources...)
}

// Names lists category names in declaration order, without "all".
func (r *Registry) Names() []string {
	return lo.Map(r.categories, func(c Category, _ int) string { return c.Name })
}

func (r *Registry) Has(name string) bool {
	if name == models.CategoryAll {
		return true
	}
	_, ok := r.index[name]
	return ok
}

func (r *Registry) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

// DefaultRegistry is used when no feeds file is found.
func DefaultRegistry() *Registry {
	return NewRegistry([]Category{
		{Name: "tech", Sources: []models.FeedSource{
			{URL: "https://news.ycombinator.com/rss", Name: "Hacker News"},
			{URL: "https://feeds.arstechnica.com/arstechnica/index", Name: "Ars Technica"},
			{URL: "https://stratechery.com/feed/", Name: "Stratechery"},
			{URL: "https://www.platformer.news/rss", Name: "Platformer"},
			{URL: "https://avc.com/feed/", Name: "AVC - Fred Wilson"},
			{URL: "https://a16z.com/feed/", Name: "Andreessen Horowitz (a16z)"},
			{URL: "https://spectrum.ieee.org/feed", Name: "IEEE Spectrum"},
			{URL: "https://www.technologyreview.com/feed/", Name: "MIT Technology Review"},
			{URL: "https://arxiv.org/rss/cs.AI", Name: "ArXiv AI Papers"},
			{URL: "https://rootsofprogress.org/feed.xml", Name: "The Roots of Progress"},
		}},
		{Name: "philosophy", Sources: []models.FeedSource{
			{URL: "https://dailystoic.com/feed/", Name: "The Daily Stoic"},
			{URL: "https://aeon.co/feed.rss", Name: "Aeon"},
			{URL: "https://www.lesswrong.com/feed.xml", Name: "LessWrong"},
			{URL: "https://www.themarginalian.org/feed/", Name: "The Marginalian (Maria Popova)"},
			{URL: "https://www.samkinsley.com/feed/", Name: "Sam Kinsley (Future of Tech & Society)"},
			{URL: "https://nickbostrom.com/rss.xml", Name: "Nick Bostrom (Superintelligence & AI Risk)"},
		}},
		{Name: "investing", Sources: []models.FeedSource{
			{URL: "https://www.collaborativefund.com/blog/rss/", Name: "Collaborative Fund Blog"},
			{URL: "https://www.epsilontheory.com/feed/", Name: "Epsilon Theory"},
			{URL: "https://feeds.feedburner.com/farnamstreet", Name: "Farnam Street"},
			{URL: "https://nav.al/feed/", Name: "Naval Ravikant"},
			{URL: "https://sacks.substack.com/feed", Name: "David Sacks (All-In Podcast)"},
			{URL: "https://www.bloomberg.com/feed/podcast/money-stuff", Name: "Matt Levine’s Money Stuff"},
		}},
		{Name: "ai", Sources: []models.FeedSource{
			{URL: "https://openai.com/research/rss.xml", Name: "OpenAI Research"},
			{URL: "http://karpathy.github.io/feed.xml", Name: "Andrej Karpathy’s Blog"},
			{URL: "https://towardsdatascience.com/feed", Name: "Towards Data Science"},
			{URL: "https://www.deepmind.com/rss.xml", Name: "DeepMind Blog"},
			{URL: "https://ai.googleblog.com/feeds/posts/default", Name: "Google AI Blog"},
			{URL: "https://www.alignmentforum.org/feed.xml", Name: "AI Alignment Forum"},
			{URL: "https://feeds.feedburner.com/nvidiablog", Name: "NVIDIA AI Blog"},
		}},
		{Name: "art", Sources: []models.FeedSource{
			{URL: "https://www.thisiscolossal.com/feed/", Name: "Colossal Art"},
			{URL: "https://www.artsy.net/rss/news", Name: "Artsy"},
			{URL: "https://99percentinvisible.org/feed/", Name: "99% Invisible"},
			{URL: "https://www.openculture.com/rss", Name: "Open Culture"},
		}},
		{Name: "music", Sources: []models.FeedSource{
			{URL: "https://www.residentadvisor.net/xml/rss/news.xml", Name: "Resident Advisor"},
			{URL: "https://mixmag.net/rss.xml", Name: "Mixmag"},
			{URL: "https://cdm.link/feed/", Name: "Create Digital Music"},
			{URL: "https://www.synthtopia.com/feed/", Name: "Synthtopia"},
			{URL: "https://xlr8r.com/feed/", Name: "XLR8R"},
		}},
	})
}
