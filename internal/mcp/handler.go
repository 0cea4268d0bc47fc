package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/presenter"
	"github.com/johnrirwin/feeddash/internal/sources"
)

const defaultArticleLimit = 20

type Handler struct {
	agg    *aggregator.Aggregator
	logger *logging.Logger
}

func NewHandler(agg *aggregator.Aggregator, logger *logging.Logger) *Handler {
	return &Handler{
		agg:    agg,
		logger: logger,
	}
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type GetArticlesParams struct {
	Limit int    `json:"limit"`
	Feed  string `json:"feed"`
}

type RefreshParams struct {
	Category string `json:"category"`
}

func (h *Handler) GetTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_articles",
			Description: "Get the articles currently on the dashboard, in feed order.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"limit": {
						"type": "integer",
						"description": "Maximum number of articles to return (default: 20, 0 for all)"
					},
					"feed": {
						"type": "string",
						"description": "Only return articles from this feed name"
					}
				}
			}`),
		},
		{
			Name:        "list_categories",
			Description: "List the feed categories and the sources in each.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
		{
			Name:        "refresh_feeds",
			Description: "Fetch every feed in a category and replace the dashboard list.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"category": {
						"type": "string",
						"description": "Category to fetch, or \"all\" (default)"
					}
				}
			}`),
		},
	}
}

func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (interface{}, error) {
	switch name {
	case "get_articles":
		return h.handleGetArticles(arguments)
	case "list_categories":
		return h.handleListCategories()
	case "refresh_feeds":
		return h.handleRefresh(ctx, arguments)
	default:
		return nil, &ToolError{Message: "Unknown tool: " + name}
	}
}

func (h *Handler) handleGetArticles(arguments json.RawMessage) (interface{}, error) {
	params := GetArticlesParams{Limit: defaultArticleLimit}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, &ToolError{Message: "Invalid arguments: " + err.Error()}
		}
	}

	snap := h.agg.Current()
	articles := snap.Articles
	if params.Feed != "" {
		articles = lo.Filter(articles, func(a models.Article, _ int) bool { return a.FeedName == params.Feed })
	}
	total := len(articles)
	if params.Limit > 0 && len(articles) > params.Limit {
		articles = articles[:params.Limit]
	}

	resp := models.ArticlesResponse{
		Articles:  articles,
		Category:  snap.Category,
		Count:     len(articles),
		Empty:     total == 0,
		FetchedAt: snap.UpdatedAt,
	}
	if resp.Empty {
		resp.Articles = []models.Article{}
		resp.Message = presenter.EmptyMessage
	}
	return resp, nil
}

func (h *Handler) handleListCategories() (interface{}, error) {
	registry := h.agg.Registry()
	categories := lo.Map(registry.Categories(), func(c sources.Category, _ int) models.CategoryInfo {
		return models.CategoryInfo{
			Name:        c.Name,
			Label:       presenter.CategoryLabel(c.Name),
			SourceCount: len(c.Sources),
			Sources:     c.Sources,
		}
	})
	return map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	}, nil
}

func (h *Handler) handleRefresh(ctx context.Context, arguments json.RawMessage) (interface{}, error) {
	var params RefreshParams
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, &ToolError{Message: "Invalid arguments: " + err.Error()}
		}
	}
	if params.Category == "" {
		params.Category = models.CategoryAll
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	articles, err := h.agg.Aggregate(ctx, params.Category)
	if errors.Is(err, aggregator.ErrEmptyResult) {
		return map[string]interface{}{
			"status":   "empty",
			"category": params.Category,
			"message":  presenter.EmptyMessage,
		}, nil
	}
	if err != nil {
		return nil, &ToolError{Message: "Failed to refresh: " + err.Error()}
	}

	return map[string]interface{}{
		"status":   "success",
		"category": params.Category,
		"count":    len(articles),
	}, nil
}

type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}
