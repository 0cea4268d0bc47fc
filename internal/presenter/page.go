package presenter

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/samber/lo"

	"github.com/johnrirwin/feeddash/internal/models"
)

const (
	LoadingMessage = "Loading feeds..."
	EmptyMessage   = "No articles available. Try refreshing."
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

// CategoryOption is one entry in the category selector.
type CategoryOption struct {
	Name     string
	Label    string
	Selected bool
}

// Page is everything the dashboard template needs.
type Page struct {
	Cards      []Card
	Categories []CategoryOption
	Category   string
	Dark       bool
	Message    string
	UpdatedAt  string
	FromCache  bool
}

// PageInput carries the state a page is built from.
type PageInput struct {
	Articles   []models.Article
	Categories []string
	Selected   string
	Dark       bool
	UpdatedAt  time.Time
	FromCache  bool
	// Loading is set while the first aggregation has not finished yet.
	Loading bool
}

func (p *Presenter) Page(in PageInput) Page {
	selected := in.Selected
	if selected == "" {
		selected = models.CategoryAll
	}

	names := append([]string{models.CategoryAll}, in.Categories...)
	options := lo.Map(names, func(name string, _ int) CategoryOption {
		return CategoryOption{Name: name, Label: CategoryLabel(name), Selected: name == selected}
	})

	page := Page{
		Cards:      p.Cards(in.Articles),
		Categories: options,
		Category:   selected,
		Dark:       in.Dark,
		FromCache:  in.FromCache,
	}
	if !in.UpdatedAt.IsZero() {
		page.UpdatedAt = in.UpdatedAt.In(p.loc).Format("Jan 2, 2006 15:04")
	}

	switch {
	case in.Loading:
		page.Message = LoadingMessage
	case len(page.Cards) == 0:
		page.Message = EmptyMessage
	}
	return page
}

// Render writes the dashboard HTML.
func Render(w io.Writer, page Page) error {
	if err := pageTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}
