// Package presenter turns aggregated articles into display cards and renders
// the dashboard page.
package presenter

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/johnrirwin/feeddash/internal/models"
)

// DescriptionLimit is the number of runes kept from a description on a card.
const DescriptionLimit = 180

const dateLayout = "Jan 2, 2006"

// Card is one rendered article.
type Card struct {
	Title         string `json:"title"`
	Link          string `json:"link"`
	Description   string `json:"description"`
	Date          string `json:"date"`
	Category      string `json:"category"`
	CategoryLabel string `json:"categoryLabel"`
	FeedName      string `json:"feedName"`
}

// Presenter holds the display settings shared by all cards.
type Presenter struct {
	loc *time.Location
}

// New returns a presenter that renders dates in loc. A nil loc means local time.
func New(loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.Local
	}
	return &Presenter{loc: loc}
}

// Cards keeps input order; articles are never re-sorted by date.
func (p *Presenter) Cards(articles []models.Article) []Card {
	cards := make([]Card, 0, len(articles))
	for _, a := range articles {
		cards = append(cards, p.Card(a))
	}
	return cards
}

func (p *Presenter) Card(a models.Article) Card {
	return Card{
		Title:         a.Title,
		Link:          a.Link,
		Description:   Truncate(PlainText(a.Description), DescriptionLimit),
		Date:          p.FormatDate(a.PubDate),
		Category:      a.Category,
		CategoryLabel: CategoryLabel(a.Category),
		FeedName:      a.FeedName,
	}
}

// FormatDate renders a parseable pubDate as a short local date and returns
// anything else unchanged.
func (p *Presenter) FormatDate(pubDate string) string {
	t, ok := models.Article{PubDate: pubDate}.PublishedAt()
	if !ok {
		return pubDate
	}
	return t.In(p.loc).Format(dateLayout)
}

// PlainText drops markup from a feed description and collapses whitespace.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Truncate cuts s to limit runes and appends "..." when anything was cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:limit]), " ") + "..."
}

// CategoryLabel turns a category name like "ai" or "all" into a heading.
func CategoryLabel(name string) string {
	switch name {
	case "":
		return ""
	case "ai":
		return "AI"
	case models.CategoryAll:
		return "All Categories"
	}
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(name)
}
