package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/johnrirwin/feeddash/internal/aggregator"
	"github.com/johnrirwin/feeddash/internal/logging"
	"github.com/johnrirwin/feeddash/internal/models"
	"github.com/johnrirwin/feeddash/internal/presenter"
)

// handleDashboard renders the current list. Choosing a different category
// aggregates it before rendering.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.agg.Current()
	selected := r.URL.Query().Get("category")

	if selected != "" && selected != snap.Category {
		articles, err := s.aggregate(r.Context(), selected)
		switch {
		case errors.Is(err, aggregator.ErrEmptyResult):
			s.renderDashboard(r.Context(), w, presenter.PageInput{Selected: selected})
			return
		case err != nil:
			http.Error(w, "failed to load feeds", http.StatusInternalServerError)
			return
		}
		snap = aggregator.Snapshot{Articles: articles, Category: selected, UpdatedAt: time.Now()}
	}

	if selected == "" {
		selected = snap.Category
	}

	s.renderDashboard(r.Context(), w, presenter.PageInput{
		Articles:  snap.Articles,
		Selected:  selected,
		UpdatedAt: snap.UpdatedAt,
		FromCache: snap.FromCache,
		Loading:   !s.agg.Settled(),
	})
}

// handleDashboardRefresh serves the refresh button.
func (s *Server) handleDashboardRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	category := categoryParam(r.Form)
	_, status, err := s.refreshCategory(r.Context(), category)
	switch {
	case status != http.StatusOK:
		http.Error(w, err.Error(), status)
	case errors.Is(err, aggregator.ErrEmptyResult):
		s.renderDashboard(r.Context(), w, presenter.PageInput{Selected: category})
	default:
		http.Redirect(w, r, "/?category="+url.QueryEscape(category), http.StatusSeeOther)
	}
}

// handleDashboardTheme serves the theme toggle button.
func (s *Server) handleDashboardTheme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.theme.Toggle(r.Context()); err != nil {
		s.logger.Error("Failed to toggle theme", logging.WithField("error", err.Error()))
		http.Error(w, "failed to store theme", http.StatusInternalServerError)
		return
	}

	target := "/"
	if ref := r.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Path == "/" {
			target = u.RequestURI()
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) renderDashboard(ctx context.Context, w http.ResponseWriter, in presenter.PageInput) {
	dark, err := s.theme.Dark(ctx)
	if err != nil {
		s.logger.Warn("Failed to read theme", logging.WithField("error", err.Error()))
	}
	in.Dark = dark
	in.Categories = s.agg.Registry().Names()
	if in.Selected == "" {
		in.Selected = models.CategoryAll
	}

	var buf bytes.Buffer
	if err := presenter.Render(&buf, s.presenter.Page(in)); err != nil {
		s.logger.Error("Failed to render dashboard", logging.WithField("error", err.Error()))
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
