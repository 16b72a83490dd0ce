package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/webventory/internal/charts"
	"github.com/erazemk/webventory/internal/imaging"
	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/store"
)

// insightsData is the data of the insights page.
type insightsData struct {
	PageData
	Items  *store.ItemPage
	Search string
	Report *insights.Report
	// Start and End echo the submitted range, valid or not.
	Start string
	End   string
	// RangeIgnored is set when a submitted range was rejected.
	RangeIgnored bool
}

// InsightsPage handles GET /userInsights and GET /userInsights/{id}/.
func (s *Server) InsightsPage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	data := &insightsData{
		PageData: s.page(r, "Insights"),
		Search:   r.FormValue("q"),
		Start:    r.FormValue("start"),
		End:      r.FormValue("end"),
	}

	page, _ := strconv.Atoi(r.FormValue("page"))
	items, err := store.ListVisibleItems(r.Context(), s.DB, claims.Username, store.ListOptions{
		Search: data.Search,
		Page:   page,
	})
	if err != nil {
		slog.Error("failed to list items", "user", claims.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data.Items = items

	if r.PathValue("id") != "" {
		id, ok := pathID(r)
		if !ok {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}

		rng, ok := insights.ParseRange(data.Start, data.End)
		data.RangeIgnored = !ok && (data.Start != "" || data.End != "")

		report, err := s.Insights.Report(r.Context(), id, claims.Username, rng)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to build insights", "item", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		data.Report = report
		data.Title = "Insights: " + report.Item.Name
	}

	s.Templates.Render(w, "insights.html", data)
}

// ChartImage handles GET /userInsights/{id}/chart/{file}, where file is
// "price.png" or "quantity.png".
func (s *Server) ChartImage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	name, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	kind, err := charts.ParseKind(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	rng, _ := insights.ParseRange(r.FormValue("start"), r.FormValue("end"))

	data, err := s.Insights.Chart(r.Context(), id, claims.Username, kind, rng)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, insights.ErrNotEnoughHistory) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to render chart", "item", id, "kind", kind, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", imaging.PNGMIME)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-cache")
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write chart response", "error", err)
	}
}
