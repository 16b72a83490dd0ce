package web

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/webventory/internal/store"
)

// Home handles GET / and GET /home for visitors who are not logged in.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "home.html", &PageData{Title: "Webventory"})
}

// UserHome handles GET /userHome.
func (s *Server) UserHome(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	page, err := store.ListVisibleItems(r.Context(), s.DB, claims.Username, store.ListOptions{PageSize: 5})
	if err != nil {
		slog.Error("failed to list items for landing page", "user", claims.Username, "error", err)
		page = &store.ItemPage{}
	}

	s.Templates.Render(w, "user_home.html", &struct {
		PageData
		Summary *store.ItemPage
	}{
		PageData: s.page(r, "Home"),
		Summary:  page,
	})
}
