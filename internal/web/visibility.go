package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// candidate is one row of the visibility checklist.
type candidate struct {
	Username string
	Selected bool
	Owner    bool
}

// VisibilityPage handles GET /userInventory/{id}/visibility.
func (s *Server) VisibilityPage(w http.ResponseWriter, r *http.Request) {
	item, _, ok := s.loadItem(w, r)
	if !ok {
		return
	}

	users, err := store.ListUsernames(r.Context(), s.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.Templates.Render(w, "visibility.html", &struct {
		PageData
		Item       *model.Item
		Candidates []candidate
	}{
		PageData:   s.page(r, "Visibility of "+item.Name),
		Item:       item,
		Candidates: candidates(item.Visibility, users),
	})
}

func candidates(v model.Visibility, users []string) []candidate {
	out := make([]candidate, 0, len(users))
	for _, name := range users {
		out = append(out, candidate{
			Username: name,
			Selected: v.Contains(name),
			Owner:    name == v.Owner(),
		})
	}
	return out
}

// VisibilitySubmit handles POST /userInventory/{id}/visibility. The owner is
// always kept; requests from users outside the set change nothing.
func (s *Server) VisibilitySubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	v, err := store.SetVisibility(r.Context(), s.DB, id, claims.Username, r.PostForm["users"])
	switch {
	case errors.Is(err, store.ErrForbidden), errors.Is(err, store.ErrNotFound):
		slog.Warn("refused visibility change", "user", claims.Username, "item", id)
		http.Redirect(w, r, "/userInventory", http.StatusSeeOther)
		return
	case err != nil:
		slog.Error("failed to set visibility", "item", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("item visibility changed", "user", claims.Username, "item", id, "visibility", v.String())
	http.Redirect(w, r, fmt.Sprintf("/userInventory/%d/", id), http.StatusSeeOther)
}
