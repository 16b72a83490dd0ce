package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/webventory/internal/store"
)

// VisibilityHandler handles item visibility endpoints.
type VisibilityHandler struct {
	DB *sql.DB
}

type visibilityRequest struct {
	Users []string `json:"users"`
}

type visibilityResponse struct {
	ItemID     int64    `json:"item_id"`
	Owner      string   `json:"owner"`
	Visibility []string `json:"visibility"`
	// Candidates lists every registered username.
	Candidates []string `json:"candidates,omitempty"`
}

// Get handles GET /api/items/{id}/visibility.
func (h *VisibilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	item, err := store.GetVisibleItem(r.Context(), h.DB, id, claims.Username)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to get item", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	users, err := store.ListUsernames(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	jsonResponse(w, http.StatusOK, visibilityResponse{
		ItemID:     id,
		Owner:      item.Owner(),
		Visibility: item.Visibility,
		Candidates: users,
	})
}

// Update handles PUT /api/items/{id}/visibility. The owner is always kept;
// unknown usernames are dropped.
func (h *VisibilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := store.SetVisibility(r.Context(), h.DB, id, claims.Username, req.Users)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, store.ErrForbidden):
		slog.Warn("refused visibility change", "user", claims.Username, "item", id)
		jsonError(w, http.StatusForbidden, "not allowed to change visibility of this item")
		return
	case err != nil:
		slog.Error("failed to set visibility", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to set visibility")
		return
	}

	slog.Info("item visibility changed", "user", claims.Username, "item", id, "visibility", v.String())
	jsonResponse(w, http.StatusOK, visibilityResponse{
		ItemID:     id,
		Owner:      v.Owner(),
		Visibility: []string(v),
	})
}
