package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/webventory/internal/store"
)

type adjustRequest struct {
	Delta int `json:"delta"`
}

// Adjust handles POST /api/items/{id}/adjust. It moves the item's quantity
// by delta and records the change in history.
func (h *ItemsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		jsonError(w, http.StatusBadRequest, "non-zero delta required")
		return
	}

	change, err := store.AdjustStock(r.Context(), h.DB, id, claims.Username, req.Delta)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, store.ErrInsufficientStock):
		jsonError(w, http.StatusConflict, "insufficient stock")
		return
	case err != nil:
		slog.Error("failed to adjust stock", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to adjust stock")
		return
	}

	h.Metrics.HistoryAppended()
	h.Insights.Invalidate(id)
	slog.Info("item stock adjusted", "user", claims.Username, "item", id, "delta", req.Delta,
		"quantity", change.QuantityAfter)
	jsonResponse(w, http.StatusOK, change)
}
