package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/metrics"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// maxPageSize caps the page_size query parameter.
const maxPageSize = 100

// ItemsHandler handles item CRUD endpoints.
type ItemsHandler struct {
	DB       *sql.DB
	Insights *insights.Service
	Metrics  *metrics.Metrics
}

type itemRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (req itemRequest) input() (model.ItemInput, error) {
	in := model.ItemInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	return in, in.Validate()
}

type itemResponse struct {
	model.Item
	Worth decimal.Decimal `json:"worth"`
}

func newItemResponse(item *model.Item) itemResponse {
	if item.Visibility == nil {
		item.Visibility = model.Visibility{}
	}
	return itemResponse{Item: *item, Worth: item.Worth()}
}

type listResponse struct {
	Items      []itemResponse  `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	Pages      int             `json:"pages"`
	Total      int             `json:"total"`
	TotalWorth decimal.Decimal `json:"total_worth"`
}

// itemID parses the {id} path value, writing a 400 on failure.
func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("page_size"))
	if size > maxPageSize {
		size = maxPageSize
	}

	result, err := store.ListVisibleItems(r.Context(), h.DB, claims.Username, store.ListOptions{
		Search:   query.Get("q"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		slog.Error("failed to list items", "user", claims.Username, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	resp := listResponse{
		Items:      make([]itemResponse, 0, len(result.Items)),
		Page:       result.Page,
		PageSize:   result.PageSize,
		Pages:      result.Pages(),
		Total:      result.Total,
		TotalWorth: result.TotalWorth,
	}
	for i := range result.Items {
		resp.Items = append(resp.Items, newItemResponse(&result.Items[i]))
	}
	jsonResponse(w, http.StatusOK, resp)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, claims.Username, in)
	if err != nil {
		slog.Error("failed to create item", "user", claims.Username, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	slog.Info("item created", "user", claims.Username, "item", item.ID, "name", item.Name)
	jsonResponse(w, http.StatusCreated, newItemResponse(item))
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	jsonResponse(w, http.StatusOK, newItemResponse(item))
}

// Update handles PUT /api/items/{id}. A changed price or quantity is
// recorded in the item's history.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	change, err := store.UpdateItem(r.Context(), h.DB, id, claims.Username, in)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to update item", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}
	if change != nil {
		h.Metrics.HistoryAppended()
		h.Insights.Invalidate(id)
		slog.Info("item stock changed", "user", claims.Username, "item", id,
			"price", change.PriceAfter.String(), "quantity", change.QuantityAfter)
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil || item == nil {
		slog.Error("failed to reload item", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	jsonResponse(w, http.StatusOK, newItemResponse(item))
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	err := store.DeleteItem(r.Context(), h.DB, id, claims.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, store.ErrForbidden):
		slog.Warn("refused item delete", "user", claims.Username, "item", id)
		jsonError(w, http.StatusForbidden, "not allowed to delete this item")
		return
	case err != nil:
		slog.Error("failed to delete item", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	h.Insights.Invalidate(id)
	slog.Info("item deleted", "user", claims.Username, "item", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

type historyResponse struct {
	ItemID       int64               `json:"item_id"`
	Start        string              `json:"start,omitempty"`
	End          string              `json:"end,omitempty"`
	RangeIgnored bool                `json:"range_ignored,omitempty"`
	History      []model.ItemHistory `json:"history"`
}

// GetHistory handles GET /api/items/{id}/history?start=&end=. An invalid
// range falls back to the full history.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	if _, err := store.GetVisibleItem(r.Context(), h.DB, id, claims.Username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "item not found")
			return
		}
		slog.Error("failed to get item", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	start, end := r.URL.Query().Get("start"), r.URL.Query().Get("end")
	rng, valid := insights.ParseRange(start, end)

	from, to := rng.Bounds()
	history, err := store.ListHistory(r.Context(), h.DB, id, from, to)
	if err != nil {
		slog.Error("failed to get item history", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item history")
		return
	}
	if history == nil {
		history = []model.ItemHistory{}
	}

	resp := historyResponse{
		ItemID:       id,
		RangeIgnored: !valid && (start != "" || end != ""),
		History:      history,
	}
	if valid {
		resp.Start, resp.End = start, end
	}
	jsonResponse(w, http.StatusOK, resp)
}
