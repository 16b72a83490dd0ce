package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// inventoryData is the data of the inventory list page.
type inventoryData struct {
	PageData
	Items    *store.ItemPage
	Search   string
	Selected *model.Item
	History  []model.ItemHistory
	// Form re-fills the create form after a validation error.
	Form itemForm
}

type itemForm struct {
	Name        string
	Description string
	Price       string
	Quantity    string
}

func formFromRequest(r *http.Request) itemForm {
	return itemForm{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Price:       r.FormValue("price"),
		Quantity:    r.FormValue("quantity"),
	}
}

func (f itemForm) parse() (model.ItemInput, error) {
	return model.ParseItemInput(f.Name, f.Description, f.Price, f.Quantity)
}

// renderInventory renders the list page, optionally with one item selected.
func (s *Server) renderInventory(w http.ResponseWriter, r *http.Request, status int, data *inventoryData) {
	claims := GetWebClaims(r.Context())
	data.PageData = s.page(r, "Inventory")
	data.Search = r.FormValue("q")

	if r.FormValue("deleteError") != "" {
		data.Error = "You are not allowed to delete that item."
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

	s.Templates.RenderStatus(w, status, "inventory.html", data)
}

// InventoryPage handles GET /userInventory and GET /userInventory/{id}/.
func (s *Server) InventoryPage(w http.ResponseWriter, r *http.Request) {
	data := &inventoryData{}

	if r.PathValue("id") != "" {
		item, history, ok := s.loadItem(w, r)
		if !ok {
			return
		}
		data.Selected, data.History = item, history
	}

	s.renderInventory(w, r, http.StatusOK, data)
}

// loadItem fetches the {id} item and its full history for the current
// user, writing an error response and returning false on failure.
func (s *Server) loadItem(w http.ResponseWriter, r *http.Request) (*model.Item, []model.ItemHistory, bool) {
	claims := GetWebClaims(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, nil, false
	}

	item, err := store.GetVisibleItem(r.Context(), s.DB, id, claims.Username)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "item not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		slog.Error("failed to get item", "item", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, nil, false
	}

	history, err := store.ListHistory(r.Context(), s.DB, id, time.Time{}, time.Time{})
	if err != nil {
		slog.Error("failed to get item history", "item", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, nil, false
	}
	return item, history, true
}

// InventoryCreateSubmit handles POST /userInventory.
func (s *Server) InventoryCreateSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	form := formFromRequest(r)
	in, err := form.parse()
	if err != nil {
		data := &inventoryData{Form: form}
		s.renderInventory(w, r, http.StatusBadRequest, withError(data, err))
		return
	}

	item, err := store.CreateItem(r.Context(), s.DB, claims.Username, in)
	if err != nil {
		slog.Error("failed to create item", "user", claims.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("item created", "user", claims.Username, "item", item.ID, "name", item.Name)
	http.Redirect(w, r, "/userInventory", http.StatusSeeOther)
}

func withError(data *inventoryData, err error) *inventoryData {
	data.Error = err.Error()
	return data
}

// editData is the data of the item edit page.
type editData struct {
	PageData
	Item    *model.Item
	History []model.ItemHistory
	Form    itemForm
}

// InventoryEditPage handles GET /userInventory/{id}/edit.
func (s *Server) InventoryEditPage(w http.ResponseWriter, r *http.Request) {
	item, history, ok := s.loadItem(w, r)
	if !ok {
		return
	}

	s.Templates.Render(w, "inventory_edit.html", &editData{
		PageData: s.page(r, "Edit "+item.Name),
		Item:     item,
		History:  history,
		Form: itemForm{
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price.StringFixed(2),
			Quantity:    strconv.Itoa(item.Quantity),
		},
	})
}

// InventoryEditSubmit handles POST /userInventory/{id}/edit.
func (s *Server) InventoryEditSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	item, history, ok := s.loadItem(w, r)
	if !ok {
		return
	}

	form := formFromRequest(r)
	in, err := form.parse()
	if err != nil {
		data := &editData{
			PageData: s.page(r, "Edit "+item.Name),
			Item:     item,
			History:  history,
			Form:     form,
		}
		data.Error = err.Error()
		s.Templates.RenderStatus(w, http.StatusBadRequest, "inventory_edit.html", data)
		return
	}

	change, err := store.UpdateItem(r.Context(), s.DB, item.ID, claims.Username, in)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to update item", "item", item.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if change != nil {
		s.Metrics.HistoryAppended()
		s.Insights.Invalidate(item.ID)
		slog.Info("item stock changed", "user", claims.Username, "item", item.ID,
			"price", change.PriceAfter.String(), "quantity", change.QuantityAfter)
	} else {
		slog.Info("item updated", "user", claims.Username, "item", item.ID)
	}
	http.Redirect(w, r, fmt.Sprintf("/userInventory/%d/", item.ID), http.StatusSeeOther)
}

// InventoryDeleteSubmit handles POST /userInventory/{id}/delete. Users
// outside the item's visibility set are sent back with deleteError set.
func (s *Server) InventoryDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	err := store.DeleteItem(r.Context(), s.DB, id, claims.Username)
	switch {
	case errors.Is(err, store.ErrForbidden), errors.Is(err, store.ErrNotFound):
		slog.Warn("refused item delete", "user", claims.Username, "item", id)
		http.Redirect(w, r, "/userInventory?deleteError=1", http.StatusSeeOther)
		return
	case err != nil:
		slog.Error("failed to delete item", "item", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.Insights.Invalidate(id)
	slog.Info("item deleted", "user", claims.Username, "item", id)
	http.Redirect(w, r, "/userInventory", http.StatusSeeOther)
}
