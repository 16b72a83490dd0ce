package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/webventory/internal/model"
)

// DefaultPageSize is the number of items shown per inventory page.
const DefaultPageSize = 10

const itemColumns = `i.id, i.name, i.description, i.quantity, i.price, i.created_at, i.updated_at`

// CreateItem creates a new item owned by owner, who is also its only viewer.
func CreateItem(ctx context.Context, db *sql.DB, owner string, in model.ItemInput) (*model.Item, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO items (name, description, quantity, price) VALUES (?, ?, ?, ?)`,
		in.Name, in.Description, in.Quantity, in.Price.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	if err := writeVisibility(ctx, tx, id, model.NewVisibility(owner)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID with its visibility set, or nil if it does
// not exist.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	return getItem(ctx, db, id)
}

func getItem(ctx context.Context, q querier, id int64) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	item.Visibility, err = getVisibility(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetVisibleItem returns an item only if username is in its visibility set.
// Missing and hidden items are both reported as ErrNotFound.
func GetVisibleItem(ctx context.Context, db *sql.DB, id int64, username string) (*model.Item, error) {
	item, err := GetItem(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.VisibleTo(username) {
		return nil, ErrNotFound
	}
	return item, nil
}

// ListOptions narrows and pages an item listing.
type ListOptions struct {
	// Search is a case-insensitive substring of the item name.
	Search string
	// Page is 1-based; values below 1 select the first page.
	Page     int
	PageSize int
}

// ItemPage is one page of items visible to a user.
type ItemPage struct {
	Items    []model.Item
	Page     int
	PageSize int
	// Total counts all items matching the search, across pages.
	Total int
	// TotalWorth sums price times quantity over every item visible to the
	// user, regardless of search and paging.
	TotalWorth decimal.Decimal
}

// Pages returns the number of pages, at least 1.
func (p ItemPage) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// HasPrev reports whether a previous page exists.
func (p ItemPage) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p ItemPage) HasNext() bool { return p.Page < p.Pages() }

// escapeLike escapes LIKE wildcards so the search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListVisibleItems returns a page of items visible to username ordered by ID,
// filtered by an optional name search.
func ListVisibleItems(ctx context.Context, db *sql.DB, username string, opts ListOptions) (*ItemPage, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	page := &ItemPage{Page: opts.Page, PageSize: opts.PageSize}

	where := `EXISTS (SELECT 1 FROM item_visibility v WHERE v.item_id = i.id AND v.username = ?)`
	args := []any{username}
	if s := strings.TrimSpace(opts.Search); s != "" {
		where += ` AND i.name LIKE '%' || ? || '%' ESCAPE '\'`
		args = append(args, escapeLike(s))
	}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items i WHERE `+where, args...,
	).Scan(&page.Total)
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE `+where+` ORDER BY i.id LIMIT ? OFFSET ?`,
		append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		page.Items = append(page.Items, *item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing items: %w", err)
	}
	rows.Close()

	if err := attachVisibility(ctx, db, page.Items); err != nil {
		return nil, err
	}

	page.TotalWorth, err = VisibleWorth(ctx, db, username)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// VisibleWorth sums price times quantity over every item username can see.
func VisibleWorth(ctx context.Context, db *sql.DB, username string) (decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT i.price, i.quantity
		 FROM items i
		 JOIN item_visibility v ON v.item_id = i.id
		 WHERE v.username = ?`, username,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing item worth: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.Price, &item.Quantity); err != nil {
			return decimal.Zero, fmt.Errorf("scanning item worth: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("summing item worth: %w", err)
	}
	return model.TotalWorth(items), nil
}

// UpdateItem overwrites an item's fields on behalf of username. If the price
// or quantity changes, one history row capturing both before/after pairs is
// appended in the same transaction and returned; otherwise the returned
// history is nil.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, username string, in model.ItemInput) (*model.ItemHistory, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.VisibleTo(username) {
		return nil, ErrNotFound
	}

	var history *model.ItemHistory
	if !current.Price.Equal(in.Price) || current.Quantity != in.Quantity {
		history, err = insertHistory(ctx, tx, model.ItemHistory{
			ItemID:         id,
			PriceBefore:    current.Price,
			PriceAfter:     in.Price,
			QuantityBefore: current.Quantity,
			QuantityAfter:  in.Quantity,
			ChangedAt:      time.Now(),
		})
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, quantity = ?, price = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Name, in.Description, in.Quantity, in.Price.String(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item update: %w", err)
	}
	return history, nil
}

// AdjustStock changes an item's quantity by delta on behalf of username and
// records the change in history. The price is carried over unchanged.
func AdjustStock(ctx context.Context, db *sql.DB, id int64, username string, delta int) (*model.ItemHistory, error) {
	if delta == 0 {
		return nil, fmt.Errorf("adjusting stock: delta must not be zero")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.VisibleTo(username) {
		return nil, ErrNotFound
	}

	quantity := current.Quantity + delta
	if quantity < 0 {
		return nil, ErrInsufficientStock
	}

	history, err := insertHistory(ctx, tx, model.ItemHistory{
		ItemID:         id,
		PriceBefore:    current.Price,
		PriceAfter:     current.Price,
		QuantityBefore: current.Quantity,
		QuantityAfter:  quantity,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, quantity, id,
	)
	if err != nil {
		return nil, fmt.Errorf("adjusting stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stock adjustment: %w", err)
	}
	return history, nil
}

// DeleteItem deletes an item and, by cascade, its history and visibility.
// Only users in the item's visibility set may delete it; anyone else gets
// ErrForbidden and nothing changes.
func DeleteItem(ctx context.Context, db *sql.DB, id int64, username string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := getItem(ctx, tx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrNotFound
	}
	if !item.VisibleTo(username) {
		return ErrForbidden
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item delete: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}
