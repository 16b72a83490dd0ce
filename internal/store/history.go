package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/webventory/internal/model"
)

const historyColumns = `id, item_id, price_before, price_after, quantity_before, quantity_after, changed_at`

// AppendHistory records a price/quantity change for an existing item and
// moves the item's stored price and quantity to the after values, in one
// transaction. A zero ChangedAt is replaced with the current time.
func AppendHistory(ctx context.Context, db *sql.DB, h model.ItemHistory) (*model.ItemHistory, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET quantity = ?, price = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		h.QuantityAfter, h.PriceAfter.String(), h.ItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item stock: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	recorded, err := insertHistory(ctx, tx, h)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing history: %w", err)
	}
	return recorded, nil
}

func insertHistory(ctx context.Context, q querier, h model.ItemHistory) (*model.ItemHistory, error) {
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now()
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO item_history (item_id, price_before, price_after, quantity_before, quantity_after, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ItemID, h.PriceBefore.String(), h.PriceAfter.String(),
		h.QuantityBefore, h.QuantityAfter, formatTime(h.ChangedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("recording history: %w", err)
	}

	h.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting history id: %w", err)
	}
	h.ChangedAt = h.ChangedAt.UTC().Truncate(time.Millisecond)
	return &h, nil
}

// ListHistory returns an item's history in insertion order, limited to
// changes at or after from and strictly before to. A zero bound is open.
func ListHistory(ctx context.Context, db *sql.DB, itemID int64, from, to time.Time) ([]model.ItemHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM item_history WHERE item_id = ?`
	args := []any{itemID}
	if !from.IsZero() {
		query += ` AND changed_at >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND changed_at < ?`
		args = append(args, formatTime(to))
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var history []model.ItemHistory
	for rows.Next() {
		var h model.ItemHistory
		if err := rows.Scan(&h.ID, &h.ItemID, &h.PriceBefore, &h.PriceAfter,
			&h.QuantityBefore, &h.QuantityAfter, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// HistoryVersion returns the ID of an item's latest history row, or 0 if it
// has none. It grows with every recorded change.
func HistoryVersion(ctx context.Context, db *sql.DB, itemID int64) (int64, error) {
	var version int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM item_history WHERE item_id = ?`, itemID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("getting history version: %w", err)
	}
	return version, nil
}
