package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/webventory/internal/model"
)

func getVisibility(ctx context.Context, q querier, itemID int64) (model.Visibility, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT username FROM item_visibility WHERE item_id = ? ORDER BY position`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting visibility: %w", err)
	}
	defer rows.Close()

	var v model.Visibility
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning visibility: %w", err)
		}
		v = append(v, name)
	}
	return v, rows.Err()
}

// attachVisibility loads the visibility set of every item in place.
func attachVisibility(ctx context.Context, q querier, items []model.Item) error {
	for i := range items {
		v, err := getVisibility(ctx, q, items[i].ID)
		if err != nil {
			return err
		}
		items[i].Visibility = v
	}
	return nil
}

func writeVisibility(ctx context.Context, q querier, itemID int64, v model.Visibility) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM item_visibility WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clearing visibility: %w", err)
	}
	for pos, name := range v {
		_, err := q.ExecContext(ctx,
			`INSERT INTO item_visibility (item_id, username, position) VALUES (?, ?, ?)`,
			itemID, name, pos,
		)
		if err != nil {
			return fmt.Errorf("adding %q to visibility: %w", name, err)
		}
	}
	return nil
}

// SetVisibility replaces an item's visibility set on behalf of username, who
// must already be in it. The owner always stays first; selected names that
// are not registered users are dropped, as are repeats.
func SetVisibility(ctx context.Context, db *sql.DB, itemID int64, username string, selected []string) (model.Visibility, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getVisibility(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, ErrNotFound
	}
	if !current.Contains(username) {
		return nil, ErrForbidden
	}

	known, err := listUsernames(ctx, tx)
	if err != nil {
		return nil, err
	}

	next := current.Rebuild(selected, known)
	if err := writeVisibility(ctx, tx, itemID, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing visibility: %w", err)
	}
	return next, nil
}

// ReplaceVisibility stores v as the item's visibility set without any
// membership checks. It is meant for seeding and imports.
func ReplaceVisibility(ctx context.Context, db *sql.DB, itemID int64, v model.Visibility) error {
	if len(v) == 0 {
		return fmt.Errorf("visibility of item %d must name an owner", itemID)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeVisibility(ctx, tx, itemID, v); err != nil {
		return err
	}
	return tx.Commit()
}
