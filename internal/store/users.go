package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/erazemk/webventory/internal/model"
)

const userColumns = `id, username, email, password_hash, created_at`

// CreateUser creates a new user. A taken username and/or email is reported
// as ErrDuplicateUsername and/or ErrDuplicateEmail (joined when both apply).
func CreateUser(ctx context.Context, db *sql.DB, username, email, passwordHash string) (*model.User, error) {
	email = strings.TrimSpace(email)

	if err := checkUserAvailable(ctx, db, username, email); err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, passwordHash,
	)
	if err != nil {
		// Lost a race with a concurrent signup.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if err := checkUserAvailable(ctx, db, username, email); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// checkUserAvailable reports which of username and email are already taken.
func checkUserAvailable(ctx context.Context, db *sql.DB, username, email string) error {
	var usernameTaken, emailTaken bool
	err := db.QueryRowContext(ctx,
		`SELECT
		     EXISTS (SELECT 1 FROM users WHERE username = ?),
		     EXISTS (SELECT 1 FROM users WHERE email = ?)`,
		username, email,
	).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return fmt.Errorf("checking user availability: %w", err)
	}

	var errs []error
	if usernameTaken {
		errs = append(errs, ErrDuplicateUsername)
	}
	if emailTaken {
		errs = append(errs, ErrDuplicateEmail)
	}
	return errors.Join(errs...)
}

// GetUser returns a user by ID, or nil if it does not exist.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns a user by username, or nil if it does not exist.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	))
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// listUsers returns all users ordered by username.
func listUsers(ctx context.Context, q querier) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListUsernames returns every username ordered alphabetically.
func ListUsernames(ctx context.Context, db *sql.DB) ([]string, error) {
	return listUsernames(ctx, db)
}

func listUsernames(ctx context.Context, q querier) ([]string, error) {
	users, err := listUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	return names, nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
