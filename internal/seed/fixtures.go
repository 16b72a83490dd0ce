package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// Fixtures is the YAML document accepted by Load.
type Fixtures struct {
	Users []UserFixture `yaml:"users"`
	Items []ItemFixture `yaml:"items"`
}

type UserFixture struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type ItemFixture struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Quantity    int    `yaml:"quantity"`
	// UserVisibility uses the comma-terminated form, owner first:
	// "alice,bob,".
	UserVisibility string          `yaml:"user_visibility"`
	History        []ChangeFixture `yaml:"history"`
}

type ChangeFixture struct {
	ChangedAt time.Time `yaml:"changed_at"`
	Price     string    `yaml:"price"`
	Quantity  int       `yaml:"quantity"`
}

// ParseFixtures decodes and validates a fixtures document.
func ParseFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}

	for i, it := range f.Items {
		if model.ParseVisibility(it.UserVisibility).Owner() == "" {
			return nil, fmt.Errorf("item %d (%s): user_visibility must name an owner", i+1, it.Name)
		}
	}
	return &f, nil
}

// Load creates the users and items described by f. Item history is replayed
// in order, each change starting from the previous values.
func Load(ctx context.Context, db *sql.DB, f *Fixtures) (Result, error) {
	var res Result

	for _, u := range f.Users {
		if err := model.ValidateUsername(u.Username); err != nil {
			return res, fmt.Errorf("user %q: %w", u.Username, err)
		}
		if err := model.ValidatePassword(u.Password); err != nil {
			return res, fmt.Errorf("user %q: %w", u.Username, err)
		}
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return res, err
		}
		if _, err := store.CreateUser(ctx, db, u.Username, u.Email, hash); err != nil {
			return res, fmt.Errorf("user %q: %w", u.Username, err)
		}
		res.Users++
	}

	for _, it := range f.Items {
		v := model.ParseVisibility(it.UserVisibility)
		in, err := model.ParseItemInput(it.Name, it.Description, it.Price, fmt.Sprint(it.Quantity))
		if err != nil {
			return res, fmt.Errorf("item %q: %w", it.Name, err)
		}

		item, err := store.CreateItem(ctx, db, v.Owner(), in)
		if err != nil {
			return res, err
		}
		if err := store.ReplaceVisibility(ctx, db, item.ID, v); err != nil {
			return res, err
		}
		res.Items++

		price, quantity := in.Price, in.Quantity
		for _, c := range it.History {
			next, err := model.ParsePrice(c.Price)
			if err != nil {
				return res, fmt.Errorf("item %q history: %w", it.Name, err)
			}
			if c.Quantity < 0 {
				return res, fmt.Errorf("item %q history: %w: quantity must not be negative", it.Name, model.ErrInvalidNumber)
			}
			_, err = store.AppendHistory(ctx, db, model.ItemHistory{
				ItemID:         item.ID,
				PriceBefore:    price,
				PriceAfter:     next,
				QuantityBefore: quantity,
				QuantityAfter:  c.Quantity,
				ChangedAt:      c.ChangedAt,
			})
			if err != nil {
				return res, err
			}
			price, quantity = next, c.Quantity
			res.Changes++
		}
	}

	slog.Info("loaded fixtures", "users", res.Users, "items", res.Items, "changes", res.Changes)
	return res, nil
}
