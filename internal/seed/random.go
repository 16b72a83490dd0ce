// Package seed fills a database with mock inventory, either randomly
// generated or read from YAML fixtures.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// Options controls random generation.
type Options struct {
	// Owner owns every generated item. It need not be a registered user.
	Owner   string
	Items   int
	Changes int
	// Start is the timestamp of the first change; later ones follow at
	// Step intervals.
	Start time.Time
	Step  time.Duration
	Rand  *rand.Rand
}

// DefaultOptions generates 100 items with 25 changes each, one change a day
// ending today.
func DefaultOptions(owner string) Options {
	return Options{
		Owner:   owner,
		Items:   100,
		Changes: 25,
		Start:   time.Now().AddDate(0, 0, -25),
		Step:    24 * time.Hour,
	}
}

// Result counts what a seed run created.
type Result struct {
	Users   int
	Items   int
	Changes int
}

// Random creates opts.Items items and then opts.Changes rounds of random
// price/quantity changes across all of them.
func Random(ctx context.Context, db *sql.DB, opts Options) (Result, error) {
	var res Result
	if opts.Owner == "" {
		return res, fmt.Errorf("seed owner must not be empty")
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Step <= 0 {
		opts.Step = 24 * time.Hour
	}

	items := make([]*model.Item, 0, opts.Items)
	for i := 0; i < opts.Items; i++ {
		item, err := store.CreateItem(ctx, db, opts.Owner, model.ItemInput{
			Name:        fmt.Sprintf("test %d", i+1),
			Description: "this is a description",
			Price:       randomPrice(r),
			Quantity:    randomQuantity(r),
		})
		if err != nil {
			return res, err
		}
		items = append(items, item)
		res.Items++
	}

	for round := 0; round < opts.Changes; round++ {
		at := opts.Start.Add(time.Duration(round) * opts.Step)
		for _, item := range items {
			h, err := store.AppendHistory(ctx, db, model.ItemHistory{
				ItemID:         item.ID,
				PriceBefore:    item.Price,
				PriceAfter:     randomPrice(r),
				QuantityBefore: item.Quantity,
				QuantityAfter:  randomQuantity(r),
				ChangedAt:      at,
			})
			if err != nil {
				return res, err
			}
			item.Price, item.Quantity = h.PriceAfter, h.QuantityAfter
			res.Changes++
		}
	}

	slog.Info("seeded random inventory", "user", opts.Owner, "items", res.Items, "changes", res.Changes)
	return res, nil
}

// randomPrice returns a price between 0.00 and 10.00 with two decimals.
func randomPrice(r *rand.Rand) decimal.Decimal {
	return decimal.NewFromFloat(r.Float64() * float64(r.IntN(11))).Round(2)
}

func randomQuantity(r *rand.Rand) int {
	return r.IntN(1001)
}
