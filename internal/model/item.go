package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a stock entry with a unit price and a quantity on hand.
type Item struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Visibility  Visibility      `json:"visibility"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Worth is the item's price multiplied by its quantity.
func (i Item) Worth() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Owner returns the username the item was created by.
func (i Item) Owner() string {
	return i.Visibility.Owner()
}

// VisibleTo reports whether username may see and edit the item.
func (i Item) VisibleTo(username string) bool {
	return i.Visibility.Contains(username)
}

// ItemHistory records one price/quantity transition of an item.
type ItemHistory struct {
	ID             int64           `json:"id"`
	ItemID         int64           `json:"item_id"`
	PriceBefore    decimal.Decimal `json:"price_before"`
	PriceAfter     decimal.Decimal `json:"price_after"`
	QuantityBefore int             `json:"quantity_before"`
	QuantityAfter  int             `json:"quantity_after"`
	ChangedAt      time.Time       `json:"changed_at"`
}

// ItemInput holds the mutable fields of an item as submitted by a client.
type ItemInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
}

// ErrInvalidNumber is wrapped by ParsePrice and ParseQuantity failures.
var ErrInvalidNumber = errors.New("invalid number")

// MaxNameLength is the longest accepted item name.
const MaxNameLength = 30

// MaxDescriptionLength is the longest accepted item description.
const MaxDescriptionLength = 100

// ParsePrice parses a non-negative decimal price such as "9.99".
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q", ErrInvalidNumber, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: price must not be negative", ErrInvalidNumber)
	}
	return d, nil
}

// ParseQuantity parses a non-negative integer quantity.
func ParseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q", ErrInvalidNumber, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: quantity must not be negative", ErrInvalidNumber)
	}
	return n, nil
}

// ParseItemInput converts raw form values into an ItemInput.
func ParseItemInput(name, description, price, quantity string) (ItemInput, error) {
	in := ItemInput{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
	if err := checkText(in.Name, in.Description); err != nil {
		return in, err
	}

	var err error
	if in.Price, err = ParsePrice(price); err != nil {
		return in, err
	}
	if in.Quantity, err = ParseQuantity(quantity); err != nil {
		return in, err
	}
	return in, nil
}

// Validate checks an input whose price and quantity are already typed, as
// decoded from JSON.
func (in ItemInput) Validate() error {
	if err := checkText(strings.TrimSpace(in.Name), strings.TrimSpace(in.Description)); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidNumber)
	}
	if in.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidNumber)
	}
	return nil
}

func checkText(name, description string) error {
	if name == "" {
		return errors.New("name required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

// TotalWorth sums the worth of all items.
func TotalWorth(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Worth())
	}
	return total
}
