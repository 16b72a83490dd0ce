package seed

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/webventory/internal/db"
	"github.com/erazemk/webventory/internal/store"
)

func TestRandom(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := Random(ctx, database, Options{
		Owner:   "alice",
		Items:   3,
		Changes: 4,
		Start:   start,
		Step:    24 * time.Hour,
		Rand:    rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Items: 3, Changes: 12}, res)

	page, err := store.ListVisibleItems(ctx, database, "alice", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	for _, item := range page.Items {
		history, err := store.ListHistory(ctx, database, item.ID, time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, history, 4)

		assert.True(t, history[0].ChangedAt.Equal(start))
		for i := 1; i < len(history); i++ {
			// Each change starts where the previous one ended.
			assert.True(t, history[i].PriceBefore.Equal(history[i-1].PriceAfter))
			assert.Equal(t, history[i-1].QuantityAfter, history[i].QuantityBefore)
		}

		last := history[len(history)-1]
		assert.True(t, item.Price.Equal(last.PriceAfter))
		assert.Equal(t, last.QuantityAfter, item.Quantity)

		assert.True(t, item.Price.LessThanOrEqual(decimal.NewFromInt(10)))
		assert.True(t, item.Quantity >= 0 && item.Quantity <= 1000)
	}
}

func TestRandomRequiresOwner(t *testing.T) {
	_, err := Random(context.Background(), db.NewTestDB(t), Options{Items: 1})
	assert.Error(t, err)
}

const fixtures = `
users:
  - username: alice
    email: alice@example.com
    password: password123
  - username: bob
    email: bob@example.com
    password: password456
items:
  - name: Widget
    description: A small widget
    price: "9.99"
    quantity: 5
    user_visibility: "alice,bob,"
    history:
      - changed_at: 2024-01-01T10:00:00Z
        price: "12.50"
        quantity: 5
      - changed_at: 2024-01-02T10:00:00Z
        price: "12.50"
        quantity: 3
  - name: Gadget
    price: "1"
    quantity: 1
    user_visibility: "bob,"
`

func TestLoadFixtures(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	f, err := ParseFixtures(strings.NewReader(fixtures))
	require.NoError(t, err)

	res, err := Load(ctx, database, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 2, Items: 2, Changes: 2}, res)

	alice, err := store.ListVisibleItems(ctx, database, "alice", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, alice.Items, 1)

	widget := alice.Items[0]
	assert.Equal(t, "alice,bob,", widget.Visibility.String())
	assert.Equal(t, 3, widget.Quantity)
	assert.True(t, widget.Price.Equal(decimal.RequireFromString("12.50")))

	history, err := store.ListHistory(ctx, database, widget.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].PriceBefore.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, 5, history[1].QuantityBefore)
	assert.Equal(t, 3, history[1].QuantityAfter)

	bob, err := store.ListVisibleItems(ctx, database, "bob", store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, bob.Total)
}

func TestParseFixturesRejectsBadInput(t *testing.T) {
	_, err := ParseFixtures(strings.NewReader("items:\n  - name: Orphan\n    price: \"1\"\n"))
	assert.Error(t, err, "item without owner")

	_, err = ParseFixtures(strings.NewReader("widgets: []\n"))
	assert.Error(t, err, "unknown field")
}

func TestLoadFixturesRejectsBadPrice(t *testing.T) {
	f := &Fixtures{Items: []ItemFixture{{Name: "Bad", Price: "abc", UserVisibility: "alice,"}}}
	_, err := Load(context.Background(), db.NewTestDB(t), f)
	assert.Error(t, err)
}
