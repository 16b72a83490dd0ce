// Package insights builds price and quantity reports from item history.
package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erazemk/webventory/internal/charts"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// MinHistory is the fewest history rows that produce charts.
const MinHistory = 2

// ErrNotEnoughHistory is returned for chart requests on an item with fewer
// than MinHistory changes in range.
var ErrNotEnoughHistory = errors.New("not enough history to chart")

// Series extracts the points of one chart kind from history, in order.
// Prices come from price_after and quantities from quantity_after. Zero
// values are skipped unless keepZero is set.
func Series(history []model.ItemHistory, kind charts.Kind, keepZero bool) []charts.Point {
	var points []charts.Point
	for _, h := range history {
		var v float64
		switch kind {
		case charts.KindPrice:
			v = h.PriceAfter.InexactFloat64()
		case charts.KindQuantity:
			v = float64(h.QuantityAfter)
		}
		if v == 0 && !keepZero {
			continue
		}
		points = append(points, charts.Point{At: h.ChangedAt, Value: v})
	}
	return points
}

// ChartRef points a page at a chart image.
type ChartRef struct {
	Kind charts.Kind
	URL  string
}

// Report is the insights view of one item.
type Report struct {
	Item    *model.Item
	Range   Range
	History []model.ItemHistory
	// Charts is empty when there is too little history to plot.
	Charts []ChartRef
}

// ChartURL returns the path serving a chart of itemID over r.
func ChartURL(itemID int64, kind charts.Kind, r Range) string {
	u := fmt.Sprintf("/userInsights/%d/chart/%s.png", itemID, kind)
	if q := r.Query().Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// Service answers insights requests against the store, rendering charts
// through the cache.
type Service struct {
	DB             *sql.DB
	Cache          *charts.Cache
	Renderer       charts.Renderer
	KeepZeroValues bool
}

// Report loads an item visible to username and its history over r.
func (s *Service) Report(ctx context.Context, itemID int64, username string, r Range) (*Report, error) {
	item, err := store.GetVisibleItem(ctx, s.DB, itemID, username)
	if err != nil {
		return nil, err
	}

	from, to := r.Bounds()
	history, err := store.ListHistory(ctx, s.DB, itemID, from, to)
	if err != nil {
		return nil, err
	}

	rep := &Report{Item: item, Range: r, History: history}
	if len(history) >= MinHistory {
		for _, kind := range charts.Kinds {
			rep.Charts = append(rep.Charts, ChartRef{Kind: kind, URL: ChartURL(itemID, kind, r)})
		}
	}
	return rep, nil
}

// Chart returns the PNG chart of one kind for an item visible to username,
// rendering it on a cache miss.
func (s *Service) Chart(ctx context.Context, itemID int64, username string, kind charts.Kind, r Range) ([]byte, error) {
	if _, err := store.GetVisibleItem(ctx, s.DB, itemID, username); err != nil {
		return nil, err
	}

	version, err := store.HistoryVersion(ctx, s.DB, itemID)
	if err != nil {
		return nil, err
	}

	key := charts.Key{ItemID: itemID, Version: version, Username: username, Range: r.Fingerprint(), Kind: kind}
	return s.Cache.GetOrRender(key, func() ([]byte, error) {
		from, to := r.Bounds()
		history, err := store.ListHistory(ctx, s.DB, itemID, from, to)
		if err != nil {
			return nil, err
		}
		if len(history) < MinHistory {
			return nil, ErrNotEnoughHistory
		}
		return s.Renderer.Render(kind, Series(history, kind, s.KeepZeroValues))
	})
}

// Invalidate drops cached charts of an item after its history changed or
// it was deleted. Failures are logged. Keys carry the history version, so
// a chart left behind is never served and only waits for its TTL.
func (s *Service) Invalidate(itemID int64) {
	n, err := s.Cache.InvalidateItem(itemID)
	if err != nil {
		slog.Error("failed to invalidate charts", "item", itemID, "error", err)
		return
	}
	if n > 0 {
		slog.Debug("invalidated charts", "item", itemID, "count", n)
	}
}

// Forget drops every chart cached for username.
func (s *Service) Forget(username string) {
	n, err := s.Cache.PurgeUser(username)
	if err != nil {
		slog.Error("failed to purge charts", "user", username, "error", err)
		return
	}
	if n > 0 {
		slog.Debug("purged charts", "user", username, "count", n)
	}
}
