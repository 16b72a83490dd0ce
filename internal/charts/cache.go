package charts

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/erazemk/webventory/internal/imaging"
	"github.com/erazemk/webventory/internal/metrics"
)

// keyPrefix namespaces chart entries inside the badger store.
const keyPrefix = "chart/"

// Key identifies one cached chart.
type Key struct {
	ItemID int64
	// Version is the item's history version the chart was drawn from. A
	// new change moves readers to a new key, so a chart rendered from older
	// history is never served again.
	Version  int64
	Username string
	// Range fingerprints the date range the chart covers.
	Range string
	Kind  Kind
}

func (k Key) bytes() []byte {
	return []byte(itemPrefix(k.ItemID) + strconv.FormatInt(k.Version, 10) + "/" +
		k.Username + "/" + k.Range + "/" + string(k.Kind))
}

func itemPrefix(itemID int64) string {
	return keyPrefix + strconv.FormatInt(itemID, 10) + "/"
}

// CacheOptions configures OpenCache.
type CacheOptions struct {
	// Dir is where badger keeps its files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// TTL bounds how long an entry lives. Zero keeps entries until they
	// are invalidated.
	TTL     time.Duration
	Metrics *metrics.Metrics
}

// Cache stores rendered charts. Entries for an item are invalidated
// whenever its history changes, and a user's entries are purged on logout.
type Cache struct {
	db      *badger.DB
	ttl     time.Duration
	metrics *metrics.Metrics
}

// OpenCache opens (or creates) a chart cache.
func OpenCache(opts CacheOptions) (*Cache, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening chart cache: %w", err)
	}
	return &Cache{db: db, ttl: opts.TTL, metrics: opts.Metrics}, nil
}

// Close flushes and closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns a cached chart. The boolean is false on a miss, including
// when a stored entry is not a valid PNG.
func (c *Cache) Get(key Key) ([]byte, bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.metrics.ChartCacheMiss()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading chart: %w", err)
	}
	if !imaging.IsPNG(data) {
		slog.Warn("discarding corrupt chart cache entry", "key", string(key.bytes()))
		c.metrics.ChartCacheMiss()
		return nil, false, nil
	}

	c.metrics.ChartCacheHit()
	return data, true, nil
}

// Put stores a chart, replacing any previous entry under key.
func (c *Cache) Put(key Key, data []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key.bytes(), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("storing chart: %w", err)
	}
	return nil
}

// GetOrRender returns the cached chart for key, rendering and storing it
// with render on a miss. A failure to store is logged, not returned.
func (c *Cache) GetOrRender(key Key, render func() ([]byte, error)) ([]byte, error) {
	data, ok, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}

	data, err = render()
	if err != nil {
		return nil, err
	}
	c.metrics.ChartRendered()

	if err := c.Put(key, data); err != nil {
		slog.Error("failed to cache chart", "key", string(key.bytes()), "error", err)
	}
	return data, nil
}

// InvalidateItem drops every cached chart of an item and returns how many
// entries were removed.
func (c *Cache) InvalidateItem(itemID int64) (int, error) {
	return c.deleteMatching([]byte(itemPrefix(itemID)), func([]byte) bool { return true })
}

// PurgeUser drops every cached chart rendered for username and returns how
// many entries were removed.
func (c *Cache) PurgeUser(username string) (int, error) {
	return c.deleteMatching([]byte(keyPrefix), func(key []byte) bool {
		k, ok := parseKey(key)
		return ok && k.Username == username
	})
}

// deleteMatching removes keys under prefix accepted by match.
func (c *Cache) deleteMatching(prefix []byte, match func([]byte) bool) (int, error) {
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if match(key) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning chart cache: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("deleting chart: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("deleting charts: %w", err)
	}
	return len(keys), nil
}

// parseKey splits a stored key back into its parts.
func parseKey(raw []byte) (Key, bool) {
	s := string(raw)
	rest, ok := strings.CutPrefix(s, keyPrefix)
	if !ok {
		return Key{}, false
	}

	parts := strings.SplitN(rest, "/", 5)
	if len(parts) != 5 {
		return Key{}, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Key{}, false
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Key{}, false
	}
	return Key{ItemID: id, Version: version, Username: parts[2], Range: parts[3], Kind: Kind(parts[4])}, true
}
