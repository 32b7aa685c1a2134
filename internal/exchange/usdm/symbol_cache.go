package usdm

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"futures-llm-agent/internal/model"

	"go.etcd.io/bbolt"
)

const symbolBucket = "symbols"

// SymbolCache persists exchange symbol metadata (tick/step size, min
// notional, max leverage) across restarts. It is optional acceleration,
// not correctness-bearing: every value is refetched from the exchange on
// a cache miss, so a nil *SymbolCache (or one backed by an in-memory-only
// store) is a fully valid configuration.
type SymbolCache struct {
	mu sync.RWMutex
	db *bbolt.DB
	// mem shadows the db contents so reads don't need a transaction on
	// the hot path of every snapshot cycle.
	mem map[string]model.Symbol
}

// NewSymbolCache opens (or creates) a bbolt database at dataDir for
// caching symbol metadata.
func NewSymbolCache(dataDir string) (*SymbolCache, error) {
	dbPath := filepath.Join(dataDir, "symbols.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open symbol cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(symbolBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create symbol bucket: %w", err)
	}

	cache := &SymbolCache{db: db, mem: make(map[string]model.Symbol)}
	if err := cache.preload(); err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *SymbolCache) preload() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(symbolBucket))
		return b.ForEach(func(k, v []byte) error {
			var sym model.Symbol
			if err := json.Unmarshal(v, &sym); err != nil {
				return nil // skip malformed records rather than fail startup
			}
			c.mem[string(k)] = sym
			return nil
		})
	})
}

// Get returns a cached symbol's metadata.
func (c *SymbolCache) Get(symbol string) (model.Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sym, ok := c.mem[symbol]
	return sym, ok
}

// Put stores symbol metadata, both in memory and on disk.
func (c *SymbolCache) Put(sym model.Symbol) {
	c.mu.Lock()
	c.mem[sym.Name] = sym
	c.mu.Unlock()

	data, err := json.Marshal(sym)
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(symbolBucket))
		return b.Put([]byte(sym.Name), data)
	})
}

// Close closes the underlying database.
func (c *SymbolCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
