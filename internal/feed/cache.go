package feed

import "sync"

// majors are pre-seeded symbol mappings that never need a network
// lookup.
var majors = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
	"VRA": "verasity",
}

// SymbolCache is a capacity-bounded symbol -> coin ID map. Seeds are
// pinned; learned entries are evicted in insertion order once the
// capacity is reached. Safe for concurrent use by the conversation
// path and the alert poller.
type SymbolCache struct {
	mu       sync.Mutex
	capacity int
	seeds    map[string]string
	learned  map[string]string
	order    []string
}

// NewSymbolCache creates a cache holding at most capacity learned
// entries on top of the pinned seeds.
func NewSymbolCache(capacity int) *SymbolCache {
	if capacity <= 0 {
		capacity = 256
	}
	seeds := make(map[string]string, len(majors))
	for k, v := range majors {
		seeds[k] = v
	}
	return &SymbolCache{
		capacity: capacity,
		seeds:    seeds,
		learned:  make(map[string]string),
	}
}

// Get returns the cached coin ID for a symbol.
func (c *SymbolCache) Get(symbol string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.seeds[symbol]; ok {
		return id, true
	}
	id, ok := c.learned[symbol]
	return id, ok
}

// Put records a learned mapping, evicting the oldest learned entry
// when full.
func (c *SymbolCache) Put(symbol, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seeds[symbol]; ok {
		return
	}
	if _, ok := c.learned[symbol]; ok {
		c.learned[symbol] = id
		return
	}
	if len(c.learned) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.learned, oldest)
	}
	c.learned[symbol] = id
	c.order = append(c.order, symbol)
}

// Len returns the number of learned entries.
func (c *SymbolCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.learned)
}
