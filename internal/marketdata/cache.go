// Package marketdata holds a venue's latest tickers and order books.
package marketdata

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const numShards = 32

type shard struct {
	mu      sync.RWMutex
	tickers map[string]domain.Ticker
	books   map[string]domain.OrderBook
}

// Cache maps symbol to the latest Ticker and OrderBook. Keys are spread over
// fixed shards so writers on different symbols do not contend. Every write
// replaces the whole value for its key; entries are never deleted.
type Cache struct {
	shards [numShards]*shard
}

// New creates an empty Cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{
			tickers: make(map[string]domain.Ticker),
			books:   make(map[string]domain.OrderBook),
		}
	}
	return c
}

func (c *Cache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return c.shards[h.Sum32()%numShards]
}

// SetTicker replaces the ticker for symbol.
func (c *Cache) SetTicker(symbol string, t domain.Ticker) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.tickers[symbol] = t
	s.mu.Unlock()
}

// UpdateTicker applies fn to the current ticker (zero value and false when
// absent) and stores the result. fn runs under the shard lock so successive
// partial updates for one symbol apply in call order.
func (c *Cache) UpdateTicker(symbol string, fn func(prev domain.Ticker, ok bool) domain.Ticker) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	prev, ok := s.tickers[symbol]
	s.tickers[symbol] = fn(prev, ok)
	s.mu.Unlock()
}

// Ticker returns the latest ticker for symbol.
func (c *Cache) Ticker(symbol string) (domain.Ticker, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	t, ok := s.tickers[symbol]
	s.mu.RUnlock()
	return t, ok
}

// SetOrderBook replaces the order book for symbol. The caller must not retain
// or mutate the level slices afterwards.
func (c *Cache) SetOrderBook(symbol string, ob domain.OrderBook) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.books[symbol] = ob
	s.mu.Unlock()
}

// UpdateOrderBook applies fn to the current book and stores the result. fn
// must return a new book rather than modify prev in place (see
// domain.OrderBook.ApplyDelta). Deltas for one symbol apply in call order.
func (c *Cache) UpdateOrderBook(symbol string, fn func(prev domain.OrderBook, ok bool) domain.OrderBook) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	prev, ok := s.books[symbol]
	s.books[symbol] = fn(prev, ok)
	s.mu.Unlock()
}

// OrderBook returns a copy of the latest book for symbol.
func (c *Cache) OrderBook(symbol string) (domain.OrderBook, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	ob, ok := s.books[symbol]
	s.mu.RUnlock()
	if !ok {
		return domain.OrderBook{}, false
	}
	return ob.Clone(), true
}

// Symbols returns every symbol with a cached ticker, sorted.
func (c *Cache) Symbols() []string {
	var out []string
	for _, s := range c.shards {
		s.mu.RLock()
		for sym := range s.tickers {
			out = append(out, sym)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// Len returns the number of cached tickers and books.
func (c *Cache) Len() (tickers, books int) {
	for _, s := range c.shards {
		s.mu.RLock()
		tickers += len(s.tickers)
		books += len(s.books)
		s.mu.RUnlock()
	}
	return tickers, books
}
