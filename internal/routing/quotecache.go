package routing

import (
	"strings"
	"sync"
)

// SupportedQuoteCache remembers chain and token pairs that have historically
// produced a successful quote. The router consults it for bootstrap
// chain-support checks before every adapter has declared its chains. Entries
// grow monotonically; Clear is administrative.
type SupportedQuoteCache struct {
	mu      sync.RWMutex
	entries map[uint64]*tokenSets
}

type tokenSets struct {
	buy  map[string]bool // lower-hex token addresses
	sell map[string]bool
}

// NewSupportedQuoteCache builds an empty cache.
func NewSupportedQuoteCache() *SupportedQuoteCache {
	return &SupportedQuoteCache{entries: make(map[uint64]*tokenSets)}
}

// Record notes a successful quote for the pair.
func (c *SupportedQuoteCache) Record(chainID uint64, sellToken, buyToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[chainID]
	if !ok {
		e = &tokenSets{buy: make(map[string]bool), sell: make(map[string]bool)}
		c.entries[chainID] = e
	}
	e.sell[strings.ToLower(sellToken)] = true
	e.buy[strings.ToLower(buyToken)] = true
}

// HasChain reports whether any pair on the chain ever quoted successfully.
func (c *SupportedQuoteCache) HasChain(chainID uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[chainID] != nil
}

// HasPair reports whether the exact pair quoted successfully before.
func (c *SupportedQuoteCache) HasPair(chainID uint64, sellToken, buyToken string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[chainID]
	if !ok {
		return false
	}
	return e.sell[strings.ToLower(sellToken)] && e.buy[strings.ToLower(buyToken)]
}

// Clear drops every entry.
func (c *SupportedQuoteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*tokenSets)
}
