package graph

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/botaas/flowengine/pkg/domain"
)

// Cache memoizes compiled graphs keyed by flow id and revision, so edits
// (which bump UpdatedAt) are picked up without explicit invalidation.
// Invalid flows are never cached.
type Cache struct {
	lru *expirable.LRU[string, *Graph]
}

// NewCache creates a cache holding up to size graphs for at most ttl each.
// A zero ttl disables expiry.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{lru: expirable.NewLRU[string, *Graph](size, nil, ttl)}
}

// Get returns the compiled graph for flow, compiling on a miss.
func (c *Cache) Get(flow *domain.Flow) (*Graph, error) {
	key := cacheKey(flow)
	if g, ok := c.lru.Get(key); ok {
		return g, nil
	}
	g, err := Compile(flow)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, g)
	return g, nil
}

// Len reports the number of cached graphs.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached graph.
func (c *Cache) Purge() { c.lru.Purge() }

func cacheKey(flow *domain.Flow) string {
	return fmt.Sprintf("%s/%s@%d", flow.BotID, flow.ID, flow.UpdatedAt.UnixNano())
}
