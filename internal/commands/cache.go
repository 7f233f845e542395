package commands

import (
	"sync"
	"time"
)

type CacheItem struct {
	ChartData  []byte
	Caption    string
	Expiration time.Time
}

// ChartCache keeps rendered charts for a short time per symbol.
type ChartCache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	items map[string]*CacheItem
}

func NewChartCache(ttl time.Duration) *ChartCache {
	return &ChartCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*CacheItem),
	}
}

func (c *ChartCache) Get(symbol string) (*CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[symbol]
	if !found {
		return nil, false
	}
	if !c.now().Before(item.Expiration) {
		delete(c.items, symbol)
		return nil, false
	}
	return item, true
}

func (c *ChartCache) Set(symbol string, chartData []byte, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[symbol] = &CacheItem{
		ChartData:  chartData,
		Caption:    caption,
		Expiration: c.now().Add(c.ttl),
	}
}
