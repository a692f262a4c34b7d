package respcache

import "fmt"

type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"maxSize"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hitRate"`
	Utilization float64 `json:"utilization"`
}

type Health struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
	Stats   Stats    `json:"stats"`
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:        c.lru.Len(),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Utilization: float64(c.lru.Len()) / float64(c.maxSize),
	}

	lookups := c.hits + c.misses
	if lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}

	return s
}

// Health reports the cache unhealthy when it is nearly full or when the hit
// rate stays low after enough lookups to be meaningful.
func (c *Cache[V]) Health() Health {
	s := c.Stats()
	h := Health{Healthy: true, Stats: s}

	if s.Utilization > maxUtilization {
		h.Healthy = false
		h.Issues = append(h.Issues, fmt.Sprintf("utilization %.0f%% above %.0f%%", s.Utilization*100, maxUtilization*100))
	}

	if s.Hits+s.Misses >= minLookupsForHR && s.HitRate < minHitRate {
		h.Healthy = false
		h.Issues = append(h.Issues, fmt.Sprintf("hit rate %.0f%% below %.0f%%", s.HitRate*100, minHitRate*100))
	}

	return h
}
