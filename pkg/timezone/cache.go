// Package timezone resolves IANA zone names with a fallback chain and caches
// the loaded locations.
package timezone

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache memoizes time.LoadLocation, which reads the zoneinfo database on every
// call.
type Cache struct {
	cache    *cache.Cache
	fallback *time.Location
}

// NewCache builds a cache whose fallback is defaultZone, or UTC when
// defaultZone itself does not load.
func NewCache(defaultZone string, ttl time.Duration) *Cache {
	fallback, err := time.LoadLocation(defaultZone)
	if err != nil || defaultZone == "" {
		fallback = time.UTC
	}
	return &Cache{
		cache:    cache.New(ttl, 2*ttl),
		fallback: fallback,
	}
}

// Fallback is the location used for empty or unknown names.
func (c *Cache) Fallback() *time.Location {
	return c.fallback
}

// Resolve returns the named location and whether it was found. Empty and
// unknown names resolve to the fallback with ok=false.
func (c *Cache) Resolve(name string) (*time.Location, bool) {
	if name == "" {
		return c.fallback, false
	}
	if v, found := c.cache.Get(name); found {
		if loc, ok := v.(*time.Location); ok && loc != nil {
			return loc, true
		}
		return c.fallback, false
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		// remember misses too, a bad name stays bad
		c.cache.SetDefault(name, (*time.Location)(nil))
		return c.fallback, false
	}
	c.cache.SetDefault(name, loc)
	return loc, true
}
