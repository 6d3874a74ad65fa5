package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	c := NewCache("America/Los_Angeles", time.Hour)

	loc, ok := c.Resolve("Europe/Berlin")
	assert.True(t, ok)
	assert.Equal(t, "Europe/Berlin", loc.String())

	// second lookup is served from the cache
	loc, ok = c.Resolve("Europe/Berlin")
	assert.True(t, ok)
	assert.Equal(t, "Europe/Berlin", loc.String())

	loc, ok = c.Resolve("")
	assert.False(t, ok)
	assert.Equal(t, "America/Los_Angeles", loc.String())

	for i := 0; i < 2; i++ {
		loc, ok = c.Resolve("Mars/Olympus_Mons")
		assert.False(t, ok)
		assert.Equal(t, "America/Los_Angeles", loc.String())
	}
}

func TestFallbackToUTC(t *testing.T) {
	c := NewCache("Not/A_Zone", time.Hour)
	assert.Equal(t, time.UTC, c.Fallback())
}
