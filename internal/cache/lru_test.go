package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeClock(c *LRUCache[string]) *time.Time {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[string](4, time.Minute)
	now := fakeClock(c)

	c.Set("bank|2025-03-01|2025-03-10", "rows")
	got, ok := c.Get("bank|2025-03-01|2025-03-10")
	assert.True(t, ok)
	assert.Equal(t, "rows", got)

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get("bank|2025-03-01|2025-03-10")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)
	fakeClock(c)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheClearAndClean(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := fakeClock(c)

	c.Set("a", "1")
	*now = now.Add(30 * time.Second)
	c.Set("b", "2")
	*now = now.Add(45 * time.Second)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	c.Set("c", "3")
	assert.Equal(t, 1, c.Size())
}

func TestManagerCleanNow(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := fakeClock(c)
	c.Set("a", "1")
	*now = now.Add(time.Hour)

	m := NewManager(nil)
	m.Register(c)
	m.Register(nil)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
