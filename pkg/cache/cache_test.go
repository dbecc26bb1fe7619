package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("room-a", 1)
	v, ok := c.Get("room-a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("room-b")
	assert.False(t, ok)
}

func TestCache_ExpiredEntryInvisible(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.SetWithTTL("room-a", 1, -time.Second)
	_, ok := c.Get("room-a")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestCache_SetRefreshesDeadline(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.SetWithTTL("room-a", 1, -time.Second)
	c.Set("room-a", 2)

	v, ok := c.Get("room-a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_InvalidateByPrefix(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("room-a", 1)
	c.Set("room-b", 2)
	c.Set("peer-x", 3)

	c.Invalidate("room-")

	_, ok := c.Get("room-a")
	assert.False(t, ok)
	_, ok = c.Get("peer-x")
	assert.True(t, ok)
}

func TestCache_InvalidateEmptyReapsOnlyExpired(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("live", 1)
	c.SetWithTTL("dead", 2, -time.Second)

	c.Invalidate("")

	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("live")
	assert.True(t, ok)
}

func TestCache_StopIsIdempotent(t *testing.T) {
	c := NewCache(time.Minute)
	c.Stop()
	c.Stop()
}
