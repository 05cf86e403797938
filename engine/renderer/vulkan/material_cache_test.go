package vulkan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	name      string
	destroyed bool
}

func newThingCache() (*refCache[*cachedThing], *int) {
	destroyed := 0
	c := newRefCache(func(t *cachedThing) {
		t.destroyed = true
		destroyed++
	})
	return c, &destroyed
}

func TestRefCacheSharesByName(t *testing.T) {
	c, destroyed := newThingCache()
	builds := 0
	build := func() (*cachedThing, error) {
		builds++
		return &cachedThing{name: "base"}, nil
	}

	a, err := c.Acquire("base", build)
	require.NoError(t, err)
	b, err := c.Acquire("base", build)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, builds)

	assert.True(t, c.Release(a))
	assert.False(t, a.destroyed)
	assert.True(t, c.Release(b))
	assert.True(t, a.destroyed)
	assert.Equal(t, 1, *destroyed)
	assert.Equal(t, 0, c.Len())

	_, err = c.Acquire("base", build)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}

func TestRefCacheBuildError(t *testing.T) {
	c, _ := newThingCache()
	boom := errors.New("boom")
	v, err := c.Acquire("broken", func() (*cachedThing, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, v)
	assert.Equal(t, 0, c.Len())
}

func TestRefCacheInvalidate(t *testing.T) {
	c, destroyed := newThingCache()
	old, err := c.Acquire("base", func() (*cachedThing, error) { return &cachedThing{name: "old"}, nil })
	require.NoError(t, err)

	c.Invalidate("base")
	fresh, err := c.Acquire("base", func() (*cachedThing, error) { return &cachedThing{name: "new"}, nil })
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 2, c.Len())

	// the old value lives until its holder lets go
	assert.True(t, c.Release(old))
	assert.True(t, old.destroyed)
	assert.False(t, fresh.destroyed)

	again, err := c.Acquire("base", func() (*cachedThing, error) { return nil, errors.New("not rebuilt") })
	require.NoError(t, err)
	assert.Same(t, fresh, again)
	assert.Equal(t, 1, *destroyed)
}

func TestRefCacheReleaseUnknown(t *testing.T) {
	c, destroyed := newThingCache()
	assert.False(t, c.Release(&cachedThing{}))
	assert.Equal(t, 0, *destroyed)
}

func TestRefCacheDrain(t *testing.T) {
	c, destroyed := newThingCache()
	for _, name := range []string{"a", "b", "c"} {
		_, err := c.Acquire(name, func() (*cachedThing, error) { return &cachedThing{name: name}, nil })
		require.NoError(t, err)
	}
	_, err := c.Acquire("a", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Drain())
	assert.Equal(t, 3, *destroyed)
	assert.Equal(t, 0, c.Len())
}
