package vulkan

import "sync"

type cacheEntry[T comparable] struct {
	name  string
	value T
	refs  int
}

// refCache shares values by name. Acquire of a cached name adds a
// reference, the last Release destroys the value. An invalidated value is
// dropped from the name index but lives until its last reference goes.
type refCache[T comparable] struct {
	mu      sync.Mutex
	byName  map[string]*cacheEntry[T]
	byValue map[T]*cacheEntry[T]
	destroy func(T)
}

func newRefCache[T comparable](destroy func(T)) *refCache[T] {
	return &refCache[T]{
		byName:  make(map[string]*cacheEntry[T]),
		byValue: make(map[T]*cacheEntry[T]),
		destroy: destroy,
	}
}

// Acquire returns the cached value for name or builds it. Builds are
// serialized so a name is never built twice.
func (c *refCache[T]) Acquire(name string, build func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byName[name]; ok {
		e.refs++
		return e.value, nil
	}
	v, err := build()
	if err != nil {
		var zero T
		return zero, err
	}
	e := &cacheEntry[T]{name: name, value: v, refs: 1}
	c.byName[name] = e
	c.byValue[v] = e
	return v, nil
}

// Release drops one reference to v. It reports whether v was known.
func (c *refCache[T]) Release(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byValue[v]
	if !ok {
		return false
	}
	e.refs--
	if e.refs > 0 {
		return true
	}
	delete(c.byValue, v)
	if current, ok := c.byName[e.name]; ok && current == e {
		delete(c.byName, e.name)
	}
	c.destroy(v)
	return true
}

// Invalidate makes the next Acquire of name build a new value.
func (c *refCache[T]) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byName, name)
}

func (c *refCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byValue)
}

// Drain destroys every value regardless of references.
func (c *refCache[T]) Drain() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.byValue)
	for v := range c.byValue {
		c.destroy(v)
	}
	c.byName = make(map[string]*cacheEntry[T])
	c.byValue = make(map[T]*cacheEntry[T])
	return n
}

// MaterialCache shares materials by name.
type MaterialCache = refCache[*Material]

// NewMaterialCache calls forget with each material right before it is
// destroyed.
func NewMaterialCache(forget func(*Material)) *MaterialCache {
	return newRefCache(func(m *Material) {
		forget(m)
		m.Destroy()
	})
}
