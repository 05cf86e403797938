package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseQueueWaitsForFramesInFlight(t *testing.T) {
	var q releaseQueue
	var order []string

	// released after frames 0 and 1 began
	q.push(2, func() { order = append(order, "mesh") })
	q.push(2, func() { order = append(order, "material") })
	q.push(3, func() { order = append(order, "texture") })

	assert.Equal(t, 0, q.collect(2))
	assert.Equal(t, 2, q.collect(3))
	assert.Equal(t, []string{"mesh", "material"}, order)
	assert.Equal(t, 1, q.len())

	assert.Equal(t, 1, q.collect(4))
	assert.Equal(t, []string{"mesh", "material", "texture"}, order)
	assert.Equal(t, 0, q.collect(5))
}

func TestReleaseQueueFlush(t *testing.T) {
	var q releaseQueue
	ran := 0
	for tag := uint64(0); tag < 4; tag++ {
		q.push(tag*10, func() { ran++ })
	}
	assert.Equal(t, 4, q.flush())
	assert.Equal(t, 4, ran)
	assert.Equal(t, 0, q.len())
	assert.Equal(t, 0, q.flush())
}
