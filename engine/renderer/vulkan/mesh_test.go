package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func triangle() []metadata.Vertex {
	return []metadata.Vertex{
		{Position: mgl32.Vec3{0, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}, UV: mgl32.Vec2{0.5, 0}},
		{Position: mgl32.Vec3{-1, -1, 0}, Normal: mgl32.Vec3{0, 0, 1}, UV: mgl32.Vec2{0, 1}},
		{Position: mgl32.Vec3{1, -1, 0}, Normal: mgl32.Vec3{0, 0, 1}, UV: mgl32.Vec2{1, 1}},
	}
}

func TestValidateGeometry(t *testing.T) {
	assert.NoError(t, validateGeometry(triangle(), []uint32{0, 1, 2}))

	assert.ErrorIs(t, validateGeometry(nil, []uint32{0, 1, 2}), core.ErrResourceDecode)
	assert.ErrorIs(t, validateGeometry(triangle(), nil), core.ErrResourceDecode)
	assert.ErrorIs(t, validateGeometry(triangle(), []uint32{0, 1}), core.ErrResourceDecode)
	assert.ErrorIs(t, validateGeometry(triangle(), []uint32{0, 1, 3}), core.ErrResourceDecode)
}

func TestGeometryBytes(t *testing.T) {
	vertices := triangle()
	vb, ib := geometryBytes(vertices, []uint32{0, 1, 2})

	assert.Len(t, vb, 3*32)
	assert.Len(t, ib, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ib[8:]))

	// second vertex: position x, normal z, uv u
	second := vb[32:64]
	assert.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(second[0:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(second[20:])))
	assert.Equal(t, float32(0), math.Float32frombits(binary.LittleEndian.Uint32(second[24:])))
}
