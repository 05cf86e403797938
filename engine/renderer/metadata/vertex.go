package metadata

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief The vertex layout every pipeline consumes:
 * position at location 0, normal at 1, uv at 2.
 */
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

const (
	VertexSize           = uint32(unsafe.Sizeof(Vertex{}))
	VertexPositionOffset = uint32(unsafe.Offsetof(Vertex{}.Position))
	VertexNormalOffset   = uint32(unsafe.Offsetof(Vertex{}.Normal))
	VertexUVOffset       = uint32(unsafe.Offsetof(Vertex{}.UV))
)

/**
 * @brief CPU side geometry, as produced by the model loaders
 * before it is uploaded.
 */
type MeshData struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// Extents returns the axis aligned bounds of the vertex positions.
func (m *MeshData) Extents() (min, max mgl32.Vec3) {
	if len(m.Vertices) == 0 {
		return
	}
	min = m.Vertices[0].Position
	max = m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			if v.Position[i] < min[i] {
				min[i] = v.Position[i]
			}
			if v.Position[i] > max[i] {
				max[i] = v.Position[i]
			}
		}
	}
	return
}
