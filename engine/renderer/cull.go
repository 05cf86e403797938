package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// CullTest reports whether a draw may be visible.
// TODO: test the mesh bounds against the view frustum once meshes carry extents.
func CullTest(mesh *metadata.Mesh, transform, view, projection mgl32.Mat4) bool {
	return true
}
