package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// GLTFLoader reads .gltf and .glb files. The triangle primitives of every
// mesh are concatenated into a single mesh; node transforms are ignored.
type GLTFLoader struct{}

func (gl *GLTFLoader) Load(path string) (*metadata.MeshData, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, openError(core.ResourceKindModel, path, err)
	}
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, decodeError(core.ResourceKindModel, path, err)
	}

	mesh := &metadata.MeshData{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	for mi, m := range doc.Meshes {
		for pi, prim := range m.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				core.LogWarn("skipping non triangle primitive %d of mesh %d in `%s`", pi, mi, path)
				continue
			}
			if err := appendPrimitive(doc, prim, mesh); err != nil {
				return nil, decodeError(core.ResourceKindModel, path, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err))
			}
		}
	}
	if len(mesh.Indices) == 0 {
		return nil, decodeError(core.ResourceKindModel, path, fmt.Errorf("no triangle primitives"))
	}
	return mesh, nil
}

func appendPrimitive(doc *gltf.Document, prim *gltf.Primitive, mesh *metadata.MeshData) error {
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			return fmt.Errorf("normals: %w", err)
		}
	}
	var uvs [][2]float32
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return fmt.Errorf("uvs: %w", err)
		}
	}

	base := uint32(len(mesh.Vertices))
	for i, p := range positions {
		v := metadata.Vertex{
			Position: mgl32.Vec3{p[0], p[1], p[2]},
			Normal:   mgl32.Vec3{0, 1, 0},
		}
		if i < len(normals) {
			v.Normal = mgl32.Vec3{normals[i][0], normals[i][1], normals[i][2]}
		}
		if i < len(uvs) {
			v.UV = mgl32.Vec2{uvs[i][0], uvs[i][1]}
		}
		mesh.Vertices = append(mesh.Vertices, v)
	}

	if prim.Indices == nil {
		for i := range positions {
			mesh.Indices = append(mesh.Indices, base+uint32(i))
		}
		return nil
	}
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	if err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	for _, i := range indices {
		if int(i) >= len(positions) {
			return fmt.Errorf("index %d out of range", i)
		}
		mesh.Indices = append(mesh.Indices, base+i)
	}
	return nil
}
