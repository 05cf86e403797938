package loaders

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadOBJ = `# a unit quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func TestParseOBJQuad(t *testing.T) {
	mesh, err := ParseOBJ("quad", strings.NewReader(quadOBJ))
	require.NoError(t, err)

	assert.Equal(t, "quad", mesh.Name)
	assert.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, mesh.Vertices[0].Normal)
	assert.Equal(t, mgl32.Vec2{0, 1}, mesh.Vertices[0].UV)
	assert.Equal(t, mgl32.Vec2{1, 0}, mesh.Vertices[2].UV)
}

func TestParseOBJNegativeIndicesAndFlatNormals(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"
	mesh, err := ParseOBJ("tri", strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
	for _, v := range mesh.Vertices {
		assert.Equal(t, mgl32.Vec3{0, 0, 1}, v.Normal)
	}
}

func TestParseOBJSharesVertices(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nf 1 2 3\nf 1 3 4\n"
	mesh, err := ParseOBJ("shared", strings.NewReader(src))
	require.NoError(t, err)

	assert.Len(t, mesh.Vertices, 4)
	assert.Len(t, mesh.Indices, 6)
}

func TestParseOBJErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no faces", "v 0 0 0\n"},
		{"short vertex", "v 0 0\n"},
		{"bad number", "v 0 x 0\n"},
		{"two corner face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOBJ(tt.name, strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestOBJLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	loader := &OBJLoader{}

	_, err := loader.Load(filepath.Join(dir, "missing.obj"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
	var resErr *core.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, core.ResourceKindModel, resErr.Kind)

	broken := filepath.Join(dir, "broken.obj")
	require.NoError(t, os.WriteFile(broken, []byte("f 1 2 3\n"), 0o644))
	_, err = loader.Load(broken)
	assert.ErrorIs(t, err, core.ErrResourceDecode)

	good := filepath.Join(dir, "quad.obj")
	require.NoError(t, os.WriteFile(good, []byte(quadOBJ), 0o644))
	mesh, err := loader.Load(good)
	require.NoError(t, err)
	assert.Equal(t, "quad", mesh.Name)
}

func TestGLTFLoader(t *testing.T) {
	doc := gltf.NewDocument()
	positions := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}})
	indices := modeler.WriteIndices(doc, []uint16{0, 1, 2, 0, 2, 3})
	doc.Meshes = []*gltf.Mesh{{
		Name: "quad",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(indices),
			Attributes: map[string]int{gltf.POSITION: positions},
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: "root", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	path := filepath.Join(t.TempDir(), "quad.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))

	mesh, err := (&GLTFLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "quad", mesh.Name)
	assert.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, mesh.Vertices[0].Normal)
}

func TestGLTFLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := (&GLTFLoader{}).Load(filepath.Join(dir, "missing.glb"))
	assert.ErrorIs(t, err, core.ErrResourceNotFound)

	broken := filepath.Join(dir, "broken.gltf")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o644))
	_, err = (&GLTFLoader{}).Load(broken)
	assert.ErrorIs(t, err, core.ErrResourceDecode)
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImageConvertsToRGBA(t *testing.T) {
	rgba, err := DecodeImage(bytes.NewReader(encodePNG(t, 3, 2)))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 3, 2), rgba.Bounds())
	assert.Equal(t, 12, rgba.Stride)
	assert.Equal(t, color.RGBA{R: 2, G: 1, B: 7, A: 255}, rgba.RGBAAt(2, 1))
}

func TestTextureLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checker.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 4, 4), 0o644))

	tex, err := (&TextureLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "checker", tex.Name)
	assert.Equal(t, uint32(4), tex.Width())
	assert.Equal(t, uint32(4), tex.Height())

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = (&TextureLoader{}).Load(bad)
	assert.ErrorIs(t, err, core.ErrResourceDecode)

	_, err = (&TextureLoader{}).Load(filepath.Join(dir, "none.png"))
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
}

func TestShaderLoader(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.spv")
	require.NoError(t, os.WriteFile(good, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}, 0o644))
	data, err := (&ShaderLoader{}).Load(good)
	require.NoError(t, err)
	assert.Len(t, data, 8)

	odd := filepath.Join(dir, "b.spv")
	require.NoError(t, os.WriteFile(odd, []byte{1, 2, 3}, 0o644))
	_, err = (&ShaderLoader{}).Load(odd)
	assert.ErrorIs(t, err, core.ErrResourceDecode)

	_, err = (&ShaderLoader{}).Load(filepath.Join(dir, "c.spv"))
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
}

func TestParseMaterials(t *testing.T) {
	src := `
[base]
vertex = "shaders/base.vert.spv"
fragment = "shaders/base.frag.spv"
texture = "textures/texture.png"

[flat]
vertex = "shaders/base.vert.spv"
fragment = "shaders/flat.frag.spv"
`
	materials, err := ParseMaterials("materials.toml", []byte(src))
	require.NoError(t, err)
	require.Len(t, materials, 2)

	assert.Equal(t, "base", materials["base"].Name)
	assert.Equal(t, "textures/texture.png", materials["base"].Texture)
	assert.Equal(t, "shaders/flat.frag.spv", materials["flat"].FragmentShader)
	assert.Empty(t, materials["flat"].Texture)

	_, err = ParseMaterials("materials.toml", []byte("[base]\nvertex = \"a.spv\"\n"))
	assert.ErrorIs(t, err, core.ErrResourceDecode)

	_, err = ParseMaterials("materials.toml", []byte("[base"))
	assert.ErrorIs(t, err, core.ErrResourceDecode)
}
