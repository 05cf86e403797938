package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// OBJLoader reads Wavefront .obj files. Every object and group is merged
// into one mesh; materials and smoothing groups are ignored.
type OBJLoader struct{}

func (ol *OBJLoader) Load(path string) (*metadata.MeshData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(core.ResourceKindModel, path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mesh, err := ParseOBJ(name, f)
	if err != nil {
		return nil, decodeError(core.ResourceKindModel, path, err)
	}
	return mesh, nil
}

// objIndex is a resolved face corner, 0 based, -1 when absent.
type objIndex struct {
	v, vt, vn int
}

// ParseOBJ triangulates polygons as fans and shares vertices whose
// position, uv and normal indices are all equal.
func ParseOBJ(name string, r io.Reader) (*metadata.MeshData, error) {
	var (
		positions []mgl32.Vec3
		normals   []mgl32.Vec3
		uvs       []mgl32.Vec2
	)
	mesh := &metadata.MeshData{Name: name}
	seen := make(map[objIndex]uint32)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)

		switch fields[0] {
		case "v":
			v, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			positions = append(positions, mgl32.Vec3{v[0], v[1], v[2]})
		case "vn":
			v, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			normals = append(normals, mgl32.Vec3{v[0], v[1], v[2]}.Normalize())
		case "vt":
			v, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			// obj puts the uv origin bottom left
			uvs = append(uvs, mgl32.Vec2{v[0], 1 - v[1]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			corners := make([]objIndex, 0, len(fields)-1)
			for _, field := range fields[1:] {
				idx, err := parseFaceIndex(field, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				corners = append(corners, idx)
			}

			faceNormal := flatNormal(positions[corners[0].v], positions[corners[1].v], positions[corners[2].v])
			for i := 1; i+1 < len(corners); i++ {
				for _, c := range [3]objIndex{corners[0], corners[i], corners[i+1]} {
					if id, ok := seen[c]; ok {
						mesh.Indices = append(mesh.Indices, id)
						continue
					}
					vert := metadata.Vertex{Position: positions[c.v], Normal: faceNormal}
					if c.vn >= 0 {
						vert.Normal = normals[c.vn]
					}
					if c.vt >= 0 {
						vert.UV = uvs[c.vt]
					}
					id := uint32(len(mesh.Vertices))
					mesh.Vertices = append(mesh.Vertices, vert)
					seen[c] = id
					mesh.Indices = append(mesh.Indices, id)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(mesh.Indices) == 0 {
		return nil, fmt.Errorf("no faces")
	}
	return mesh, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseFaceIndex reads v, v/vt, v//vn or v/vt/vn. Negative indices count
// back from the last element defined so far.
func parseFaceIndex(field string, nv, nvt, nvn int) (objIndex, error) {
	idx := objIndex{v: -1, vt: -1, vn: -1}
	parts := strings.Split(field, "/")
	if len(parts) > 3 {
		return idx, fmt.Errorf("bad face index `%s`", field)
	}
	targets := []*int{&idx.v, &idx.vt, &idx.vn}
	counts := []int{nv, nvt, nvn}
	for i, p := range parts {
		if p == "" {
			if i == 0 {
				return idx, fmt.Errorf("bad face index `%s`", field)
			}
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return idx, fmt.Errorf("bad face index `%s`: %w", field, err)
		}
		switch {
		case n > 0:
			n--
		case n < 0:
			n = counts[i] + n
		default:
			return idx, fmt.Errorf("face index 0 in `%s`", field)
		}
		if n < 0 || n >= counts[i] {
			return idx, fmt.Errorf("face index `%s` out of range", field)
		}
		*targets[i] = n
	}
	return idx, nil
}

func flatNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return n.Normalize()
}
