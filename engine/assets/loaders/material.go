package loaders

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// MaterialLoader reads the materials database, a TOML file with one table
// per material:
//
//	[base]
//	vertex = "shaders/base.vert.spv"
//	fragment = "shaders/base.frag.spv"
//	texture = "textures/texture.png"
type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string) (map[string]metadata.MaterialConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, openError(core.ResourceKindMaterial, path, err)
	}
	return ParseMaterials(path, data)
}

func ParseMaterials(path string, data []byte) (map[string]metadata.MaterialConfig, error) {
	materials := make(map[string]metadata.MaterialConfig)
	if err := toml.Unmarshal(data, &materials); err != nil {
		return nil, decodeError(core.ResourceKindMaterial, path, err)
	}

	names := make([]string, 0, len(materials))
	for name := range materials {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := materials[name]
		if cfg.VertexShader == "" || cfg.FragmentShader == "" {
			return nil, decodeError(core.ResourceKindMaterial, path, fmt.Errorf("material `%s` needs a vertex and a fragment shader", name))
		}
		cfg.Name = name
		materials[name] = cfg
	}
	return materials, nil
}
