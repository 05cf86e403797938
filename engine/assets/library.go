package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/dragonfire/engine/assets/loaders"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// MaterialsFile is the materials database, relative to the asset directory.
const MaterialsFile = "materials.toml"

// ModelLoader turns a model file into CPU side geometry.
type ModelLoader interface {
	Load(path string) (*metadata.MeshData, error)
}

// MaterialSource is everything needed to build a material on the GPU.
type MaterialSource struct {
	Config   metadata.MaterialConfig
	Vertex   []byte
	Fragment []byte
	// Texture is nil when the material has none or it failed to load.
	Texture *metadata.TextureData
}

// Library resolves asset names under one directory and decodes them.
type Library struct {
	root string

	models   map[string]ModelLoader
	shaders  *loaders.ShaderLoader
	textures *loaders.TextureLoader
	database *loaders.MaterialLoader

	mutex     sync.RWMutex
	materials map[string]metadata.MaterialConfig
}

func defaultMaterials() map[string]metadata.MaterialConfig {
	return map[string]metadata.MaterialConfig{
		metadata.DefaultMaterialName: {
			Name:           metadata.DefaultMaterialName,
			VertexShader:   "shaders/base.vert.spv",
			FragmentShader: "shaders/base.frag.spv",
			Texture:        "textures/texture.png",
		},
	}
}

// NewLibrary reads the materials database under root. Without one only the
// base material is known.
func NewLibrary(root string) (*Library, error) {
	l := &Library{
		root:     root,
		models:   make(map[string]ModelLoader),
		shaders:  &loaders.ShaderLoader{},
		textures: &loaders.TextureLoader{},
		database: &loaders.MaterialLoader{},
	}
	l.registerLoader(&loaders.OBJLoader{}, ".obj")
	l.registerLoader(&loaders.GLTFLoader{}, ".gltf", ".glb")

	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) registerLoader(loader ModelLoader, extensions ...string) {
	for _, ext := range extensions {
		l.models[ext] = loader
	}
}

func (l *Library) Root() string {
	return l.root
}

// Resolve maps a path relative to the asset directory to a file path.
// Absolute paths are returned unchanged.
func (l *Library) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.root, path)
}

// Reload re-reads the materials database.
func (l *Library) Reload() error {
	materials, err := l.database.Load(l.Resolve(MaterialsFile))
	if errors.Is(err, core.ErrResourceNotFound) {
		materials, err = defaultMaterials(), nil
	}
	if err != nil {
		return err
	}
	if _, ok := materials[metadata.DefaultMaterialName]; !ok {
		materials[metadata.DefaultMaterialName] = defaultMaterials()[metadata.DefaultMaterialName]
	}

	l.mutex.Lock()
	l.materials = materials
	l.mutex.Unlock()
	core.LogDebug("materials database holds %d entries", len(materials))
	return nil
}

func (l *Library) Model(path string) (*metadata.MeshData, error) {
	loader, ok := l.models[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, core.NewResourceError(core.ResourceKindModel, path,
			fmt.Errorf("%w: no loader for `%s` files", core.ErrResourceDecode, filepath.Ext(path)))
	}
	return loader.Load(l.Resolve(path))
}

func (l *Library) MaterialConfig(name string) (metadata.MaterialConfig, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	cfg, ok := l.materials[name]
	if !ok {
		return metadata.MaterialConfig{}, core.NewResourceError(core.ResourceKindMaterial, name,
			fmt.Errorf("%w: not in %s", core.ErrResourceNotFound, MaterialsFile))
	}
	return cfg, nil
}

// Material reads both shaders and the texture of the named material in
// parallel. A texture that cannot be loaded is logged and left out.
func (l *Library) Material(name string) (*MaterialSource, error) {
	cfg, err := l.MaterialConfig(name)
	if err != nil {
		return nil, err
	}
	src := &MaterialSource{Config: cfg}

	var g errgroup.Group
	g.Go(func() error {
		data, err := l.shaders.Load(l.Resolve(cfg.VertexShader))
		src.Vertex = data
		return err
	})
	g.Go(func() error {
		data, err := l.shaders.Load(l.Resolve(cfg.FragmentShader))
		src.Fragment = data
		return err
	})
	if cfg.Texture != "" {
		g.Go(func() error {
			tex, err := l.textures.Load(l.Resolve(cfg.Texture))
			if err != nil {
				core.LogWarn("material `%s` is drawn without texture: %s", name, err)
				return nil
			}
			src.Texture = tex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return src, nil
}

// MaterialsUsing lists the materials that read file, sorted by name.
// A change to the database itself affects every material.
func (l *Library) MaterialsUsing(file string) []string {
	target, err := filepath.Abs(file)
	if err != nil {
		target = file
	}
	all := filepath.Base(file) == MaterialsFile

	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var names []string
	for name, cfg := range l.materials {
		if all || l.matches(target, cfg.VertexShader) || l.matches(target, cfg.FragmentShader) ||
			(cfg.Texture != "" && l.matches(target, cfg.Texture)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (l *Library) matches(target, rel string) bool {
	p, err := filepath.Abs(l.Resolve(rel))
	if err != nil {
		return false
	}
	return p == target
}

// Exists reports whether path names a regular file under the library.
func (l *Library) Exists(path string) bool {
	info, err := os.Stat(l.Resolve(path))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
