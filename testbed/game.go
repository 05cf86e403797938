package testbed

import (
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine"
	"github.com/spaghettifunk/dragonfire/engine/assets"
	"github.com/spaghettifunk/dragonfire/engine/config"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// ModelEnv overrides the cube with a model file relative to the asset
// directory.
const ModelEnv = config.EnvPrefix + "MODEL"

const (
	gridSize    = 3
	gridSpacing = 2.5
	// radians per second
	spinSpeed = 0.8
)

// secondaryMaterials are drawn on every other instance when the database
// has them.
var secondaryMaterials = []string{"unlit"}

type TestGame struct {
	*engine.Game
}

type instance struct {
	mesh     *metadata.Mesh
	material *metadata.Material
	position mgl32.Vec3
	phase    float32
}

type gameState struct {
	mesh      *metadata.Mesh
	materials []*metadata.Material
	instances []instance
	angle     float32
}

func NewTestGame(settings *config.Config, dirs *config.Directories) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				StartPosX:   100,
				StartPosY:   100,
				Name:        settings.AppName,
				Settings:    settings,
				Directories: dirs,
			},
			State: &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.State.(*gameState)
	r := e.Renderer()

	mesh, err := loadMesh(e)
	if err != nil {
		return err
	}
	state.mesh = mesh

	base, err := r.LoadMaterial("")
	if err != nil {
		return err
	}
	state.materials = append(state.materials, base)
	for _, name := range secondaryMaterials {
		m, err := r.LoadMaterial(name)
		if err != nil {
			core.LogWarn("drawing without material %s: %s", name, err)
			continue
		}
		state.materials = append(state.materials, m)
	}

	state.instances = layoutInstances(mesh, state.materials, gridSize, gridSpacing)
	sortInstances(state.instances)

	extent := float32(gridSize) * gridSpacing
	e.Camera().LookAt(mgl32.Vec3{0, extent * 0.6, extent * 1.6}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	core.LogInfo("testbed ready: %d instances of %s, %d materials", len(state.instances), mesh.Name, len(state.materials))
	return nil
}

func loadMesh(e *engine.Engine) (*metadata.Mesh, error) {
	r := e.Renderer()
	if path := os.Getenv(ModelEnv); path != "" {
		mesh, err := r.LoadModel(path)
		if err == nil {
			return mesh, nil
		}
		core.LogWarn("falling back to a cube: %s", err)
	}
	return r.UploadMesh(assets.Cube(1))
}

// layoutInstances places a size x size grid on the xz plane, cycling
// through materials.
func layoutInstances(mesh *metadata.Mesh, materials []*metadata.Material, size int, spacing float32) []instance {
	offset := float32(size-1) * spacing / 2
	out := make([]instance, 0, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			i := row*size + col
			out = append(out, instance{
				mesh:     mesh,
				material: materials[i%len(materials)],
				position: mgl32.Vec3{float32(col)*spacing - offset, 0, float32(row)*spacing - offset},
				phase:    float32(i) * 0.35,
			})
		}
	}
	return out
}

// sortInstances orders draws by material, then mesh, so consecutive draws
// share bindings.
func sortInstances(instances []instance) {
	sort.SliceStable(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if a.material.ID != b.material.ID {
			return a.material.ID < b.material.ID
		}
		return a.mesh.ID < b.mesh.ID
	})
}

func (i instance) transform(angle float32) mgl32.Mat4 {
	translation := mgl32.Translate3D(i.position.X(), i.position.Y(), i.position.Z())
	rotation := mgl32.HomogRotate3D(angle+i.phase, mgl32.Vec3{0.3, 1, 0}.Normalize())
	return translation.Mul4(rotation)
}

func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	state := g.State.(*gameState)
	state.angle += float32(deltaTime) * spinSpeed
	return nil
}

func (g *TestGame) Render(e *engine.Engine, deltaTime float64) error {
	state := g.State.(*gameState)
	r := e.Renderer()
	for _, inst := range state.instances {
		r.Render(inst.mesh, inst.material, inst.transform(state.angle))
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	core.LogDebug("testbed viewport %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown(e *engine.Engine) error {
	state := g.State.(*gameState)
	r := e.Renderer()
	if state.mesh != nil {
		r.ReleaseMesh(state.mesh)
	}
	for _, m := range state.materials {
		r.ReleaseMaterial(m)
	}
	state.instances = nil
	return nil
}
