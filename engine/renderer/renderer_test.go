package renderer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/assets"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/components"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type draw struct {
	mesh     *metadata.Mesh
	material *metadata.Material
}

func newTestRenderer(t *testing.T, workers int) (*Renderer, *fakeBackend) {
	t.Helper()
	b := newFakeBackend(workers)
	r := New(b, Options{Workers: workers, Resolution: [2]uint32{800, 600}})
	return r, b
}

func renderFrame(t *testing.T, r *Renderer, cam *components.Camera, draws []draw) {
	t.Helper()
	require.NoError(t, r.Begin(cam))
	for _, d := range draws {
		r.Render(d.mesh, d.material, mgl32.Ident4())
	}
	require.NoError(t, r.End())
}

func indexOf(events []string, event string, from int) int {
	for i := from; i < len(events); i++ {
		if events[i] == event {
			return i
		}
	}
	return -1
}

func TestBeginWaitsOnSlotFence(t *testing.T) {
	r, b := newTestRenderer(t, 2)
	cam := components.NewCamera(800, 600, 45)
	mesh := &metadata.Mesh{ID: 1, IndexCount: 3}
	mat := &metadata.Material{ID: 1}

	for i := 0; i < 6; i++ {
		renderFrame(t, r, cam, []draw{{mesh, mat}})
	}
	require.NoError(t, r.Shutdown())

	assert.Empty(t, b.violation)
	assert.Equal(t, uint64(6), r.FrameCount())

	events := b.snapshot()
	pos := 0
	for i := 0; i < 6; i++ {
		slot := i % metadata.FramesInFlight
		wait := indexOf(events, fmt.Sprintf("wait:%d", slot), pos)
		begin := indexOf(events, fmt.Sprintf("begin:%d", slot), pos)
		require.NotEqual(t, -1, wait, "frame %d", i)
		require.NotEqual(t, -1, begin, "frame %d", i)
		assert.Less(t, wait, begin, "frame %d", i)
		pos = begin + 1
	}
}

func TestWorkersReceiveCompleteProtocol(t *testing.T) {
	r, b := newTestRenderer(t, 3)
	cam := components.NewCamera(800, 600, 45)
	m1 := &metadata.Mesh{ID: 1, IndexCount: 6}
	m2 := &metadata.Mesh{ID: 2, IndexCount: 9}
	mat := &metadata.Material{ID: 7}

	renderFrame(t, r, cam, []draw{{m1, mat}, {m2, mat}})
	renderFrame(t, r, cam, nil)
	require.NoError(t, r.Shutdown())

	for i, rec := range b.recorders {
		calls := rec.snapshot()
		require.NotEmpty(t, calls, "worker %d", i)
		assert.Equal(t, 2, rec.count("begin"), "worker %d", i)
		assert.Equal(t, 2, rec.count("end"), "worker %d", i)

		open := false
		for _, c := range calls {
			switch c {
			case "begin":
				assert.False(t, open, "worker %d began twice", i)
				open = true
			case "end":
				assert.True(t, open, "worker %d ended without begin", i)
				open = false
			default:
				assert.True(t, open, "worker %d recorded %s outside a frame", i, c)
			}
		}
		assert.False(t, open)
	}
}

func TestSortedDrawsRebindOncePerMaterial(t *testing.T) {
	matA := &metadata.Material{ID: 10}
	matB := &metadata.Material{ID: 20}
	m1 := &metadata.Mesh{ID: 1, IndexCount: 36}
	m2 := &metadata.Mesh{ID: 2, IndexCount: 12}

	sorted := []draw{
		{m1, matA}, {m1, matA}, {m1, matA},
		{m2, matA}, {m2, matA},
		{m1, matB}, {m1, matB},
	}

	t.Run("single worker", func(t *testing.T) {
		r, b := newTestRenderer(t, 1)
		renderFrame(t, r, components.NewCamera(800, 600, 45), sorted)
		require.NoError(t, r.Shutdown())

		rec := b.recorders[0]
		assert.Equal(t, 2, rec.count("material:"))
		assert.Equal(t, 3, rec.count("mesh:"))
		assert.Equal(t, 7, rec.count("push"))
		assert.Equal(t, 7, rec.count("draw:"))
	})

	t.Run("one worker per run", func(t *testing.T) {
		r, b := newTestRenderer(t, 4)
		renderFrame(t, r, components.NewCamera(800, 600, 45), sorted)
		require.NoError(t, r.Shutdown())

		materials, meshes, draws := 0, 0, 0
		for _, rec := range b.recorders {
			assert.LessOrEqual(t, rec.count("material:"), 1)
			materials += rec.count("material:")
			meshes += rec.count("mesh:")
			draws += rec.count("draw:")
		}
		assert.Equal(t, 3, materials)
		assert.Equal(t, 3, meshes)
		assert.Equal(t, 7, draws)
		// The first run moves off worker 0.
		assert.Equal(t, 0, b.recorders[0].count("draw:"))
	})
}

func TestRunsStayOnOneWorkerInOrder(t *testing.T) {
	r, b := newTestRenderer(t, 2)
	mat := &metadata.Material{ID: 1}
	mesh := &metadata.Mesh{ID: 1, IndexCount: 3}
	cam := components.NewCamera(800, 600, 45)

	require.NoError(t, r.Begin(cam))
	for i := 0; i < 5; i++ {
		r.Render(mesh, mat, mgl32.Translate3D(float32(i), 0, 0))
	}
	require.NoError(t, r.End())
	require.NoError(t, r.Shutdown())

	assert.Equal(t, 5, b.recorders[1].count("draw:"))
	assert.Equal(t, 0, b.recorders[0].count("draw:"))
}

func TestStalePresentRecreatesSwapchain(t *testing.T) {
	r, b := newTestRenderer(t, 2)
	b.presentStale = []bool{true}
	cam := components.NewCamera(800, 600, 45)
	mesh := &metadata.Mesh{ID: 1, IndexCount: 3}
	mat := &metadata.Material{ID: 1}

	renderFrame(t, r, cam, []draw{{mesh, mat}})
	r.Resize(1024, 768)
	renderFrame(t, r, cam, []draw{{mesh, mat}})
	renderFrame(t, r, cam, []draw{{mesh, mat}})
	require.NoError(t, r.Shutdown())

	events := b.snapshot()
	recreate := indexOf(events, "recreate:1024x768", 0)
	require.NotEqual(t, -1, recreate)
	assert.Equal(t, 1, countEvents(events, "recreate:1024x768"))
	// The third frame reuses slot 0 once the swapchain was rebuilt.
	assert.NotEqual(t, -1, indexOf(events, "begin:0", recreate))
	assert.Empty(t, b.violation)
	assert.Equal(t, uint64(3), r.FrameCount())
}

func TestStaleAcquireRetries(t *testing.T) {
	r, b := newTestRenderer(t, 1)
	b.acquireStale = []bool{true}
	cam := components.NewCamera(800, 600, 45)

	renderFrame(t, r, cam, nil)
	renderFrame(t, r, cam, nil)
	require.NoError(t, r.Shutdown())

	events := b.snapshot()
	assert.Equal(t, []string{"wait:0", "acquire:0", "recreate:800x600", "wait:0", "acquire:0", "begin:0"}, events[:6])
	assert.Empty(t, b.violation)
}

func TestShutdownOrder(t *testing.T) {
	r, b := newTestRenderer(t, 2)
	cam := components.NewCamera(800, 600, 45)
	renderFrame(t, r, cam, []draw{{&metadata.Mesh{ID: 1, IndexCount: 3}, &metadata.Material{ID: 1}}})
	require.NoError(t, r.Shutdown())

	events := b.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, "shutdown", events[len(events)-1])
	idle := indexOf(events, "idle", indexOf(events, "end:0", 0))
	present := indexOf(events, "present:0", 0)
	assert.NotEqual(t, -1, idle)
	assert.NotEqual(t, -1, present)
	assert.Less(t, present, len(events)-1)
	assert.Less(t, idle, len(events)-1)

	for i, rec := range b.recorders {
		calls := rec.snapshot()
		assert.Equal(t, "end", calls[len(calls)-1], "worker %d", i)
	}

	assert.ErrorIs(t, r.Shutdown(), ErrShutdown)
	assert.ErrorIs(t, r.Begin(cam), ErrShutdown)
}

func TestEndWithoutBegin(t *testing.T) {
	r, _ := newTestRenderer(t, 1)
	defer r.Shutdown()
	assert.Error(t, r.End())
}

func TestBeginWithoutEnd(t *testing.T) {
	r, _ := newTestRenderer(t, 2)
	cam := components.NewCamera(800, 600, 45)
	require.NoError(t, r.Begin(cam))

	done := make(chan error, 1)
	go func() { done <- r.Begin(cam) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrProtocol)
	case <-time.After(2 * time.Second):
		t.Fatal("second Begin blocked")
	}

	// the open frame is still usable
	require.NoError(t, r.End())
	assert.Equal(t, uint64(1), r.FrameCount())
	require.NoError(t, r.Shutdown())
}

func TestScenarioTwoFramesSameMeshMaterial(t *testing.T) {
	r, b := newTestRenderer(t, 2)
	cube := assets.Cube(1)
	require.Len(t, cube.Vertices, 24)
	require.Len(t, cube.Indices, 36)

	mesh, err := r.UploadMesh(cube)
	require.NoError(t, err)
	assert.Equal(t, uint32(24), mesh.VertexCount)
	mat, err := r.LoadMaterial("")
	require.NoError(t, err)
	assert.Equal(t, metadata.DefaultMaterialName, mat.Name)

	cam := components.NewCamera(800, 600, 45)
	seen := make([]int, len(b.recorders))
	for frame := 0; frame < 2; frame++ {
		renderFrame(t, r, cam, []draw{{mesh, mat}, {mesh, mat}})
		assert.Equal(t, uint64(frame+1), r.FrameCount())

		meshBinds, matBinds, draws := 0, 0, 0
		for i, rec := range b.recorders {
			calls := rec.snapshot()
			recorded := calls[seen[i]:]
			seen[i] = len(calls)

			n := countPrefix(recorded, "draw:")
			if n == 0 {
				continue
			}
			// worker state is reset at the end of every frame
			assert.Equal(t, 1, countPrefix(recorded, fmt.Sprintf("mesh:%d", mesh.ID)), "frame %d worker %d", frame, i)
			assert.Equal(t, 1, countPrefix(recorded, fmt.Sprintf("material:%d", mat.ID)), "frame %d worker %d", frame, i)
			assert.Equal(t, 2, countPrefix(recorded, "draw:36"), "frame %d worker %d", frame, i)
			meshBinds += countPrefix(recorded, "mesh:")
			matBinds += countPrefix(recorded, "material:")
			draws += n
		}
		assert.Equal(t, 1, meshBinds, "frame %d", frame)
		assert.Equal(t, 1, matBinds, "frame %d", frame)
		assert.Equal(t, 2, draws, "frame %d", frame)
	}
	require.NoError(t, r.Shutdown())
	assert.Equal(t, uint64(2), r.FrameCount())
}

func TestLoadModelsKeepsOrder(t *testing.T) {
	b := newFakeBackend(1)
	p := assets.NewPreloader(4)
	r := New(b, Options{Workers: 1, Resolution: [2]uint32{800, 600}, Preloader: p})
	defer r.Shutdown()

	paths := []string{"a.obj", "b.obj", "c.gltf", "d.glb"}
	meshes, err := r.LoadModels(paths)
	require.NoError(t, err)
	require.Len(t, meshes, len(paths))
	for i, m := range meshes {
		assert.Equal(t, paths[i], m.Name)
	}
}

// captureFatal replaces fatalf for the duration of the test.
func captureFatal(t *testing.T) func() []string {
	t.Helper()
	var mu sync.Mutex
	var messages []string
	prev := fatalf
	fatalf = func(msg string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, fmt.Sprintf(msg, args...))
	}
	t.Cleanup(func() { fatalf = prev })
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), messages...)
	}
}

func TestRenderBeforeBeginIsFatal(t *testing.T) {
	messages := captureFatal(t)

	w := newWorker(0, NewBarrier(1), 1)
	w.handle(RenderCommand{Kind: CommandRender, Mesh: &metadata.Mesh{ID: 1}, Material: &metadata.Material{ID: 1}})

	require.Len(t, messages(), 1)
	assert.Contains(t, messages()[0], "render protocol violation")
}

func TestFrameFailuresAreFatal(t *testing.T) {
	errDevice := errors.New("device lost")
	tests := map[string]struct {
		inject func(b *fakeBackend)
		begins bool
	}{
		"fence wait":  {inject: func(b *fakeBackend) { b.waitErr = errDevice }},
		"acquire":     {inject: func(b *fakeBackend) { b.acquireErr = errDevice }},
		"begin frame": {inject: func(b *fakeBackend) { b.beginErr = errDevice }},
		"end frame":   {inject: func(b *fakeBackend) { b.endErr = errDevice }, begins: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			messages := captureFatal(t)
			r, b := newTestRenderer(t, 1)
			tt.inject(b)
			cam := components.NewCamera(800, 600, 45)

			err := r.Begin(cam)
			if tt.begins {
				require.NoError(t, err)
				err = r.End()
			}
			assert.ErrorIs(t, err, errDevice)
			require.Len(t, messages(), 1)
			assert.Contains(t, messages()[0], "device lost")
			assert.Equal(t, uint64(0), r.FrameCount())
			require.NoError(t, r.Shutdown())
		})
	}
}

func TestCoordinateCorrection(t *testing.T) {
	// A GL near plane point at y=1 lands at Vulkan y=-1 and depth 0.
	p := CoordinateCorrection.Mul4x1(mgl32.Vec4{0, 1, -1, 1})
	assert.InDelta(t, -1, p.Y(), 1e-6)
	assert.InDelta(t, 0, p.Z(), 1e-6)

	far := CoordinateCorrection.Mul4x1(mgl32.Vec4{0, 0, 1, 1})
	assert.InDelta(t, 1, far.Z(), 1e-6)
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
	r, _ := newTestRenderer(t, 0)
	defer r.Shutdown()
	assert.Equal(t, DefaultWorkers(), r.Workers())
}

func countEvents(events []string, event string) int {
	n := 0
	for _, e := range events {
		if e == event {
			n++
		}
	}
	return n
}

func TestBarrierReuse(t *testing.T) {
	const parties = 4
	b := NewBarrier(parties)
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 3; round++ {
				mu.Lock()
				order = append(order, round)
				mu.Unlock()
				b.Wait()
			}
		}()
	}
	wg.Wait()

	require.Len(t, order, parties*3)
	// No goroutine enters round n+1 before all finished round n.
	for round := 0; round < 3; round++ {
		chunk := order[round*parties : (round+1)*parties]
		assert.True(t, slices.Equal(chunk, []int{round, round, round, round}), "round %d: %v", round, chunk)
	}
}

func TestFrameSyncClaim(t *testing.T) {
	s := newFrameSync()
	assert.False(t, s.claim())
	assert.Equal(t, presentNotDone, s.result)

	done := make(chan bool)
	go func() { done <- s.claim() }()
	s.release(presentStale)
	assert.True(t, <-done)
	assert.Equal(t, presentOK, s.result)
}
