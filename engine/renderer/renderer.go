package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/assets"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/components"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// fatalf reports unrecoverable runtime errors. Swapped in tests.
var fatalf = core.LogFatal

// fail reports err through fatalf and returns it for when fatalf returns.
func fail(err error) error {
	fatalf("%s", err)
	return err
}

// CoordinateCorrection maps a GL style clip space (y up, z in [-1, 1]) to
// the Vulkan one (y down, z in [0, 1]).
var CoordinateCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

var ErrShutdown = errors.New("renderer already shut down")

const workerQueueSize = 1024

type Options struct {
	// Workers is the number of recording goroutines. 0 picks one per two cpus.
	Workers    int
	Resolution [2]uint32
	// Preloader decodes models in parallel for LoadModels. Optional.
	Preloader *assets.Preloader
}

// Renderer drives a Backend: it spreads draws over recording workers and
// hands recorded frames to a presentation goroutine.
type Renderer struct {
	backend Backend

	frames  [metadata.FramesInFlight]*frameSync
	workers []*worker
	barrier *Barrier

	present     chan PresentData
	presentDone sync.WaitGroup
	workersDone sync.WaitGroup

	frameCount    uint64
	slot          int
	recording     bool
	currentWorker int
	lastMesh      uint64
	lastMaterial  uint64

	resMu      sync.Mutex
	resolution [2]uint32

	preloader *assets.Preloader
	closed    bool
}

func DefaultWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// New starts the recording workers and the presentation goroutine.
func New(backend Backend, opts Options) *Renderer {
	n := opts.Workers
	if n <= 0 {
		n = DefaultWorkers()
	}

	r := &Renderer{
		backend:    backend,
		barrier:    NewBarrier(n + 1),
		present:    make(chan PresentData, metadata.FramesInFlight),
		resolution: opts.Resolution,
		preloader:  opts.Preloader,
	}
	for i := range r.frames {
		r.frames[i] = newFrameSync()
	}

	r.workers = make([]*worker, n)
	for i := 0; i < n; i++ {
		w := newWorker(i, r.barrier, workerQueueSize)
		r.workers[i] = w
		r.workersDone.Add(1)
		go func() {
			defer r.workersDone.Done()
			w.run()
		}()
	}

	p := &presenter{backend: backend, in: r.present}
	r.presentDone.Add(1)
	go func() {
		defer r.presentDone.Done()
		p.run()
	}()

	core.LogInfo("renderer started with %d recording workers", n)
	return r
}

// Begin starts a frame for camera. A stale swapchain is rebuilt and the
// frame retried until an image is acquired. Calling Begin again before End
// is a protocol error.
//
// A failed fence wait, acquire or frame begin is fatal: the slot fence may
// be left unsignalled and the next Begin on that slot would block forever.
func (r *Renderer) Begin(camera *components.Camera) error {
	if r.closed {
		return ErrShutdown
	}
	if r.recording {
		return fmt.Errorf("%w: begin without end", core.ErrProtocol)
	}
	projection := CoordinateCorrection.Mul4(camera.Projection())
	orthographic := CoordinateCorrection.Mul4(camera.Orthographic())
	view := camera.View()

	for {
		slot := int(r.frameCount % metadata.FramesInFlight)
		if err := r.backend.WaitFrame(slot); err != nil {
			return fail(fmt.Errorf("failed to wait for frame %d: %w", slot, err))
		}

		fs := r.frames[slot]
		stale := fs.claim()
		if !stale {
			acquireStale, err := r.backend.AcquireImage(slot)
			if err != nil {
				fs.release(presentOK)
				return fail(fmt.Errorf("failed to acquire swapchain image: %w", err))
			}
			if acquireStale {
				fs.release(presentOK)
				stale = true
			}
		}

		if stale {
			w, h := r.requestedResolution()
			if err := r.backend.Recreate(w, h); err != nil {
				return err
			}
			continue
		}

		ubo := metadata.Ubo{
			View:         view,
			Projection:   projection,
			Orthographic: orthographic,
		}
		if err := r.backend.BeginFrame(slot, ubo); err != nil {
			fs.release(presentOK)
			return fail(fmt.Errorf("failed to begin frame %d: %w", slot, err))
		}

		r.slot = slot
		r.recording = true
		for i, w := range r.workers {
			w.in <- RenderCommand{
				Kind:       CommandBegin,
				Recorder:   r.backend.Recorder(slot, i),
				View:       view,
				Projection: projection,
			}
		}
		return nil
	}
}

// Render queues one draw. Consecutive draws sharing a mesh and material go
// to the same worker, a change of either moves to the next worker.
//
// Workers record in parallel and their buffers are replayed in worker order,
// so draw order is only kept within a run of identical mesh and material.
// That is fine for depth tested opaque geometry. Callers should sort draws
// by material, then mesh. Draws that need a strict order, such as
// transparent ones, are not supported.
func (r *Renderer) Render(mesh *metadata.Mesh, material *metadata.Material, transform mgl32.Mat4) {
	if mesh.ID != r.lastMesh || material.ID != r.lastMaterial {
		r.currentWorker = (r.currentWorker + 1) % len(r.workers)
		r.lastMesh = mesh.ID
		r.lastMaterial = material.ID
	}
	r.workers[r.currentWorker].in <- RenderCommand{
		Kind:      CommandRender,
		Mesh:      mesh,
		Material:  material,
		Transform: transform,
	}
}

// End closes the frame and hands it to the presentation goroutine. A
// failure to close the frame is fatal, its fence was already reset.
func (r *Renderer) End() error {
	if !r.recording {
		return fmt.Errorf("%w: end without begin", core.ErrProtocol)
	}
	for _, w := range r.workers {
		w.in <- RenderCommand{Kind: CommandEnd}
	}
	r.barrier.Wait()
	r.recording = false

	info, err := r.backend.EndFrame(r.slot)
	if err != nil {
		r.frames[r.slot].release(presentOK)
		return fail(fmt.Errorf("failed to end frame %d: %w", r.slot, err))
	}
	r.present <- PresentData{Info: info, sync: r.frames[r.slot]}
	r.frameCount++
	return nil
}

// Resize records the size used the next time the swapchain is rebuilt.
func (r *Renderer) Resize(width, height uint32) {
	r.resMu.Lock()
	defer r.resMu.Unlock()
	r.resolution = [2]uint32{width, height}
}

func (r *Renderer) requestedResolution() (uint32, uint32) {
	r.resMu.Lock()
	defer r.resMu.Unlock()
	return r.resolution[0], r.resolution[1]
}

// Wait blocks until the device is idle.
func (r *Renderer) Wait() error {
	return r.backend.WaitIdle()
}

func (r *Renderer) LoadModel(path string) (*metadata.Mesh, error) {
	return r.backend.LoadMesh(path)
}

// LoadModels loads several models concurrently. Results keep the order of
// paths.
func (r *Renderer) LoadModels(paths []string) ([]*metadata.Mesh, error) {
	if r.preloader == nil {
		meshes := make([]*metadata.Mesh, 0, len(paths))
		for _, p := range paths {
			m, err := r.backend.LoadMesh(p)
			if err != nil {
				return meshes, err
			}
			meshes = append(meshes, m)
		}
		return meshes, nil
	}
	return assets.PreloadAll(r.preloader, paths, r.backend.LoadMesh)
}

func (r *Renderer) UploadMesh(data *metadata.MeshData) (*metadata.Mesh, error) {
	return r.backend.UploadMesh(data)
}

// LoadMaterial returns the named material. An empty name is the default
// material.
func (r *Renderer) LoadMaterial(name string) (*metadata.Material, error) {
	if name == "" {
		name = metadata.DefaultMaterialName
	}
	return r.backend.LoadMaterial(name)
}

func (r *Renderer) InvalidateMaterial(name string) {
	r.backend.InvalidateMaterial(name)
}

func (r *Renderer) ReleaseMesh(mesh *metadata.Mesh) {
	r.backend.ReleaseMesh(mesh)
}

func (r *Renderer) ReleaseMaterial(material *metadata.Material) {
	r.backend.ReleaseMaterial(material)
}

func (r *Renderer) FrameCount() uint64 {
	return r.frameCount
}

func (r *Renderer) Workers() int {
	return len(r.workers)
}

// Shutdown waits for the device, stops the presentation goroutine, then the
// workers, and finally releases the backend.
func (r *Renderer) Shutdown() error {
	if r.closed {
		return ErrShutdown
	}
	r.closed = true

	if err := r.backend.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle: %s", err)
	}

	close(r.present)
	r.presentDone.Wait()

	for _, w := range r.workers {
		close(w.in)
	}
	r.workersDone.Wait()

	return r.backend.Shutdown()
}
