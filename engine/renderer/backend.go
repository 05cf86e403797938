package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// Backend is the GPU side of the orchestrator. Frame indexes are slots in
// [0, metadata.FramesInFlight).
type Backend interface {
	// WaitFrame blocks until the GPU finished the last submission of the slot.
	WaitFrame(frame int) error
	// AcquireImage takes the next swapchain image and signals the slot's
	// image-available semaphore. stale reports a suboptimal or out of date
	// swapchain.
	AcquireImage(frame int) (stale bool, err error)
	// Recreate waits for the device and rebuilds every size dependent object.
	Recreate(width, height uint32) error
	// BeginFrame resets the slot, writes the uniforms and opens the primary
	// command buffer inside the render pass.
	BeginFrame(frame int, ubo metadata.Ubo) error
	// Recorder returns the secondary command buffer owned by a worker.
	Recorder(frame, worker int) CommandRecorder
	// EndFrame executes the secondaries in worker order and closes the
	// primary command buffer.
	EndFrame(frame int) (metadata.PresentInfo, error)
	// Present submits and presents a recorded frame.
	Present(info metadata.PresentInfo) (stale bool, err error)
	WaitIdle() error

	LoadMesh(path string) (*metadata.Mesh, error)
	UploadMesh(data *metadata.MeshData) (*metadata.Mesh, error)
	LoadMaterial(name string) (*metadata.Material, error)
	// InvalidateMaterial makes the next LoadMaterial of name rebuild it.
	InvalidateMaterial(name string)
	ReleaseMesh(mesh *metadata.Mesh)
	ReleaseMaterial(material *metadata.Material)

	Shutdown() error
}

// CommandRecorder records the draws of one worker into a secondary command
// buffer. It is used by a single goroutine between Begin and End.
type CommandRecorder interface {
	Begin() error
	End() error
	BindMesh(mesh *metadata.Mesh)
	// BindMaterial binds the pipeline and the global descriptor set.
	BindMaterial(material *metadata.Material)
	PushTransform(transform mgl32.Mat4)
	DrawIndexed(indexCount uint32)
}
