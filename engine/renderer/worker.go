package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

// worker records the draws routed to it into its own secondary command
// buffer. It only parks on its channel and on the end of frame barrier.
type worker struct {
	id      int
	in      chan RenderCommand
	barrier *Barrier

	recorder     CommandRecorder
	view         mgl32.Mat4
	projection   mgl32.Mat4
	lastMesh     uint64
	lastMaterial uint64
}

func newWorker(id int, barrier *Barrier, queue int) *worker {
	return &worker{
		id:      id,
		in:      make(chan RenderCommand, queue),
		barrier: barrier,
	}
}

func (w *worker) run() {
	for cmd := range w.in {
		w.handle(cmd)
	}
}

func (w *worker) handle(cmd RenderCommand) {
	switch cmd.Kind {
	case CommandBegin:
		w.recorder = cmd.Recorder
		w.view = cmd.View
		w.projection = cmd.Projection
		if err := w.recorder.Begin(); err != nil {
			fatalf("worker %d failed to begin recording: %s", w.id, err)
		}
	case CommandRender:
		if w.recorder == nil {
			fatalf("worker %d: %s: render before begin", w.id, core.ErrProtocol)
			return
		}
		if !CullTest(cmd.Mesh, cmd.Transform, w.view, w.projection) {
			return
		}
		if cmd.Mesh.ID != w.lastMesh {
			w.recorder.BindMesh(cmd.Mesh)
			w.lastMesh = cmd.Mesh.ID
		}
		if cmd.Material.ID != w.lastMaterial {
			w.recorder.BindMaterial(cmd.Material)
			w.lastMaterial = cmd.Material.ID
		}
		w.recorder.PushTransform(cmd.Transform)
		w.recorder.DrawIndexed(cmd.Mesh.IndexCount)
	case CommandEnd:
		if w.recorder == nil {
			fatalf("worker %d: %s: end before begin", w.id, core.ErrProtocol)
			return
		}
		if err := w.recorder.End(); err != nil {
			fatalf("worker %d failed to end recording: %s", w.id, err)
		}
		w.recorder = nil
		w.lastMesh = core.InvalidID
		w.lastMaterial = core.InvalidID
		w.barrier.Wait()
	}
}
