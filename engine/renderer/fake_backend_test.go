package renderer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

type fakeRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRecorder) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeRecorder) Begin() error { f.record("begin"); return nil }
func (f *fakeRecorder) End() error   { f.record("end"); return nil }
func (f *fakeRecorder) BindMesh(m *metadata.Mesh) {
	f.record(fmt.Sprintf("mesh:%d", m.ID))
}
func (f *fakeRecorder) BindMaterial(m *metadata.Material) {
	f.record(fmt.Sprintf("material:%d", m.ID))
}
func (f *fakeRecorder) PushTransform(mgl32.Mat4) { f.record("push") }
func (f *fakeRecorder) DrawIndexed(n uint32)     { f.record(fmt.Sprintf("draw:%d", n)) }

func (f *fakeRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRecorder) count(prefix string) int {
	return countPrefix(f.snapshot(), prefix)
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeBackend emulates one fence per slot: BeginFrame resets it, Present
// signals it and WaitFrame blocks until it is signalled.
type fakeBackend struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []string

	signalled [metadata.FramesInFlight]bool
	waited    [metadata.FramesInFlight]bool
	violation []string

	recorders []*fakeRecorder

	acquireStale []bool
	presentStale []bool

	// returned once by the matching call when set
	waitErr, acquireErr, beginErr, endErr error
}

func takeErr(err *error) error {
	e := *err
	*err = nil
	return e
}

func newFakeBackend(workers int) *fakeBackend {
	b := &fakeBackend{}
	b.cond = sync.NewCond(&b.mu)
	for i := range b.signalled {
		b.signalled[i] = true
	}
	for i := 0; i < workers; i++ {
		b.recorders = append(b.recorders, &fakeRecorder{})
	}
	return b
}

func (b *fakeBackend) log(format string, args ...interface{}) {
	b.events = append(b.events, fmt.Sprintf(format, args...))
}

func (b *fakeBackend) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func (b *fakeBackend) WaitFrame(frame int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := takeErr(&b.waitErr); err != nil {
		return err
	}
	for !b.signalled[frame] {
		b.cond.Wait()
	}
	b.waited[frame] = true
	b.log("wait:%d", frame)
	return nil
}

func (b *fakeBackend) AcquireImage(frame int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("acquire:%d", frame)
	if err := takeErr(&b.acquireErr); err != nil {
		return false, err
	}
	if len(b.acquireStale) > 0 {
		stale := b.acquireStale[0]
		b.acquireStale = b.acquireStale[1:]
		return stale, nil
	}
	return false, nil
}

func (b *fakeBackend) Recreate(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("recreate:%dx%d", width, height)
	return nil
}

func (b *fakeBackend) BeginFrame(frame int, ubo metadata.Ubo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := takeErr(&b.beginErr); err != nil {
		return err
	}
	if !b.waited[frame] || !b.signalled[frame] {
		b.violation = append(b.violation, fmt.Sprintf("slot %d reused before its fence was waited", frame))
	}
	b.waited[frame] = false
	b.signalled[frame] = false
	b.log("begin:%d", frame)
	return nil
}

func (b *fakeBackend) Recorder(frame, worker int) CommandRecorder {
	return b.recorders[worker]
}

func (b *fakeBackend) EndFrame(frame int) (metadata.PresentInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("end:%d", frame)
	if err := takeErr(&b.endErr); err != nil {
		return metadata.PresentInfo{}, err
	}
	return metadata.PresentInfo{Frame: frame}, nil
}

func (b *fakeBackend) Present(info metadata.PresentInfo) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("present:%d", info.Frame)
	b.signalled[info.Frame] = true
	b.cond.Broadcast()
	if len(b.presentStale) > 0 {
		stale := b.presentStale[0]
		b.presentStale = b.presentStale[1:]
		return stale, nil
	}
	return false, nil
}

func (b *fakeBackend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("idle")
	return nil
}

func (b *fakeBackend) LoadMesh(path string) (*metadata.Mesh, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("loadmesh:%s", path)
	return &metadata.Mesh{ID: uint64(len(b.events)), Name: path, IndexCount: 36}, nil
}

func (b *fakeBackend) UploadMesh(data *metadata.MeshData) (*metadata.Mesh, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("upload:%s", data.Name)
	return &metadata.Mesh{
		ID:          uint64(len(b.events)),
		Name:        data.Name,
		VertexCount: uint32(len(data.Vertices)),
		IndexCount:  uint32(len(data.Indices)),
	}, nil
}

func (b *fakeBackend) LoadMaterial(name string) (*metadata.Material, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("loadmaterial:%s", name)
	return &metadata.Material{ID: uint64(len(b.events)), Name: name}, nil
}

func (b *fakeBackend) InvalidateMaterial(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("invalidate:%s", name)
}

func (b *fakeBackend) ReleaseMesh(mesh *metadata.Mesh) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("releasemesh:%d", mesh.ID)
}

func (b *fakeBackend) ReleaseMaterial(material *metadata.Material) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("releasematerial:%d", material.ID)
}

func (b *fakeBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log("shutdown")
	return nil
}
