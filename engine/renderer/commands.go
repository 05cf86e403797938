package renderer

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

type commandKind uint8

const (
	CommandBegin commandKind = iota
	CommandRender
	CommandEnd
)

func (k commandKind) String() string {
	switch k {
	case CommandBegin:
		return "begin"
	case CommandRender:
		return "render"
	case CommandEnd:
		return "end"
	default:
		return "unknown"
	}
}

// RenderCommand is the message sent to a recording worker. Begin uses
// Recorder, View and Projection. Render uses Mesh, Material and Transform.
type RenderCommand struct {
	Kind       commandKind
	Recorder   CommandRecorder
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Mesh       *metadata.Mesh
	Material   *metadata.Material
	Transform  mgl32.Mat4
}

type presentResult uint8

const (
	presentOK presentResult = iota
	presentNotDone
	presentStale
)

// frameSync carries the outcome of a slot's last presentation back to the
// thread that wants to reuse the slot.
type frameSync struct {
	mu     sync.Mutex
	cond   *sync.Cond
	result presentResult
}

func newFrameSync() *frameSync {
	s := &frameSync{result: presentOK}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// claim waits for the previous presentation of the slot and marks the slot
// as in flight. It returns true when that presentation found the swapchain
// stale, in which case the slot is left free.
func (s *frameSync) claim() (stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.result == presentNotDone {
		s.cond.Wait()
	}
	if s.result == presentStale {
		s.result = presentOK
		return true
	}
	s.result = presentNotDone
	return false
}

func (s *frameSync) release(result presentResult) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	s.cond.Signal()
}

// PresentData is handed to the presentation goroutine once a frame is
// recorded.
type PresentData struct {
	Info metadata.PresentInfo
	sync *frameSync
}
