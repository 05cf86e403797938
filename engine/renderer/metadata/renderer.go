package metadata

import "github.com/go-gl/mathgl/mgl32"

/** @brief Number of frames recorded ahead of the GPU. */
const FramesInFlight = 2

/**
 * @brief The global uniform block, bound at set 0 binding 0.
 */
type Ubo struct {
	View         mgl32.Mat4
	Projection   mgl32.Mat4
	Orthographic mgl32.Mat4
}

/**
 * @brief Everything the presentation goroutine needs to submit and
 * present one recorded frame.
 */
type PresentInfo struct {
	Frame      int
	ImageIndex uint32
	/** @brief Backend submission payload. */
	InternalData interface{}
}
