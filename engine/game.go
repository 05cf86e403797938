package engine

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(e *Engine) error
type Update func(e *Engine, deltaTime float64) error

// Render queues the draws of one frame, between Renderer.Begin and
// Renderer.End.
type Render func(e *Engine, deltaTime float64) error
type OnResize func(width uint32, height uint32) error

// Shutdown releases what the game loaded. The device is idle.
type Shutdown func(e *Engine) error
