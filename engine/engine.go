package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/dragonfire/engine/assets"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/platform"
	"github.com/spaghettifunk/dragonfire/engine/renderer"
	"github.com/spaghettifunk/dragonfire/engine/renderer/components"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
	"github.com/spaghettifunk/dragonfire/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutDown
)

// metricsInterval is how often frame metrics are logged, in seconds.
const metricsInterval = 1.0

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool

	platform  *platform.Platform
	library   *assets.Library
	watcher   *assets.Watcher
	preloader *assets.Preloader
	backend   *vulkan.Backend
	renderer  *renderer.Renderer
	camera    *components.Camera

	clock       *core.Clock
	metrics     *core.Metrics
	lastTime    float64
	lastMetrics float64

	resizeMu      sync.Mutex
	width, height uint32

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(g *Game) (*Engine, error) {
	cfg := g.ApplicationConfig
	if cfg == nil || cfg.Settings == nil || cfg.Directories == nil {
		return nil, errors.New("game has no application config, settings or directories")
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		platform:     platform.New(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        cfg.Settings.Graphics.Resolution[0],
		height:       cfg.Settings.Graphics.Resolution[1],
	}
	return e, nil
}

// Initialize opens the window, the asset library and the renderer, then
// runs the game initialization.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig
	settings := cfg.Settings

	if err := e.platform.Startup(cfg.Name, cfg.StartPosX, cfg.StartPosY, e.width, e.height); err != nil {
		return err
	}
	e.platform.OnResize(e.onResized)
	e.width, e.height = e.platform.FramebufferSize()

	library, err := assets.NewLibrary(cfg.Directories.Asset)
	if err != nil {
		return err
	}
	e.library = library

	workers := settings.Graphics.RenderThreads
	if workers <= 0 {
		workers = renderer.DefaultWorkers()
	}
	e.preloader = assets.NewPreloader(workers)

	backend, err := vulkan.New(e.platform, library, vulkan.Options{
		AppName:    cfg.Name,
		Resolution: [2]uint32{e.width, e.height},
		VSync:      settings.Graphics.VSync,
		Validation: settings.Validation,
		Workers:    workers,
		CacheDir:   cfg.Directories.Cache,
	})
	if err != nil {
		return err
	}
	e.backend = backend
	e.renderer = renderer.New(backend, renderer.Options{
		Workers:    workers,
		Resolution: [2]uint32{e.width, e.height},
		Preloader:  e.preloader,
	})
	e.camera = components.NewCamera(e.width, e.height, settings.Graphics.FOV)

	watcher, err := assets.NewWatcher(library.Root(), e.onAssetChanged)
	if err != nil {
		// hot reload is optional
		core.LogWarn("not watching %s: %s", library.Root(), err)
	} else {
		e.watcher = watcher
	}

	if err := e.gameInstance.FnInitialize(e); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Camera() *components.Camera {
	return e.camera
}

func (e *Engine) Library() *assets.Library {
	return e.library
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	return e.width, e.height
}

// Run drives frames until the window closes or Quit is called.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	e.lastMetrics = e.lastTime

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if err := e.gameInstance.FnUpdate(e, delta); err != nil {
			return fmt.Errorf("game update failed: %w", err)
		}
		if err := e.frame(delta); err != nil {
			return err
		}

		e.metrics.Update(platform.GetAbsoluteTime() - frameStartTime)
		if currentTime-e.lastMetrics >= metricsInterval {
			fps, ms := e.metrics.Frame()
			core.LogInfo("frame %d: %.0f fps, %.3f ms", e.renderer.FrameCount(), fps, ms)
			e.lastMetrics = currentTime
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) frame(delta float64) error {
	if err := e.renderer.Begin(e.camera); err != nil {
		if errors.Is(err, core.ErrSwapchainStale) {
			// nothing to draw into until the window has an area again
			return nil
		}
		return fmt.Errorf("failed to begin frame: %w", err)
	}
	if err := e.gameInstance.FnRender(e, delta); err != nil {
		return fmt.Errorf("game render failed: %w", err)
	}
	if err := e.renderer.End(); err != nil {
		return fmt.Errorf("failed to end frame: %w", err)
	}
	return nil
}

// Quit stops the frame loop. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
	e.platform.Close()
}

// Shutdown waits for the device, lets the game release its resources and
// tears everything down. Only the first call does the work.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.shutdownErr = e.shutdown()
		e.currentStage = EngineStageShutDown
	})
	return e.shutdownErr
}

func (e *Engine) shutdown() error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.renderer != nil {
		if err := e.renderer.Wait(); err != nil {
			errs = append(errs, err)
		}
		if e.gameInstance.FnShutdown != nil {
			errs = append(errs, e.gameInstance.FnShutdown(e))
		}
		errs = append(errs, e.renderer.Shutdown())
	}
	errs = append(errs, e.platform.Shutdown())
	return errors.Join(errs...)
}

func (e *Engine) onResized(width, height uint32) {
	e.resizeMu.Lock()
	changed := width != e.width || height != e.height
	e.width, e.height = width, height
	e.resizeMu.Unlock()
	if !changed {
		return
	}

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.renderer.Resize(width, height)
	e.camera.SetViewport(width, height)
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
}

// onAssetChanged runs on the watcher goroutine. A changed shader, texture or
// material entry makes the materials using it rebuild on their next load.
func (e *Engine) onAssetChanged(path string, kind metadata.ResourceType) {
	switch kind {
	case metadata.ResourceTypeShader, metadata.ResourceTypeImage:
		for _, name := range e.library.MaterialsUsing(path) {
			e.renderer.InvalidateMaterial(name)
		}
	case metadata.ResourceTypeMaterial:
		if err := e.library.Reload(); err != nil {
			core.LogError("failed to reload %s: %s", assets.MaterialsFile, err)
			return
		}
		for _, name := range e.library.MaterialsUsing(path) {
			e.renderer.InvalidateMaterial(name)
		}
	default:
		core.LogDebug("ignoring change to %s (%s)", path, kind)
	}
}
