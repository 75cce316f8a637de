package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/gdemo/engine/assets"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/platform"
	"github.com/spaghettifunk/gdemo/engine/renderer"
	"github.com/spaghettifunk/gdemo/engine/renderer/components"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
	"github.com/spaghettifunk/gdemo/engine/renderer/vulkan"
)

const (
	// How long shutdown waits for in-flight frames to retire.
	drainTimeout = 2 * time.Second
	// Seconds to block on window events while minimised.
	suspendedWaitSeconds = 0.1
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
)

// eventPump is the window side of the loop.
type eventPump interface {
	Poll() iter.Seq[core.Event]
	WaitEvents(timeout float64)
}

// frameDriver is the part of the frame orchestrator the loop drives.
type frameDriver interface {
	Tick(elapsedSeconds float64) (renderer.FrameResult, error)
	SetClearColor(color math.Vec4)
	SetProjection(fovRadians, near, far float32)
	Drain(ctx context.Context) error
	ReleaseAll()
	Stats() renderer.Stats
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       ApplicationConfig
	configPath   string

	platform     *platform.Platform
	events       eventPump
	assetManager *assets.AssetManager
	backend      renderer.RendererBackend
	orchestrator frameDriver

	camera  *components.Camera
	input   *core.InputState
	clock   *core.FrameClock
	metrics *core.FrameMetrics

	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32

	lastMouseX, lastMouseY float64
	haveMouse              bool
}

func New(g *Game, configPath string) (*Engine, error) {
	if g.ApplicationConfig == nil {
		return nil, fmt.Errorf("game has no application config: %w", core.ErrConfiguration)
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}

	p := platform.New()
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       *g.ApplicationConfig,
		configPath:   configPath,
		platform:     p,
		events:       p,
		camera:       components.NewCamera(),
		input:        core.NewInputState(),
		clock:        core.NewFrameClock(),
		metrics:      core.NewFrameMetrics(),
		width:        g.ApplicationConfig.Window.Width,
		height:       g.ApplicationConfig.Window.Height,
	}
	e.camera.MoveSpeed = e.config.Camera.MoveSpeed
	g.Camera = e.camera
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	level, err := core.ParseLogLevel(e.config.LogLevel)
	if err != nil {
		return err
	}
	core.SetLogLevel(level)

	w := e.config.Window
	if err := e.platform.Startup(w.Name, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}

	// initialize subsystems
	am, err := assets.NewAssetManager()
	if err != nil {
		return fmt.Errorf("asset watcher: %w: %w", err, core.ErrConfiguration)
	}
	e.assetManager = am
	if err := am.Initialize(e.config.AssetsDir); err != nil {
		return fmt.Errorf("assets dir %s: %w: %w", e.config.AssetsDir, err, core.ErrConfiguration)
	}
	if e.configPath != "" {
		if err := am.WatchFile(e.configPath); err != nil {
			core.LogWarn("Config %s will not be reloaded: %s", e.configPath, err)
		}
	}

	vert, err := e.loadShader("triangle.vert.spv")
	if err != nil {
		return err
	}
	frag, err := e.loadShader("triangle.frag.spv")
	if err != nil {
		return err
	}

	e.backend = vulkan.New(e.platform, vulkan.VulkanRendererOptions{
		Validation:     e.config.Renderer.Validation,
		VertexShader:   vert,
		FragmentShader: frag,
	})
	fbWidth, fbHeight := e.platform.FramebufferSize()
	if err := e.backend.Initialize(w.Name, fbWidth, fbHeight); err != nil {
		return err
	}

	orchestrator, err := renderer.NewFrameOrchestrator(e.backend, e.camera, e.config.OrchestratorConfig())
	if err != nil {
		return err
	}
	e.orchestrator = orchestrator

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) loadShader(name string) ([]byte, error) {
	res, err := e.assetManager.LoadAsset(filepath.Join(e.config.AssetsDir, "shaders", name), nil)
	if err != nil {
		return nil, fmt.Errorf("shader %s (run `mage build:shaders`): %w", name, err)
	}
	data, ok := res.Data.([]byte)
	if !ok {
		return nil, fmt.Errorf("shader %s loaded as %T: %w", name, res.Data, core.ErrConfiguration)
	}
	return data, nil
}

// Run ticks until the window closes, Escape is pressed, Stop is called or a
// frame fails. A frame error is returned as is.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()

	for e.isRunning.Load() {
		e.drainAssetChanges()

		if !e.pumpEvents() {
			break
		}
		if e.isSuspended {
			e.events.WaitEvents(suspendedWaitSeconds)
			continue
		}

		if err := e.frame(); err != nil {
			e.isRunning.Store(false)
			return err
		}
	}
	e.isRunning.Store(false)
	return nil
}

// Stop asks the loop to exit after the current tick. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) frame() error {
	elapsed := e.clock.Tick()
	e.metrics.Update(elapsed)

	e.camera.Update(e.input, elapsed)
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(elapsed, e.input); err != nil {
			core.LogError("Game update failed, shutting down.")
			return err
		}
	}

	if _, err := e.orchestrator.Tick(elapsed); err != nil {
		return err
	}

	if e.clock.Refreshed() {
		stats := e.orchestrator.Stats()
		core.LogDebug("FPS: %d, avg frame: %.3fms, submitted: %d, stalls: %d",
			e.clock.FPS(), e.metrics.AverageFrameMS(), stats.Submitted, stats.Stalls)
	}
	return nil
}

// pumpEvents applies every pending window event. It reports false when the
// loop should stop.
func (e *Engine) pumpEvents() bool {
	for ev := range e.events.Poll() {
		switch ev.Type {
		case core.EVENT_CODE_APPLICATION_QUIT:
			core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
			return false
		case core.EVENT_CODE_KEY_PRESSED:
			if ev.Key == core.KEY_ESCAPE {
				core.LogInfo("Escape pressed, shutting down.")
				return false
			}
		case core.EVENT_CODE_RESIZED:
			e.onResized(ev.Width, ev.Height)
		case core.EVENT_CODE_MOUSE_MOVED:
			e.onMouseMoved(ev.X, ev.Y)
		case core.EVENT_CODE_FOCUS_CHANGED:
			if !ev.Focused {
				e.haveMouse = false
			}
		}
		if !e.input.ApplyEvent(ev) {
			return false
		}
	}
	return true
}

func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
		// Do not count the time spent minimised as one frame.
		e.clock.Start()
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}

func (e *Engine) onMouseMoved(x, y float64) {
	if e.config.Camera.MouseLook && e.haveMouse && e.input.IsButtonDown(core.BUTTON_RIGHT) {
		e.camera.Look(x-e.lastMouseX, y-e.lastMouseY)
	}
	e.lastMouseX, e.lastMouseY = x, y
	e.haveMouse = true
}

func (e *Engine) drainAssetChanges() {
	if e.assetManager == nil {
		return
	}
	for {
		select {
		case change, ok := <-e.assetManager.Changes():
			if !ok {
				return
			}
			e.onAssetChanged(change)
		default:
			return
		}
	}
}

func (e *Engine) onAssetChanged(change assets.AssetChange) {
	switch change.Type {
	case metadata.ResourceTypeConfig:
		if !change.Op.Has(fsnotify.Write) && !change.Op.Has(fsnotify.Create) {
			core.LogInfo("Config %s removed, keeping the current settings.", change.Path)
			return
		}
		res, err := e.assetManager.LoadAsset(change.Path, nil)
		if err != nil {
			core.LogWarn("Ignoring config change: %s", err)
			return
		}
		data, _ := res.Data.([]byte)
		next, err := DecodeApplicationConfig(data, e.config)
		if err != nil {
			core.LogWarn("Ignoring config change: %s", err)
			return
		}
		e.applyConfig(next)
	case metadata.ResourceTypeShader:
		core.LogInfo("Shader %s changed, restart to apply.", change.Path)
	}
}

// applyConfig applies the live-tunable fields of next. Structural fields keep
// their current values until restart.
func (e *Engine) applyConfig(next ApplicationConfig) {
	if fields := e.config.RestartRequired(next); len(fields) > 0 {
		core.LogWarn("Config fields %v changed, restart to apply.", fields)
	}

	live := e.config
	live.LogLevel = next.LogLevel
	live.Renderer.ClearColor = next.Renderer.ClearColor
	live.Renderer.FovDegrees = next.Renderer.FovDegrees
	live.Renderer.Near = next.Renderer.Near
	live.Renderer.Far = next.Renderer.Far
	live.Camera = next.Camera

	if level, err := core.ParseLogLevel(live.LogLevel); err == nil && level != core.GetLogLevel() {
		core.SetLogLevel(level)
		core.LogInfo("Log level set to %s.", live.LogLevel)
	}
	e.orchestrator.SetClearColor(live.ClearColor())
	p := live.Projection()
	e.orchestrator.SetProjection(p.FovRadians, p.Near, p.Far)
	e.camera.MoveSpeed = live.Camera.MoveSpeed
	if !live.Camera.MouseLook {
		e.haveMouse = false
	}

	e.config = live
	core.LogInfo("Config reloaded.")
}

// Shutdown drains in-flight frames, waits for the device and tears
// everything down in reverse order. It is safe after a failed Initialize.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := e.orchestrator.Drain(ctx); err != nil {
			core.LogWarn("Drain: %s", err)
		}
		cancel()
	}
	if e.backend != nil {
		if err := e.backend.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.orchestrator != nil {
		e.orchestrator.ReleaseAll()
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.assetManager != nil {
		if err := e.assetManager.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}
