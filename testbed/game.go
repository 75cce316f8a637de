package testbed

import (
	"github.com/spaghettifunk/gdemo/engine"
	"github.com/spaghettifunk/gdemo/engine/core"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	// Edge detection for the reset key.
	resetHeld bool
}

// DefaultConfig is the base the config file is overlaid on.
func DefaultConfig() engine.ApplicationConfig {
	config := engine.DefaultApplicationConfig()
	config.Window.Name = "gdemo triangle"
	config.Window.Width = 1280
	config.Window.Height = 720
	return config
}

func NewTestGame(config engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &config,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")
	core.LogInfo("WASD to move, R to reset the camera, Esc to quit. With mouse_look on, drag with the right button to look.")
	return nil
}

func (g *TestGame) Update(deltaTime float64, input *core.InputState) error {
	state := g.State.(*gameState)

	held := input.IsDown(core.KEY_R)
	if held && !state.resetHeld {
		g.Camera.Reset()
		g.Camera.MoveSpeed = g.ApplicationConfig.Camera.MoveSpeed
		core.LogInfo("Camera reset.")
	}
	state.resetHeld = held
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	return nil
}
