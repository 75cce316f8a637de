package engine

import (
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/renderer/components"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize runs.
	Camera       *components.Camera
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64, input *core.InputState) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
