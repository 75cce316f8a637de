package platform

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/gdemo/engine/core"
)

var namedKeys = map[glfw.Key]core.KeyCode{
	glfw.KeyBackspace:    core.KEY_BACKSPACE,
	glfw.KeyTab:          core.KEY_TAB,
	glfw.KeyEnter:        core.KEY_ENTER,
	glfw.KeyEscape:       core.KEY_ESCAPE,
	glfw.KeySpace:        core.KEY_SPACE,
	glfw.KeyLeft:         core.KEY_LEFT,
	glfw.KeyUp:           core.KEY_UP,
	glfw.KeyRight:        core.KEY_RIGHT,
	glfw.KeyDown:         core.KEY_DOWN,
	glfw.KeyF1:           core.KEY_F1,
	glfw.KeyF12:          core.KEY_F12,
	glfw.KeyLeftShift:    core.KEY_LSHIFT,
	glfw.KeyRightShift:   core.KEY_RSHIFT,
	glfw.KeyLeftControl:  core.KEY_LCONTROL,
	glfw.KeyRightControl: core.KEY_RCONTROL,
}

// translateKey maps a glfw key to the engine key code. Letters and digits
// share their ASCII values in both tables.
func translateKey(key glfw.Key) core.KeyCode {
	switch {
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KeyCode(key)
	case key >= glfw.Key0 && key <= glfw.Key9:
		return core.KeyCode(key)
	}
	if code, ok := namedKeys[key]; ok {
		return code
	}
	return core.KEY_UNKNOWN
}
