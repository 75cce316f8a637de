package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN   KeyCode = 0x00
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_0         KeyCode = 0x30
	KEY_9         KeyCode = 0x39
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_C         KeyCode = 0x43
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_F         KeyCode = 0x46
	KEY_G         KeyCode = 0x47
	KEY_H         KeyCode = 0x48
	KEY_I         KeyCode = 0x49
	KEY_J         KeyCode = 0x4A
	KEY_K         KeyCode = 0x4B
	KEY_L         KeyCode = 0x4C
	KEY_M         KeyCode = 0x4D
	KEY_N         KeyCode = 0x4E
	KEY_O         KeyCode = 0x4F
	KEY_P         KeyCode = 0x50
	KEY_Q         KeyCode = 0x51
	KEY_R         KeyCode = 0x52
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_U         KeyCode = 0x55
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_X         KeyCode = 0x58
	KEY_Y         KeyCode = 0x59
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F12       KeyCode = 0x7B
	KEY_LSHIFT    KeyCode = 0xA0
	KEY_RSHIFT    KeyCode = 0xA1
	KEY_LCONTROL  KeyCode = 0xA2
	KEY_RCONTROL  KeyCode = 0xA3
	KEYS_MAX_KEYS KeyCode = 0x100
)

// InputState records which keys are held and the last known cursor and window geometry.
// It is written by the frame loop from polled events and read by the camera.
type InputState struct {
	keys    [KEYS_MAX_KEYS]bool
	buttons [BUTTON_MAX_BUTTONS]bool

	mouseX, mouseY float64
	width, height  uint32

	lastAspect float32
}

func NewInputState() *InputState {
	return &InputState{lastAspect: 1.0}
}

// SetKey records a key transition. Codes outside the table are ignored.
func (s *InputState) SetKey(key KeyCode, down bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	s.keys[key] = down
}

// IsDown reports whether key is held; keys never pressed are up.
func (s *InputState) IsDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	return s.keys[key]
}

func (s *InputState) SetButton(button Button, down bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	s.buttons[button] = down
}

func (s *InputState) IsButtonDown(button Button) bool {
	if button >= BUTTON_MAX_BUTTONS {
		return false
	}
	return s.buttons[button]
}

func (s *InputState) SetMouse(x, y float64) {
	s.mouseX = x
	s.mouseY = y
}

func (s *InputState) Mouse() (float64, float64) {
	return s.mouseX, s.mouseY
}

func (s *InputState) SetSize(width, height uint32) {
	s.width = width
	s.height = height
	if width != 0 && height != 0 {
		s.lastAspect = float32(width) / float32(height)
	}
}

func (s *InputState) Size() (uint32, uint32) {
	return s.width, s.height
}

// Aspect returns width/height. A zero-sized window keeps the last valid ratio
// (1.0 before any) so the projection never sees NaN or Inf.
func (s *InputState) Aspect() float32 {
	if s.width == 0 || s.height == 0 {
		return s.lastAspect
	}
	return float32(s.width) / float32(s.height)
}

// Reset releases every key and button, used when the window loses focus.
func (s *InputState) Reset() {
	s.keys = [KEYS_MAX_KEYS]bool{}
	s.buttons = [BUTTON_MAX_BUTTONS]bool{}
}
