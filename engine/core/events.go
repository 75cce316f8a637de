package core

import "iter"

// System internal event codes.
type SystemEventCode int

const (
	// Window close requested; the loop exits after the current tick.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Key holds the code.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Key holds the code.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Mouse button pressed. Button holds the button.
	EVENT_CODE_BUTTON_PRESSED SystemEventCode = 0x04
	// Mouse button released. Button holds the button.
	EVENT_CODE_BUTTON_RELEASED SystemEventCode = 0x05
	// Cursor moved. X and Y hold the position in window coordinates.
	EVENT_CODE_MOUSE_MOVED SystemEventCode = 0x06
	// Framebuffer resized. Width and Height hold the new size, zero when minimised.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// Focus changed. Focused holds the new state.
	EVENT_CODE_FOCUS_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Event is one discrete window or input notification.
type Event struct {
	Type    SystemEventCode
	Key     KeyCode
	Button  Button
	X, Y    float64
	Width   uint32
	Height  uint32
	Focused bool
}

// EventSource produces the events gathered since the previous poll. The
// sequence is finite and is meant to be consumed fully within one tick.
type EventSource interface {
	Poll() iter.Seq[Event]
}

// ApplyEvent feeds ev into the input state. It reports false when ev asks the loop to stop.
func (s *InputState) ApplyEvent(ev Event) bool {
	switch ev.Type {
	case EVENT_CODE_APPLICATION_QUIT:
		return false
	case EVENT_CODE_KEY_PRESSED:
		s.SetKey(ev.Key, true)
	case EVENT_CODE_KEY_RELEASED:
		s.SetKey(ev.Key, false)
	case EVENT_CODE_BUTTON_PRESSED:
		s.SetButton(ev.Button, true)
	case EVENT_CODE_BUTTON_RELEASED:
		s.SetButton(ev.Button, false)
	case EVENT_CODE_MOUSE_MOVED:
		s.SetMouse(ev.X, ev.Y)
	case EVENT_CODE_RESIZED:
		s.SetSize(ev.Width, ev.Height)
	case EVENT_CODE_FOCUS_CHANGED:
		if !ev.Focused {
			s.Reset()
		}
	}
	return true
}
