package platform

import (
	"fmt"
	"iter"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/gdemo/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the window and turns glfw callbacks into core events.
type Platform struct {
	Window *glfw.Window

	pending []core.Event
}

func New() *Platform {
	return &Platform{
		Window: nil,
	}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w: %w", err, core.ErrConfiguration)
		core.LogError(err.Error())
		return err
	}
	if !glfw.VulkanSupported() {
		err := fmt.Errorf("glfw reports no Vulkan loader: %w", core.ErrConfiguration)
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	// The swap chain is never rebuilt.
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		err = fmt.Errorf("failed to create window: %w: %w", err, core.ErrConfiguration)
		core.LogError(err.Error())
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.onKey)
	p.Window.SetMouseButtonCallback(p.onMouseButton)
	p.Window.SetCursorPosCallback(p.onCursorPos)
	p.Window.SetFramebufferSizeCallback(p.onFramebufferSize)
	p.Window.SetFocusCallback(p.onFocus)
	p.Window.SetCloseCallback(p.onClose)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	// Seed the consumer with the initial geometry.
	w, h := p.FramebufferSize()
	p.push(core.Event{Type: core.EVENT_CODE_RESIZED, Width: w, Height: h})

	core.LogInfo("window '%s' created at %dx%d", applicationName, w, h)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// Poll pumps the glfw queue once and yields what the callbacks gathered.
func (p *Platform) Poll() iter.Seq[core.Event] {
	glfw.PollEvents()
	events := p.pending
	p.pending = nil
	return func(yield func(core.Event) bool) {
		for _, ev := range events {
			if !yield(ev) {
				return
			}
		}
	}
}

// WaitEvents blocks until an event arrives or timeout seconds pass. Used
// while the window is minimised.
func (p *Platform) WaitEvents(timeout float64) {
	glfw.WaitEventsTimeout(timeout)
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface returns the raw VkSurfaceKHR for instance.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, fmt.Errorf("vulkan surface creation failed: %w: %w", err, core.ErrConfiguration)
	}
	return surface, nil
}

// VulkanProcAddress is the loader entry point for the Vulkan bindings.
func (p *Platform) VulkanProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) push(ev core.Event) {
	p.pending = append(p.pending, ev)
}

func (p *Platform) onKey(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code := translateKey(key)
	if code == core.KEY_UNKNOWN {
		return
	}
	switch action {
	case glfw.Press:
		p.push(core.Event{Type: core.EVENT_CODE_KEY_PRESSED, Key: code})
	case glfw.Release:
		p.push(core.Event{Type: core.EVENT_CODE_KEY_RELEASED, Key: code})
	}
}

func (p *Platform) onMouseButton(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	typ := core.EVENT_CODE_BUTTON_PRESSED
	if action == glfw.Release {
		typ = core.EVENT_CODE_BUTTON_RELEASED
	}
	p.push(core.Event{Type: typ, Button: b})
}

func (p *Platform) onCursorPos(w *glfw.Window, xpos, ypos float64) {
	p.push(core.Event{Type: core.EVENT_CODE_MOUSE_MOVED, X: xpos, Y: ypos})
}

func (p *Platform) onFramebufferSize(w *glfw.Window, width, height int) {
	p.push(core.Event{Type: core.EVENT_CODE_RESIZED, Width: uint32(width), Height: uint32(height)})
}

func (p *Platform) onFocus(w *glfw.Window, focused bool) {
	p.push(core.Event{Type: core.EVENT_CODE_FOCUS_CHANGED, Focused: focused})
}

func (p *Platform) onClose(w *glfw.Window) {
	p.push(core.Event{Type: core.EVENT_CODE_APPLICATION_QUIT})
}
