package engine

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/gdemo/engine/assets"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer"
	"github.com/spaghettifunk/gdemo/engine/renderer/components"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// fakePump hands out one batch of events per Poll.
type fakePump struct {
	batches [][]core.Event
	polls   int
	waits   int
}

func (p *fakePump) Poll() iter.Seq[core.Event] {
	var batch []core.Event
	if p.polls < len(p.batches) {
		batch = p.batches[p.polls]
	} else {
		batch = []core.Event{{Type: core.EVENT_CODE_APPLICATION_QUIT}}
	}
	p.polls++
	return func(yield func(core.Event) bool) {
		for _, ev := range batch {
			if !yield(ev) {
				return
			}
		}
	}
}

func (p *fakePump) WaitEvents(float64) { p.waits++ }

type fakeDriver struct {
	ticks       int
	tickErr     error
	clearColors []math.Vec4
	projections []metadata.ProjectionConfig
	drains      int
	releases    int
}

func (d *fakeDriver) Tick(float64) (renderer.FrameResult, error) {
	d.ticks++
	return renderer.FrameResult{Frame: uint64(d.ticks)}, d.tickErr
}

func (d *fakeDriver) SetClearColor(c math.Vec4) { d.clearColors = append(d.clearColors, c) }

func (d *fakeDriver) SetProjection(fov, near, far float32) {
	d.projections = append(d.projections, metadata.ProjectionConfig{FovRadians: fov, Near: near, Far: far})
}

func (d *fakeDriver) Drain(context.Context) error { d.drains++; return nil }
func (d *fakeDriver) ReleaseAll()                 { d.releases++ }
func (d *fakeDriver) Stats() renderer.Stats       { return renderer.Stats{} }

func newTestEngine(batches ...[]core.Event) (*Engine, *fakePump, *fakeDriver) {
	pump := &fakePump{batches: batches}
	driver := &fakeDriver{}
	cfg := DefaultApplicationConfig()
	e := &Engine{
		gameInstance: &Game{ApplicationConfig: &cfg},
		config:       cfg,
		events:       pump,
		orchestrator: driver,
		camera:       components.NewCamera(),
		input:        core.NewInputState(),
		clock:        core.NewFrameClock(),
		metrics:      core.NewFrameMetrics(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}
	return e, pump, driver
}

func TestRunStopsOnQuitAndEscape(t *testing.T) {
	tests := []struct {
		name      string
		batches   [][]core.Event
		wantTicks int
	}{
		{
			name:      "close event",
			batches:   [][]core.Event{nil, nil, {{Type: core.EVENT_CODE_APPLICATION_QUIT}}},
			wantTicks: 2,
		},
		{
			name:      "escape key",
			batches:   [][]core.Event{nil, {{Type: core.EVENT_CODE_KEY_PRESSED, Key: core.KEY_ESCAPE}}},
			wantTicks: 1,
		},
		{
			name: "other keys keep running",
			batches: [][]core.Event{
				{{Type: core.EVENT_CODE_KEY_PRESSED, Key: core.KEY_W}},
				{{Type: core.EVENT_CODE_KEY_RELEASED, Key: core.KEY_W}},
				{{Type: core.EVENT_CODE_APPLICATION_QUIT}},
			},
			wantTicks: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, driver := newTestEngine(tt.batches...)
			if err := e.Run(); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if driver.ticks != tt.wantTicks {
				t.Errorf("ticks = %d, want %d", driver.ticks, tt.wantTicks)
			}
		})
	}
}

func TestRunReturnsFrameError(t *testing.T) {
	e, _, driver := newTestEngine()
	driver.tickErr = &renderer.FrameError{Stage: renderer.StageAcquire, Frame: 1, Err: core.ErrTimeout}
	err := e.Run()
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if driver.ticks != 1 {
		t.Errorf("ticks = %d, want 1", driver.ticks)
	}
}

func TestMinimiseSuspendsTicking(t *testing.T) {
	e, pump, driver := newTestEngine(
		[]core.Event{{Type: core.EVENT_CODE_RESIZED, Width: 0, Height: 0}},
		nil,
		[]core.Event{{Type: core.EVENT_CODE_RESIZED, Width: 800, Height: 600}},
		[]core.Event{{Type: core.EVENT_CODE_APPLICATION_QUIT}},
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if driver.ticks != 1 {
		t.Errorf("ticks = %d, want 1", driver.ticks)
	}
	if pump.waits != 2 {
		t.Errorf("waits = %d, want 2", pump.waits)
	}
	if w, h := e.GetFramebufferSize(); w != 800 || h != 600 {
		t.Errorf("size = %dx%d, want 800x600", w, h)
	}
	if got := e.input.Aspect(); got < 1.333 || got > 1.334 {
		t.Errorf("input aspect = %v, want 4/3", got)
	}
}

func TestStopEndsRun(t *testing.T) {
	e, _, driver := newTestEngine()
	e.gameInstance.FnUpdate = func(float64, *core.InputState) error {
		e.Stop()
		return nil
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if driver.ticks != 1 {
		t.Errorf("ticks = %d, want 1", driver.ticks)
	}
}

func TestMouseLookOnlyWhenEnabled(t *testing.T) {
	tests := []struct {
		name      string
		mouseLook bool
		dragging  bool
		wantH     float32
	}{
		{name: "disabled", mouseLook: false, dragging: true, wantH: 0},
		{name: "enabled without drag", mouseLook: true, dragging: false, wantH: 0},
		{name: "enabled with right drag", mouseLook: true, dragging: true, wantH: 100 * components.ROTATION_SPEED},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine()
			e.config.Camera.MouseLook = tt.mouseLook
			e.input.SetButton(core.BUTTON_RIGHT, tt.dragging)
			e.onMouseMoved(10, 10)
			e.onMouseMoved(110, 10)
			if d := e.camera.HAngle - tt.wantH; d > 1e-6 || d < -1e-6 {
				t.Errorf("HAngle = %v, want %v", e.camera.HAngle, tt.wantH)
			}
		})
	}
}

func TestApplyConfigLiveFields(t *testing.T) {
	e, _, driver := newTestEngine()
	next := e.config
	next.Renderer.ClearColor = [4]float32{1, 0, 0, 1}
	next.Renderer.FovDegrees = 90
	next.Camera.MoveSpeed = 4
	next.Window.Width = 640

	e.applyConfig(next)

	if len(driver.clearColors) != 1 || driver.clearColors[0] != math.NewVec4(1, 0, 0, 1) {
		t.Errorf("clear colors = %v", driver.clearColors)
	}
	if len(driver.projections) != 1 || driver.projections[0].FovRadians != math.DegToRad(90) {
		t.Errorf("projections = %v", driver.projections)
	}
	if e.camera.MoveSpeed != 4 {
		t.Errorf("move speed = %v, want 4", e.camera.MoveSpeed)
	}
	if e.config.Window.Width != DefaultApplicationConfig().Window.Width {
		t.Errorf("structural window width applied live: %d", e.config.Window.Width)
	}
}

func TestApplyConfigLogLevel(t *testing.T) {
	prev := core.GetLogLevel()
	defer core.SetLogLevel(prev)
	core.SetLogLevel(core.InfoLevel)

	e, _, _ := newTestEngine()
	next := e.config
	next.LogLevel = "debug"
	e.applyConfig(next)

	if got := core.GetLogLevel(); got != core.DebugLevel {
		t.Errorf("log level = %v, want debug", got)
	}
	if e.config.LogLevel != "debug" {
		t.Errorf("config log level = %q, want debug", e.config.LogLevel)
	}
}

func TestConfigFileChangeIsApplied(t *testing.T) {
	am, err := assets.NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	defer am.Shutdown()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[camera]\nmove_speed = 7.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := am.WatchFile(path); err != nil {
		t.Fatal(err)
	}

	e, _, driver := newTestEngine()
	e.assetManager = am
	e.onAssetChanged(assets.AssetChange{Path: path, Type: metadata.ResourceTypeConfig, Op: fsnotify.Write})
	if e.camera.MoveSpeed != 7 {
		t.Errorf("move speed = %v, want 7", e.camera.MoveSpeed)
	}
	if len(driver.clearColors) != 1 {
		t.Errorf("clear color not pushed to the orchestrator")
	}

	// A broken edit keeps the running settings.
	if err := os.WriteFile(path, []byte("[camera\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.onAssetChanged(assets.AssetChange{Path: path, Type: metadata.ResourceTypeConfig, Op: fsnotify.Write})
	if e.camera.MoveSpeed != 7 || len(driver.clearColors) != 1 {
		t.Errorf("invalid config was applied")
	}

	e.onAssetChanged(assets.AssetChange{Path: path, Type: metadata.ResourceTypeConfig, Op: fsnotify.Remove})
	if len(driver.clearColors) != 1 {
		t.Errorf("removed config was applied")
	}
}

func TestShutdownDrainsBeforeRelease(t *testing.T) {
	e, _, driver := newTestEngine()
	shutdowns := 0
	e.gameInstance.FnShutdown = func() error { shutdowns++; return nil }
	done := make(chan error, 1)
	go func() { done <- e.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown() did not return")
	}
	if driver.drains != 1 || driver.releases != 1 || shutdowns != 1 {
		t.Errorf("drains=%d releases=%d game shutdowns=%d, want 1 each", driver.drains, driver.releases, shutdowns)
	}
}
