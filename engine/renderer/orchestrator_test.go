package renderer

import (
	"context"
	"errors"
	"io"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestOrchestrator(t *testing.T, d *fakeDevice) *FrameOrchestrator {
	t.Helper()
	o, err := NewFrameOrchestrator(&fakeBackend{dev: d}, fakeView{}, DefaultOrchestratorConfig())
	if err != nil {
		t.Fatalf("NewFrameOrchestrator: %v", err)
	}
	return o
}

func TestTickRunsStepsInOrder(t *testing.T) {
	d := newFakeDevice(2)
	o := newTestOrchestrator(t, d)

	res, err := o.Tick(0.016)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []string{
		"acquire", "write-uniform", "allocate",
		"begin", "begin-pass", "bind-pipeline", "bind-set", "bind-vertex", "draw", "end-pass", "end",
		"submit", "present",
	}
	if !reflect.DeepEqual(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
	if res.Frame != 1 || res.ImageIndex != 0 || res.InFlight != 1 || res.Stalled {
		t.Errorf("result = %+v", res)
	}
	if d.timeouts[0] != time.Second {
		t.Errorf("acquire timeout = %v, want 1s", d.timeouts[0])
	}
	cb := d.buffers[0]
	if cb.target != "framebuffer-0" || cb.set != "set-0" || cb.drawn != 3 {
		t.Errorf("recorded target=%v set=%v drawn=%d", cb.target, cb.set, cb.drawn)
	}
	if cb.clearColor != math.NewVec4(0, 0, 1, 1) {
		t.Errorf("clear color = %v", cb.clearColor)
	}
}

func TestInFlightBoundedByImageCount(t *testing.T) {
	for _, images := range []int{2, 3, 4} {
		d := newFakeDevice(images)
		d.retireBeforeAcquire = true
		o := newTestOrchestrator(t, d)
		for i := 0; i < 50; i++ {
			res, err := o.Tick(0.016)
			if err != nil {
				t.Fatalf("images=%d tick %d: %v", images, i, err)
			}
			if res.InFlight > images || res.Stalled {
				t.Fatalf("images=%d tick %d: in flight %d, stalled %v", images, i, res.InFlight, res.Stalled)
			}
		}
		if o.Stats().Stalls != 0 {
			t.Errorf("images=%d: stalls = %d", images, o.Stats().Stalls)
		}
	}
}

func TestAcquireWaitIsReclaimedBeforeSubmit(t *testing.T) {
	for _, images := range []int{2, 3} {
		d := newFakeDevice(images)
		d.retireAcquiredImage = true
		o := newTestOrchestrator(t, d)
		for i := 0; i < 4*images; i++ {
			res, err := o.Tick(0.016)
			if err != nil {
				t.Fatalf("images=%d tick %d: %v", images, i, err)
			}
			if res.InFlight > images || res.Stalled {
				t.Fatalf("images=%d tick %d: in flight %d, stalled %v", images, i, res.InFlight, res.Stalled)
			}
			if wantReclaimed := i >= images; (res.Reclaimed == 1) != wantReclaimed {
				t.Errorf("images=%d tick %d: reclaimed = %d", images, i, res.Reclaimed)
			}
		}
		if o.Stats().Stalls != 0 {
			t.Errorf("images=%d: stalls = %d", images, o.Stats().Stalls)
		}
		if o.InFlight() != images {
			t.Errorf("images=%d: in flight = %d, want %d", images, o.InFlight(), images)
		}
	}
}

func TestNoCompletionGrowsAndReportsStall(t *testing.T) {
	d := newFakeDevice(2)
	o := newTestOrchestrator(t, d)

	var res FrameResult
	for i := 0; i < 5; i++ {
		var err error
		if res, err = o.Tick(0.016); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if wantStalled := i+1 > 2; res.Stalled != wantStalled {
			t.Errorf("tick %d: stalled = %v, want %v", i, res.Stalled, wantStalled)
		}
	}
	if o.InFlight() != 5 || res.InFlight != 5 {
		t.Errorf("in flight = %d (result %d), want 5", o.InFlight(), res.InFlight)
	}
	if o.Stats().Stalls != 1 {
		t.Errorf("stalls = %d, want 1", o.Stats().Stalls)
	}
	for i, cb := range d.buffers {
		if cb.freed != 0 {
			t.Errorf("buffer %d freed while in flight", i)
		}
	}
}

func TestReclaimIsIdempotent(t *testing.T) {
	d := newFakeDevice(2)
	o := newTestOrchestrator(t, d)
	if _, err := o.Tick(0); err != nil {
		t.Fatal(err)
	}
	sig := d.signals[0]
	sig.done = true

	first, err1 := sig.Status()
	second, err2 := sig.Status()
	if !first || !second || err1 != nil || err2 != nil {
		t.Fatalf("status = (%v,%v) then (%v,%v)", first, err1, second, err2)
	}

	n, err := o.Reclaim()
	if err != nil || n != 1 {
		t.Fatalf("first reclaim = %d, %v", n, err)
	}
	n, err = o.Reclaim()
	if err != nil || n != 0 {
		t.Fatalf("second reclaim = %d, %v", n, err)
	}
	if sig.released != 1 || d.buffers[0].freed != 1 {
		t.Errorf("released %d times, freed %d times", sig.released, d.buffers[0].freed)
	}
}

func TestReclaimKeepsOrderAndPendingEntries(t *testing.T) {
	d := newFakeDevice(3)
	o := newTestOrchestrator(t, d)
	for i := 0; i < 3; i++ {
		if _, err := o.Tick(0); err != nil {
			t.Fatal(err)
		}
	}
	d.signals[1].done = true

	n, err := o.Reclaim()
	if err != nil || n != 1 {
		t.Fatalf("reclaim = %d, %v", n, err)
	}
	if o.InFlight() != 2 {
		t.Fatalf("in flight = %d, want 2", o.InFlight())
	}
	if o.inFlight[0].Frame != 1 || o.inFlight[1].Frame != 3 {
		t.Errorf("frames = %d,%d, want 1,3", o.inFlight[0].Frame, o.inFlight[1].Frame)
	}
	if d.signals[0].released != 0 || d.signals[2].released != 0 {
		t.Error("pending signal released")
	}
}

func TestReclaimErrorKeepsRemainingEntries(t *testing.T) {
	d := newFakeDevice(3)
	o := newTestOrchestrator(t, d)
	for i := 0; i < 3; i++ {
		if _, err := o.Tick(0); err != nil {
			t.Fatal(err)
		}
	}
	d.signals[0].done = true
	d.signals[1].err = errors.New("device lost")

	_, err := o.Tick(0)
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Stage != StageReclaim {
		t.Fatalf("err = %v, want reclaim FrameError", err)
	}
	if !errors.Is(err, core.ErrDevice) {
		t.Errorf("err = %v, want ErrDevice", err)
	}
	if o.InFlight() != 2 {
		t.Errorf("in flight = %d, want 2", o.InFlight())
	}
}

func TestTickErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(d *fakeDevice)
		stage     FrameStage
		kind      error
		inFlight  int
		wantFreed bool
	}{
		{
			name:  "acquire timeout",
			setup: func(d *fakeDevice) { d.acquireErr = core.ErrTimeout },
			stage: StageAcquire,
			kind:  core.ErrTimeout,
		},
		{
			name:  "uniform write",
			setup: func(d *fakeDevice) { d.writeErr = errors.New("map failed") },
			stage: StageUpdate,
			kind:  core.ErrDevice,
		},
		{
			name:  "allocate",
			setup: func(d *fakeDevice) { d.allocErr = errors.New("out of memory") },
			stage: StageRecord,
			kind:  core.ErrDevice,
		},
		{
			name:      "end recording",
			setup:     func(d *fakeDevice) { d.endErr = errors.New("bad state") },
			stage:     StageRecord,
			kind:      core.ErrDevice,
			wantFreed: true,
		},
		{
			name:      "submit",
			setup:     func(d *fakeDevice) { d.submitErr = core.ErrDevice },
			stage:     StageSubmit,
			kind:      core.ErrDevice,
			wantFreed: true,
		},
		{
			name:     "present",
			setup:    func(d *fakeDevice) { d.presentErr = errors.New("surface lost") },
			stage:    StagePresent,
			kind:     core.ErrDevice,
			inFlight: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDevice(2)
			tt.setup(d)
			o := newTestOrchestrator(t, d)

			res, err := o.Tick(0)
			if err == nil {
				t.Fatal("expected error")
			}
			var ferr *FrameError
			if !errors.As(err, &ferr) {
				t.Fatalf("err %T is not a *FrameError", err)
			}
			if ferr.Stage != tt.stage || ferr.Frame != 1 {
				t.Errorf("stage=%v frame=%d, want %v frame 1", ferr.Stage, ferr.Frame, tt.stage)
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("err = %v, want %v", err, tt.kind)
			}
			if res.InFlight != tt.inFlight || o.InFlight() != tt.inFlight {
				t.Errorf("in flight = %d, want %d", o.InFlight(), tt.inFlight)
			}
			if tt.wantFreed && (len(d.buffers) != 1 || d.buffers[0].freed != 1) {
				t.Error("command buffer of the failed tick was not freed")
			}
		})
	}
}

func TestUniformWritesTargetAcquiredImage(t *testing.T) {
	d := newFakeDevice(3)
	o := newTestOrchestrator(t, d)
	for i := 0; i < 7; i++ {
		if _, err := o.Tick(0); err != nil {
			t.Fatal(err)
		}
	}
	counts := make([]int, 3)
	for _, idx := range d.acquired {
		counts[idx]++
	}
	for i, u := range d.uniforms {
		if len(u.writes) != counts[i] {
			t.Errorf("uniform %d written %d times, image acquired %d times", i, len(u.writes), counts[i])
		}
	}
	proj := d.uniforms[0].writes[0].Projection
	want := math.NewMat4Perspective(math.DegToRad(45), 1920.0/1080.0, 0.1, 100)
	if proj != want {
		t.Errorf("projection = %v, want %v", proj, want)
	}
}

func TestLiveSettingsApplyOnNextTick(t *testing.T) {
	d := newFakeDevice(2)
	o := newTestOrchestrator(t, d)
	red := math.NewVec4(1, 0, 0, 1)
	o.SetClearColor(red)
	o.SetProjection(math.DegToRad(60), 0.5, 50)

	if _, err := o.Tick(0); err != nil {
		t.Fatal(err)
	}
	if d.buffers[0].clearColor != red {
		t.Errorf("clear color = %v, want %v", d.buffers[0].clearColor, red)
	}
	want := math.NewMat4Perspective(math.DegToRad(60), 1920.0/1080.0, 0.5, 50)
	if got := d.uniforms[0].writes[0].Projection; got != want {
		t.Errorf("projection = %v, want %v", got, want)
	}
}

func TestDrain(t *testing.T) {
	d := newFakeDevice(2)
	o := newTestOrchestrator(t, d)
	for i := 0; i < 3; i++ {
		if _, err := o.Tick(0); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range d.signals {
		s.done = true
	}
	if err := o.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if o.InFlight() != 0 {
		t.Errorf("in flight = %d after drain", o.InFlight())
	}
	for i, cb := range d.buffers {
		if cb.freed != 1 {
			t.Errorf("buffer %d freed %d times", i, cb.freed)
		}
	}
}

func TestDrainHonoursContext(t *testing.T) {
	d := newFakeDevice(2)
	o := newTestOrchestrator(t, d)
	if _, err := o.Tick(0); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := o.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain = %v, want deadline exceeded", err)
	}

	o.ReleaseAll()
	if o.InFlight() != 0 || d.signals[0].released != 1 || d.buffers[0].freed != 1 {
		t.Error("ReleaseAll left resources behind")
	}
}

func TestNewFrameOrchestratorValidates(t *testing.T) {
	d := newFakeDevice(1)
	if _, err := NewFrameOrchestrator(&fakeBackend{dev: d}, fakeView{}, DefaultOrchestratorConfig()); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("single image: err = %v, want ErrConfiguration", err)
	}

	d = newFakeDevice(2)
	res := d.resources()
	res.UniformBuffers = res.UniformBuffers[:1]
	if _, err := NewFrameOrchestratorFrom(d, d, d, res, fakeView{}, DefaultOrchestratorConfig()); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("short uniforms: err = %v, want ErrConfiguration", err)
	}
}
