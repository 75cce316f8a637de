package assets

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestDetermineAssetType(t *testing.T) {
	tests := []struct {
		path string
		want metadata.ResourceType
	}{
		{"assets/shaders/triangle.vert.spv", metadata.ResourceTypeShader},
		{"config.toml", metadata.ResourceTypeConfig},
		{"assets/blob.bin", metadata.ResourceTypeBinary},
		{"shaders/triangle.vert", metadata.ResourceTypeNone},
		{"README", metadata.ResourceTypeNone},
	}
	for _, tt := range tests {
		if got := determineAssetType(tt.path); got != tt.want {
			t.Errorf("determineAssetType(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func newManager(t *testing.T) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	if err != nil {
		t.Fatalf("NewAssetManager() error = %v", err)
	}
	t.Cleanup(func() { _ = am.Shutdown() })
	return am
}

// waitForChange reads changes until one for path arrives.
func waitForChange(t *testing.T, am *AssetManager, path string) AssetChange {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-am.Changes():
			if !ok {
				t.Fatalf("changes channel closed while waiting for %s", path)
			}
			if c.Path == path {
				return c
			}
		case <-timeout:
			t.Fatalf("no change reported for %s", path)
		}
	}
}

func TestInitializeIndexesTree(t *testing.T) {
	dir := t.TempDir()
	shaders := filepath.Join(dir, "shaders")
	if err := os.MkdirAll(shaders, 0o755); err != nil {
		t.Fatal(err)
	}
	spv := filepath.Join(shaders, "triangle.frag.spv")
	if err := os.WriteFile(spv, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shaders, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	am := newManager(t)
	if err := am.Initialize(dir); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	info, ok := am.Lookup(spv)
	if !ok || info.Type != metadata.ResourceTypeShader {
		t.Errorf("Lookup(%s) = %+v, %v", spv, info, ok)
	}
	if _, ok := am.Lookup(filepath.Join(shaders, "notes.txt")); ok {
		t.Errorf("untyped file was indexed")
	}

	res, err := am.LoadAsset(spv, nil)
	if err != nil {
		t.Fatalf("LoadAsset() error = %v", err)
	}
	if data, _ := res.Data.([]byte); !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Errorf("LoadAsset() data = %v", res.Data)
	}
	if info, _ := am.Lookup(spv); info.LastLoaded.IsZero() {
		t.Errorf("LastLoaded not set after load")
	}
	if err := am.UnloadAsset(res); err != nil || res.Data != nil {
		t.Errorf("UnloadAsset() = %v, data %v", err, res.Data)
	}
}

func TestLoadAssetUnknownType(t *testing.T) {
	am := newManager(t)
	_, err := am.LoadAsset(filepath.Join(t.TempDir(), "image.png"), nil)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestWatchPublishesShaderChange(t *testing.T) {
	dir := t.TempDir()
	am := newManager(t)
	if err := am.Initialize(dir); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	spv := filepath.Join(dir, "triangle.vert.spv")
	if err := os.WriteFile(spv, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	c := waitForChange(t, am, spv)
	if c.Type != metadata.ResourceTypeShader {
		t.Errorf("change type = %s, want shader", c.Type)
	}
	if _, ok := am.Lookup(spv); !ok {
		t.Errorf("created shader was not indexed")
	}
}

func TestWatchFileIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(config, []byte("log_level = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	am := newManager(t)
	if err := am.WatchFile(config); err != nil {
		t.Fatalf("WatchFile() error = %v", err)
	}

	// A sibling of the same type is written first and must not show up.
	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(config, []byte("log_level = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-am.Changes():
			if c.Path != config {
				t.Fatalf("unexpected change for %s", c.Path)
			}
			if c.Type != metadata.ResourceTypeConfig {
				t.Errorf("change type = %s, want config", c.Type)
			}
			return
		case <-timeout:
			t.Fatal("no change reported for config")
		}
	}
}

func TestShutdownClosesChanges(t *testing.T) {
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	if err := am.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, ok := <-am.Changes(); ok {
		t.Errorf("Changes() still open after Shutdown")
	}
	if err := am.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if err := am.Initialize(t.TempDir()); err == nil {
		t.Errorf("Initialize() after Shutdown succeeded")
	}
}

func TestStrayTomlInTreeIsNotConfig(t *testing.T) {
	dir := t.TempDir()
	stray := filepath.Join(dir, "stray.toml")
	if err := os.WriteFile(stray, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	am := newManager(t)
	if err := am.Initialize(dir); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, ok := am.Lookup(stray); ok {
		t.Errorf("stray toml was indexed")
	}
	if _, err := am.LoadAsset(stray, nil); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("LoadAsset(stray) error = %v, want ErrConfiguration", err)
	}

	// The stray file is written first, so the shader must be the first change.
	if err := os.WriteFile(stray, []byte("x = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	spv := filepath.Join(dir, "triangle.frag.spv")
	if err := os.WriteFile(spv, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-am.Changes():
		if c.Path != spv {
			t.Fatalf("unexpected change for %s (%s)", c.Path, c.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported for shader")
	}
}

func TestWatchLoopSurvivesClosedErrors(t *testing.T) {
	dir := t.TempDir()
	am := &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
		files:   make(map[string]bool),
		roots:   []string{dir},
		changes: make(chan AssetChange, changeBufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	go am.run(events, errs)

	close(errs)
	spv := filepath.Join(dir, "triangle.vert.spv")
	for i := 0; i < 3; i++ {
		select {
		case events <- fsnotify.Event{Name: spv, Op: fsnotify.Write}:
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d not consumed after errors closed", i)
		}
		if c := <-am.Changes(); c.Path != spv || c.Type != metadata.ResourceTypeShader {
			t.Errorf("change %d = %+v", i, c)
		}
	}

	close(events)
	select {
	case <-am.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop when events closed")
	}
	if _, ok := <-am.Changes(); ok {
		t.Errorf("Changes() still open after events closed")
	}
}
