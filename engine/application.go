package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer"
	"github.com/spaghettifunk/gdemo/engine/renderer/components"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

const DefaultConfigPath = "config.toml"

// Duration is a time.Duration written as a Go duration string ("1s", "500ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type WindowConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position.
	X uint32 `toml:"x"`
	Y uint32 `toml:"y"`
	// Window starting size.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	AcquireTimeout Duration   `toml:"acquire_timeout"`
	ClearColor     [4]float32 `toml:"clear_color"`
	FovDegrees     float32    `toml:"fov_degrees"`
	Near           float32    `toml:"near"`
	Far            float32    `toml:"far"`
	Validation     bool       `toml:"validation"`
}

type CameraConfig struct {
	MoveSpeed float32 `toml:"move_speed"`
	MouseLook bool    `toml:"mouse_look"`
}

type ApplicationConfig struct {
	Window    WindowConfig   `toml:"window"`
	LogLevel  string         `toml:"log_level"`
	AssetsDir string         `toml:"assets_dir"`
	Renderer  RendererConfig `toml:"renderer"`
	Camera    CameraConfig   `toml:"camera"`
}

func DefaultApplicationConfig() ApplicationConfig {
	orchestrator := renderer.DefaultOrchestratorConfig()
	c := orchestrator.ClearColor
	return ApplicationConfig{
		Window: WindowConfig{
			Name:   "gdemo",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		LogLevel:  "info",
		AssetsDir: "assets",
		Renderer: RendererConfig{
			AcquireTimeout: Duration{orchestrator.AcquireTimeout},
			ClearColor:     [4]float32{c.X, c.Y, c.Z, c.W},
			FovDegrees:     math.RadToDeg(orchestrator.Projection.FovRadians),
			Near:           orchestrator.Projection.Near,
			Far:            orchestrator.Projection.Far,
			Validation:     false,
		},
		Camera: CameraConfig{
			MoveSpeed: components.MOVE_SPEED,
			MouseLook: false,
		},
	}
}

// LoadApplicationConfig overlays the file at path onto base. A missing file
// leaves base untouched.
func LoadApplicationConfig(path string, base ApplicationConfig) (ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogInfo("No config file at %s, using defaults.", path)
		return base, base.Validate()
	}
	if err != nil {
		return base, fmt.Errorf("reading config %s: %w: %w", path, err, core.ErrConfiguration)
	}
	return DecodeApplicationConfig(data, base)
}

func DecodeApplicationConfig(data []byte, base ApplicationConfig) (ApplicationConfig, error) {
	cfg := base
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return base, fmt.Errorf("config %d:%d: %w: %w", row, col, err, core.ErrConfiguration)
		}
		return base, fmt.Errorf("config: %w: %w", err, core.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func (c ApplicationConfig) Validate() error {
	var errs []error
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.AssetsDir == "" {
		errs = append(errs, errors.New("assets_dir is empty"))
	}
	if c.Renderer.AcquireTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("acquire_timeout %s must be positive", c.Renderer.AcquireTimeout))
	}
	if c.Renderer.FovDegrees <= 0 || c.Renderer.FovDegrees >= 180 {
		errs = append(errs, fmt.Errorf("fov_degrees %v must be in (0, 180)", c.Renderer.FovDegrees))
	}
	if c.Renderer.Near <= 0 || c.Renderer.Far <= c.Renderer.Near {
		errs = append(errs, fmt.Errorf("clip planes near=%v far=%v need 0 < near < far", c.Renderer.Near, c.Renderer.Far))
	}
	if c.Camera.MoveSpeed < 0 {
		errs = append(errs, fmt.Errorf("move_speed %v must not be negative", c.Camera.MoveSpeed))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w: %w", errors.Join(errs...), core.ErrConfiguration)
	}
	return nil
}

func (c ApplicationConfig) OrchestratorConfig() renderer.OrchestratorConfig {
	return renderer.OrchestratorConfig{
		AcquireTimeout: c.Renderer.AcquireTimeout.Duration,
		ClearColor:     c.ClearColor(),
		Projection:     c.Projection(),
	}
}

func (c ApplicationConfig) ClearColor() math.Vec4 {
	cc := c.Renderer.ClearColor
	return math.NewVec4(cc[0], cc[1], cc[2], cc[3])
}

func (c ApplicationConfig) Projection() metadata.ProjectionConfig {
	return metadata.ProjectionConfig{
		FovRadians: math.DegToRad(c.Renderer.FovDegrees),
		Near:       c.Renderer.Near,
		Far:        c.Renderer.Far,
	}
}

// RestartRequired lists the fields that differ from c and cannot be applied
// to a running engine.
func (c ApplicationConfig) RestartRequired(next ApplicationConfig) []string {
	var fields []string
	if c.Window != next.Window {
		fields = append(fields, "window")
	}
	if c.AssetsDir != next.AssetsDir {
		fields = append(fields, "assets_dir")
	}
	if c.Renderer.AcquireTimeout != next.Renderer.AcquireTimeout {
		fields = append(fields, "renderer.acquire_timeout")
	}
	if c.Renderer.Validation != next.Renderer.Validation {
		fields = append(fields, "renderer.validation")
	}
	return fields
}
