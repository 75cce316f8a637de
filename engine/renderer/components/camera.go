package components

import (
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
)

const (
	/** @brief Units per second the camera travels while a movement key is held. */
	MOVE_SPEED float32 = 10.0
	/** @brief Radians per pixel of mouse travel when mouse-look is enabled. */
	ROTATION_SPEED float32 = 0.005
)

// KeyReader is the slice of input state the camera needs.
type KeyReader interface {
	IsDown(key core.KeyCode) bool
}

/**
 * @brief A free-flying camera described by a horizontal angle, a vertical
 * angle and a position. Direction, right and up are derived on every call.
 */
type Camera struct {
	/** @brief Rotation around the world Y axis, in radians. */
	HAngle float32
	/** @brief Pitch, in radians. */
	VAngle float32
	/** @brief The position of this camera. */
	Position math.Vec3
	/** @brief Units per second for keyboard movement. */
	MoveSpeed float32
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.HAngle = 0
	c.VAngle = 0
	c.Position = math.NewVec3(0, 0, -1)
	c.MoveSpeed = MOVE_SPEED
}

// Direction is the unit vector the camera looks along.
func (c *Camera) Direction() math.Vec3 {
	return math.NewVec3(
		math.Cos(c.VAngle)*math.Sin(c.HAngle),
		math.Sin(c.VAngle),
		math.Cos(c.VAngle)*math.Cos(c.HAngle),
	)
}

// Right is the horizontal unit vector pointing to the screen's right.
func (c *Camera) Right() math.Vec3 {
	return math.NewVec3(
		math.Sin(c.HAngle-math.K_HALF_PI),
		0,
		math.Cos(c.HAngle-math.K_HALF_PI),
	)
}

func (c *Camera) Up() math.Vec3 {
	return c.Right().Cross(c.Direction())
}

// Update moves the camera for every held movement key, scaled by elapsed seconds.
func (c *Camera) Update(input KeyReader, elapsed float64) {
	step := c.MoveSpeed * float32(elapsed)
	if input.IsDown(core.KEY_W) {
		c.Position = c.Position.Add(c.Direction().MulScalar(step))
	}
	if input.IsDown(core.KEY_S) {
		c.Position = c.Position.Sub(c.Direction().MulScalar(step))
	}
	if input.IsDown(core.KEY_A) {
		c.Position = c.Position.Sub(c.Right().MulScalar(step))
	}
	if input.IsDown(core.KEY_D) {
		c.Position = c.Position.Add(c.Right().MulScalar(step))
	}
}

// Look turns the camera by a mouse delta in pixels. Pitch stops at straight up or down.
func (c *Camera) Look(dx, dy float64) {
	c.HAngle += float32(dx) * ROTATION_SPEED
	c.VAngle = math.Clamp(c.VAngle-float32(dy)*ROTATION_SPEED, -math.K_HALF_PI, math.K_HALF_PI)
}

// ViewMatrix is recomputed from the current angles on every call.
func (c *Camera) ViewMatrix() math.Mat4 {
	return math.NewMat4LookAt(c.Position, c.Position.Add(c.Direction()), c.Up())
}
