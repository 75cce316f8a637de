package metadata

import "github.com/spaghettifunk/gdemo/engine/math"

// Extent2D is the pixel size of a surface or framebuffer.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Aspect returns width over height, or fallback when the height is zero.
func (e Extent2D) Aspect(fallback float32) float32 {
	if e.Height == 0 || e.Width == 0 {
		return fallback
	}
	return float32(e.Width) / float32(e.Height)
}

/**
 * @brief The per-frame uniform block read by the vertex stage.
 * Layout matches the std140 block in shaders/triangle.vert.
 */
type UniformFrameData struct {
	/** @brief Camera view transform. */
	WorldView math.Mat4
	/** @brief Perspective projection. */
	Projection math.Mat4
}

// Projection settings used to build UniformFrameData.Projection.
type ProjectionConfig struct {
	FovRadians float32
	Near       float32
	Far        float32
}
