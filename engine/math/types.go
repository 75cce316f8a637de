package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief a 4x4 column-major matrix, typically used to represent view and projection transforms. */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents a single vertex in 2D space. Only the position
 * is fed to the pipeline.
 */
type Vertex2D struct {
	/** @brief The position of the vertex */
	Position Vec2
}
