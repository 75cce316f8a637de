package core

import (
	"errors"
)

// Every failure in the renderer is fatal; these sentinels only tell the caller which kind it was.
var (
	// ErrTimeout is returned when the presentation engine did not hand out an image in time.
	ErrTimeout = errors.New("timeout")
	// ErrDevice wraps graphics-API failures: submission, buffer writes, presentation.
	ErrDevice = errors.New("device error")
	// ErrConfiguration covers startup failures such as a missing device, surface format or shader.
	ErrConfiguration = errors.New("configuration error")
)
