package core

import "time"

// FrameClock measures the wall-clock delta between ticks and refreshes a
// frames-per-second estimate roughly once per second.
type FrameClock struct {
	now func() time.Time

	last        time.Time
	started     bool
	frames      uint32
	accumulated time.Duration
	fps         uint32
	refreshed   bool
}

func NewFrameClock() *FrameClock {
	return NewFrameClockWithSource(time.Now)
}

// NewFrameClockWithSource builds a clock reading time from now instead of the system clock.
func NewFrameClockWithSource(now func() time.Time) *FrameClock {
	return &FrameClock{now: now}
}

// Start resets the clock. The first Tick after Start measures from this instant.
func (c *FrameClock) Start() {
	c.last = c.now()
	c.started = true
	c.frames = 0
	c.accumulated = 0
}

// Tick returns the seconds elapsed since the previous tick. When more than one
// second has accumulated the frame count is published as the FPS estimate and
// both accumulators reset.
func (c *FrameClock) Tick() float64 {
	current := c.now()
	if !c.started {
		c.last = current
		c.started = true
	}
	delta := current.Sub(c.last)
	c.last = current

	c.frames++
	c.accumulated += delta
	c.refreshed = false
	if c.accumulated > time.Second {
		c.fps = c.frames
		c.refreshed = true
		c.frames = 0
		c.accumulated = 0
	}

	return delta.Seconds()
}

// FPS is the last published estimate, zero until the first second has passed.
func (c *FrameClock) FPS() uint32 {
	return c.fps
}

// Refreshed reports whether the last Tick published a new FPS estimate.
func (c *FrameClock) Refreshed() bool {
	return c.refreshed
}
