package core

import "github.com/spaghettifunk/gdemo/engine/containers"

const AVG_COUNT int = 30

// FrameMetrics keeps a rolling average of frame times in milliseconds.
type FrameMetrics struct {
	samples *containers.RingQueue[float64]
	sum     float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		samples: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records one frame that took frameElapsedTime seconds.
func (m *FrameMetrics) Update(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0
	if m.samples.IsFull() {
		oldest, _ := m.samples.Dequeue()
		m.sum -= oldest
	}
	// cannot fail, a slot was freed above
	_ = m.samples.Enqueue(frameMS)
	m.sum += frameMS
}

// AverageFrameMS is the mean over the last AVG_COUNT frames, or fewer during warm-up.
func (m *FrameMetrics) AverageFrameMS() float64 {
	if m.samples.Len() == 0 {
		return 0
	}
	return m.sum / float64(m.samples.Len())
}
