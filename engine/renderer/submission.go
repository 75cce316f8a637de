package renderer

import (
	"fmt"

	"github.com/google/uuid"
)

// FrameStage names the step of a tick that produced an error.
type FrameStage uint8

const (
	StageReclaim FrameStage = iota
	StageAcquire
	StageUpdate
	StageRecord
	StageSubmit
	StagePresent
)

func (s FrameStage) String() string {
	switch s {
	case StageReclaim:
		return "reclaim"
	case StageAcquire:
		return "acquire"
	case StageUpdate:
		return "update"
	case StageRecord:
		return "record"
	case StageSubmit:
		return "submit"
	case StagePresent:
		return "present"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

/**
 * @brief A unit of GPU work handed to the queue that has not been observed
 * as complete yet. Owns its command buffer and completion signal until
 * reclaimed.
 */
type InFlightSubmission struct {
	ID         uuid.UUID
	Frame      uint64
	ImageIndex uint32
	Commands   CommandBuffer
	Signal     CompletionSignal
}

func (s *InFlightSubmission) release() {
	if s.Commands != nil {
		s.Commands.Free()
		s.Commands = nil
	}
	if s.Signal != nil {
		s.Signal.Release()
		s.Signal = nil
	}
}

// FrameResult describes what a successful tick did.
type FrameResult struct {
	Frame      uint64
	ImageIndex uint32
	// Reclaimed is the number of submissions retired during the tick.
	Reclaimed int
	// InFlight is the number of submissions pending after the tick.
	InFlight int
	// Stalled reports more pending submissions than swap chain images.
	Stalled bool
}

// FrameError wraps the failure of a single tick. Err wraps one of the core
// error kinds.
type FrameError struct {
	Stage FrameStage
	Frame uint64
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %s: %v", e.Frame, e.Stage, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
