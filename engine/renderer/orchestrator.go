package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

const (
	DefaultAcquireTimeout = time.Second
	drainPollInterval     = time.Millisecond
)

type OrchestratorConfig struct {
	AcquireTimeout time.Duration
	ClearColor     math.Vec4
	Projection     metadata.ProjectionConfig
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		AcquireTimeout: DefaultAcquireTimeout,
		ClearColor:     math.NewVec4(0, 0, 1, 1),
		Projection: metadata.ProjectionConfig{
			FovRadians: math.DegToRad(45),
			Near:       0.1,
			Far:        100,
		},
	}
}

// Stats are running totals over the orchestrator's lifetime.
type Stats struct {
	Frames    uint64
	Submitted uint64
	Reclaimed uint64
	Stalls    uint64
}

/**
 * @brief Drives one frame per Tick: reclaim retired submissions, acquire an
 * image, write that image's uniforms, record, submit and present. Never
 * blocks on the GPU except inside AcquireNextImage.
 */
type FrameOrchestrator struct {
	surface   Surface
	queue     Queue
	pool      CommandPool
	resources PipelineResources
	view      ViewSource

	framebuffers []Framebuffer
	config       OrchestratorConfig

	pendingClear      *math.Vec4
	pendingProjection *metadata.ProjectionConfig

	inFlight []*InFlightSubmission
	frame    uint64
	stalled  bool
	stats    Stats
}

func NewFrameOrchestrator(backend RendererBackend, view ViewSource, config OrchestratorConfig) (*FrameOrchestrator, error) {
	return NewFrameOrchestratorFrom(backend.Surface(), backend.Queue(), backend.CommandPool(), backend.Resources(), view, config)
}

func NewFrameOrchestratorFrom(surface Surface, queue Queue, pool CommandPool, resources PipelineResources, view ViewSource, config OrchestratorConfig) (*FrameOrchestrator, error) {
	if surface == nil || queue == nil || pool == nil || view == nil {
		return nil, fmt.Errorf("frame orchestrator: missing collaborator: %w", core.ErrConfiguration)
	}
	images := surface.ImageCount()
	if images < 2 {
		return nil, fmt.Errorf("frame orchestrator: swap chain has %d images, need at least 2: %w", images, core.ErrConfiguration)
	}
	framebuffers := surface.Framebuffers()
	if len(framebuffers) != images {
		return nil, fmt.Errorf("frame orchestrator: %d framebuffers for %d images: %w", len(framebuffers), images, core.ErrConfiguration)
	}
	if len(resources.UniformBuffers) != images || len(resources.DescriptorSets) != images {
		return nil, fmt.Errorf("frame orchestrator: need one uniform buffer and descriptor set per image (%d), got %d and %d: %w",
			images, len(resources.UniformBuffers), len(resources.DescriptorSets), core.ErrConfiguration)
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = DefaultAcquireTimeout
	}
	return &FrameOrchestrator{
		surface:      surface,
		queue:        queue,
		pool:         pool,
		resources:    resources,
		view:         view,
		framebuffers: framebuffers,
		config:       config,
		inFlight:     make([]*InFlightSubmission, 0, images+1),
	}, nil
}

// SetClearColor takes effect on the next tick.
func (o *FrameOrchestrator) SetClearColor(color math.Vec4) {
	o.pendingClear = &color
}

// SetProjection takes effect on the next tick.
func (o *FrameOrchestrator) SetProjection(fovRadians, near, far float32) {
	o.pendingProjection = &metadata.ProjectionConfig{FovRadians: fovRadians, Near: near, Far: far}
}

func (o *FrameOrchestrator) InFlight() int {
	return len(o.inFlight)
}

func (o *FrameOrchestrator) Stats() Stats {
	return o.stats
}

// Tick runs one frame. Every returned error is a *FrameError.
func (o *FrameOrchestrator) Tick(elapsedSeconds float64) (FrameResult, error) {
	o.applyPending()
	o.frame++
	o.stats.Frames++
	result := FrameResult{Frame: o.frame}

	reclaimed, err := o.Reclaim()
	result.Reclaimed = reclaimed
	if err != nil {
		return o.finish(result), o.fail(StageReclaim, err)
	}

	imageIndex, err := o.surface.AcquireNextImage(o.config.AcquireTimeout)
	if err != nil {
		return o.finish(result), o.fail(StageAcquire, err)
	}
	if int(imageIndex) >= len(o.framebuffers) {
		return o.finish(result), o.fail(StageAcquire, fmt.Errorf("image index %d out of range: %w", imageIndex, core.ErrDevice))
	}
	result.ImageIndex = imageIndex

	// Acquire may have waited for this image's previous submission.
	reclaimed, err = o.Reclaim()
	result.Reclaimed += reclaimed
	if err != nil {
		return o.finish(result), o.fail(StageReclaim, err)
	}

	if err := o.updateUniforms(imageIndex); err != nil {
		return o.finish(result), o.fail(StageUpdate, err)
	}

	cmd, err := o.record(imageIndex)
	if err != nil {
		return o.finish(result), o.fail(StageRecord, err)
	}

	signal, err := o.queue.Submit(cmd, imageIndex)
	if err != nil {
		cmd.Free()
		return o.finish(result), o.fail(StageSubmit, err)
	}
	submission := &InFlightSubmission{
		ID:         uuid.New(),
		Frame:      o.frame,
		ImageIndex: imageIndex,
		Commands:   cmd,
		Signal:     signal,
	}
	o.inFlight = append(o.inFlight, submission)
	o.stats.Submitted++
	core.LogDebug("frame %d submitted %s on image %d (%.3fms)", o.frame, submission.ID, imageIndex, elapsedSeconds*1000)

	if err := o.surface.Present(o.queue, imageIndex); err != nil {
		return o.finish(result), o.fail(StagePresent, err)
	}
	return o.finish(result), nil
}

// Reclaim releases every submission whose signal has fired and keeps the
// rest in submission order. It never waits.
func (o *FrameOrchestrator) Reclaim() (int, error) {
	kept := o.inFlight[:0]
	reclaimed := 0
	for i, s := range o.inFlight {
		done, err := s.Signal.Status()
		if err != nil {
			kept = append(kept, o.inFlight[i:]...)
			o.truncate(kept)
			o.stats.Reclaimed += uint64(reclaimed)
			return reclaimed, fmt.Errorf("poll submission %s: %w", s.ID, err)
		}
		if !done {
			kept = append(kept, s)
			continue
		}
		s.release()
		reclaimed++
	}
	o.truncate(kept)
	o.stats.Reclaimed += uint64(reclaimed)
	return reclaimed, nil
}

// Drain polls until nothing is in flight or ctx is done.
func (o *FrameOrchestrator) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		if _, err := o.Reclaim(); err != nil {
			return err
		}
		if len(o.inFlight) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain with %d submissions in flight: %w", len(o.inFlight), ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReleaseAll frees every pending submission without polling. Only safe once
// the device is idle.
func (o *FrameOrchestrator) ReleaseAll() {
	for _, s := range o.inFlight {
		s.release()
	}
	o.truncate(o.inFlight[:0])
}

func (o *FrameOrchestrator) applyPending() {
	if o.pendingClear != nil {
		o.config.ClearColor = *o.pendingClear
		o.pendingClear = nil
	}
	if o.pendingProjection != nil {
		o.config.Projection = *o.pendingProjection
		o.pendingProjection = nil
	}
}

// updateUniforms writes the buffer owned by imageIndex. The presentation
// engine only hands an image back once its previous frame is off screen.
func (o *FrameOrchestrator) updateUniforms(imageIndex uint32) error {
	p := o.config.Projection
	data := metadata.UniformFrameData{
		WorldView:  o.view.ViewMatrix(),
		Projection: math.NewMat4Perspective(p.FovRadians, o.surface.Aspect(), p.Near, p.Far),
	}
	return o.resources.UniformBuffers[imageIndex].Write(data)
}

func (o *FrameOrchestrator) record(imageIndex uint32) (CommandBuffer, error) {
	cmd, err := o.pool.Allocate()
	if err != nil {
		return nil, err
	}
	if err := cmd.Begin(); err != nil {
		cmd.Free()
		return nil, err
	}
	cmd.BeginRenderPass(o.resources.RenderPass, o.framebuffers[imageIndex], o.config.ClearColor)
	cmd.BindPipeline(o.resources.Pipeline)
	cmd.BindDescriptorSet(o.resources.Pipeline, o.resources.DescriptorSets[imageIndex])
	cmd.BindVertexBuffer(o.resources.VertexBuffer)
	cmd.Draw(o.resources.VertexCount)
	cmd.EndRenderPass()
	if err := cmd.End(); err != nil {
		cmd.Free()
		return nil, err
	}
	return cmd, nil
}

func (o *FrameOrchestrator) finish(result FrameResult) FrameResult {
	result.InFlight = len(o.inFlight)
	result.Stalled = result.InFlight > len(o.framebuffers)
	switch {
	case result.Stalled && !o.stalled:
		o.stats.Stalls++
		core.LogWarn("frame %d: %d submissions in flight for %d images, GPU is not retiring work", result.Frame, result.InFlight, len(o.framebuffers))
	case !result.Stalled && o.stalled:
		core.LogInfo("frame %d: in-flight submissions back to %d", result.Frame, result.InFlight)
	}
	o.stalled = result.Stalled
	return result
}

func (o *FrameOrchestrator) fail(stage FrameStage, err error) error {
	if !errors.Is(err, core.ErrTimeout) && !errors.Is(err, core.ErrDevice) && !errors.Is(err, core.ErrConfiguration) {
		err = fmt.Errorf("%w: %w", core.ErrDevice, err)
	}
	ferr := &FrameError{Stage: stage, Frame: o.frame, Err: err}
	core.LogError(ferr.Error())
	return ferr
}

func (o *FrameOrchestrator) truncate(kept []*InFlightSubmission) {
	for i := len(kept); i < len(o.inFlight); i++ {
		o.inFlight[i] = nil
	}
	o.inFlight = kept
}
