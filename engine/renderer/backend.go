package renderer

import (
	"time"

	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

// Opaque backend handles. The backend that produced them is the only one
// that looks inside.
type (
	RenderPass    interface{}
	Framebuffer   interface{}
	Pipeline      interface{}
	DescriptorSet interface{}
	VertexBuffer  interface{}
)

// Surface is the presentation surface plus its swap chain.
type Surface interface {
	ImageCount() int
	Extent() metadata.Extent2D
	Aspect() float32
	Framebuffers() []Framebuffer
	// AcquireNextImage blocks up to timeout. It returns an error wrapping
	// core.ErrTimeout when no image became available in time.
	AcquireNextImage(timeout time.Duration) (uint32, error)
	Present(queue Queue, imageIndex uint32) error
}

type Queue interface {
	Submit(cmd CommandBuffer, imageIndex uint32) (CompletionSignal, error)
}

// CompletionSignal is fired by the device once a submission retired.
type CompletionSignal interface {
	// Status polls without blocking.
	Status() (bool, error)
	Release()
}

type CommandPool interface {
	Allocate() (CommandBuffer, error)
}

type CommandBuffer interface {
	Begin() error
	BeginRenderPass(pass RenderPass, target Framebuffer, clearColor math.Vec4)
	BindPipeline(pipeline Pipeline)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet)
	BindVertexBuffer(buffer VertexBuffer)
	Draw(vertexCount uint32)
	EndRenderPass()
	End() error
	Free()
}

type UniformBuffer interface {
	Write(data metadata.UniformFrameData) error
}

/**
 * @brief Everything the frame loop records against. Created once at
 * startup and read-only afterwards. DescriptorSets and UniformBuffers
 * hold one entry per swap chain image.
 */
type PipelineResources struct {
	RenderPass     RenderPass
	Pipeline       Pipeline
	DescriptorSets []DescriptorSet
	UniformBuffers []UniformBuffer
	VertexBuffer   VertexBuffer
	VertexCount    uint32
}

// RendererBackend hands the orchestrator its collaborators and owns their
// lifetime.
type RendererBackend interface {
	Initialize(appName string, width, height uint32) error
	Surface() Surface
	Queue() Queue
	CommandPool() CommandPool
	Resources() PipelineResources
	WaitIdle() error
	Shutdown() error
}

// ViewSource yields the camera transform for the frame being recorded.
type ViewSource interface {
	ViewMatrix() math.Mat4
}
