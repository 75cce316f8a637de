package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

type fakeSignal struct {
	done     bool
	err      error
	polls    int
	released int
}

func (s *fakeSignal) Status() (bool, error) {
	s.polls++
	if s.err != nil {
		return false, s.err
	}
	return s.done, nil
}

func (s *fakeSignal) Release() { s.released++ }

type fakeCommandBuffer struct {
	dev        *fakeDevice
	target     Framebuffer
	set        DescriptorSet
	clearColor math.Vec4
	drawn      uint32
	freed      int
}

func (c *fakeCommandBuffer) Begin() error {
	c.dev.calls = append(c.dev.calls, "begin")
	return c.dev.beginErr
}

func (c *fakeCommandBuffer) BeginRenderPass(pass RenderPass, target Framebuffer, clearColor math.Vec4) {
	c.dev.calls = append(c.dev.calls, "begin-pass")
	c.target = target
	c.clearColor = clearColor
}

func (c *fakeCommandBuffer) BindPipeline(Pipeline) {
	c.dev.calls = append(c.dev.calls, "bind-pipeline")
}

func (c *fakeCommandBuffer) BindDescriptorSet(_ Pipeline, set DescriptorSet) {
	c.dev.calls = append(c.dev.calls, "bind-set")
	c.set = set
}

func (c *fakeCommandBuffer) BindVertexBuffer(VertexBuffer) {
	c.dev.calls = append(c.dev.calls, "bind-vertex")
}

func (c *fakeCommandBuffer) Draw(vertexCount uint32) {
	c.dev.calls = append(c.dev.calls, "draw")
	c.drawn = vertexCount
}

func (c *fakeCommandBuffer) EndRenderPass() {
	c.dev.calls = append(c.dev.calls, "end-pass")
}

func (c *fakeCommandBuffer) End() error {
	c.dev.calls = append(c.dev.calls, "end")
	return c.dev.endErr
}

func (c *fakeCommandBuffer) Free() { c.freed++ }

type fakeUniform struct {
	dev    *fakeDevice
	writes []metadata.UniformFrameData
}

func (u *fakeUniform) Write(data metadata.UniformFrameData) error {
	u.dev.calls = append(u.dev.calls, "write-uniform")
	if u.dev.writeErr != nil {
		return u.dev.writeErr
	}
	u.writes = append(u.writes, data)
	return nil
}

type fakeView struct{}

func (fakeView) ViewMatrix() math.Mat4 {
	return math.Mat4{Data: [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}}
}

// fakeDevice plays surface, queue and command pool. With retireBeforeAcquire
// set it behaves like a presentation engine that hands out the next image
// only after all previously submitted work has finished. With
// retireAcquiredImage set only the acquired image's last submission is done,
// the way the Vulkan swapchain waits on imagesInFlight.
type fakeDevice struct {
	images              int
	next                uint32
	retireBeforeAcquire bool
	retireAcquiredImage bool
	lastForImage        map[uint32]*fakeSignal

	acquireErr error
	allocErr   error
	beginErr   error
	endErr     error
	writeErr   error
	submitErr  error
	presentErr error

	calls    []string
	timeouts []time.Duration
	signals  []*fakeSignal
	buffers  []*fakeCommandBuffer
	uniforms []*fakeUniform
	acquired []uint32
	presents []uint32
}

func newFakeDevice(images int) *fakeDevice {
	d := &fakeDevice{images: images}
	for i := 0; i < images; i++ {
		d.uniforms = append(d.uniforms, &fakeUniform{dev: d})
	}
	return d
}

func (d *fakeDevice) ImageCount() int { return d.images }

func (d *fakeDevice) Extent() metadata.Extent2D { return metadata.Extent2D{Width: 1920, Height: 1080} }

func (d *fakeDevice) Aspect() float32 { return d.Extent().Aspect(1) }

func (d *fakeDevice) Framebuffers() []Framebuffer {
	fbs := make([]Framebuffer, d.images)
	for i := range fbs {
		fbs[i] = fmt.Sprintf("framebuffer-%d", i)
	}
	return fbs
}

func (d *fakeDevice) AcquireNextImage(timeout time.Duration) (uint32, error) {
	d.calls = append(d.calls, "acquire")
	d.timeouts = append(d.timeouts, timeout)
	if d.acquireErr != nil {
		return 0, d.acquireErr
	}
	if d.retireBeforeAcquire {
		for _, s := range d.signals {
			s.done = true
		}
	}
	idx := d.next
	d.next = (d.next + 1) % uint32(d.images)
	if s := d.lastForImage[idx]; d.retireAcquiredImage && s != nil {
		s.done = true
	}
	d.acquired = append(d.acquired, idx)
	return idx, nil
}

func (d *fakeDevice) Present(_ Queue, imageIndex uint32) error {
	d.calls = append(d.calls, "present")
	d.presents = append(d.presents, imageIndex)
	return d.presentErr
}

func (d *fakeDevice) Submit(_ CommandBuffer, imageIndex uint32) (CompletionSignal, error) {
	d.calls = append(d.calls, "submit")
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	s := &fakeSignal{}
	d.signals = append(d.signals, s)
	if d.lastForImage == nil {
		d.lastForImage = make(map[uint32]*fakeSignal)
	}
	d.lastForImage[imageIndex] = s
	return s, nil
}

func (d *fakeDevice) Allocate() (CommandBuffer, error) {
	d.calls = append(d.calls, "allocate")
	if d.allocErr != nil {
		return nil, d.allocErr
	}
	c := &fakeCommandBuffer{dev: d}
	d.buffers = append(d.buffers, c)
	return c, nil
}

func (d *fakeDevice) resources() PipelineResources {
	res := PipelineResources{
		RenderPass:   "pass",
		Pipeline:     "pipeline",
		VertexBuffer: "vertices",
		VertexCount:  3,
	}
	for i := 0; i < d.images; i++ {
		res.DescriptorSets = append(res.DescriptorSets, fmt.Sprintf("set-%d", i))
		res.UniformBuffers = append(res.UniformBuffers, d.uniforms[i])
	}
	return res
}

// fakeBackend wraps a fakeDevice behind RendererBackend.
type fakeBackend struct {
	dev       *fakeDevice
	waitIdle  int
	shutdowns int
}

func (b *fakeBackend) Initialize(string, uint32, uint32) error { return nil }
func (b *fakeBackend) Surface() Surface                        { return b.dev }
func (b *fakeBackend) Queue() Queue                            { return b.dev }
func (b *fakeBackend) CommandPool() CommandPool                { return b.dev }
func (b *fakeBackend) Resources() PipelineResources            { return b.dev.resources() }
func (b *fakeBackend) WaitIdle() error                         { b.waitIdle++; return nil }
func (b *fakeBackend) Shutdown() error                         { b.shutdowns++; return nil }
