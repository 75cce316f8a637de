package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandPool hands out one-shot primary command buffers.
type VulkanCommandPool struct {
	context *VulkanContext
	Handle  vk.CommandPool
}

func NewVulkanCommandPool(context *VulkanContext, queueFamilyIndex uint32) (*VulkanCommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var handle vk.CommandPool
	if res := vk.CreateCommandPool(context.Device.LogicalDevice, &poolCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError(core.ErrConfiguration, res, "failed to create command pool")
	}
	core.LogInfo("Graphics command pool created.")
	return &VulkanCommandPool{context: context, Handle: handle}, nil
}

func (p *VulkanCommandPool) Allocate() (renderer.CommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(p.context, p.Handle, true)
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (p *VulkanCommandPool) Destroy() {
	if p.Handle != nil {
		vk.DestroyCommandPool(p.context.Device.LogicalDevice, p.Handle, p.context.Allocator)
		p.Handle = nil
	}
}

type VulkanCommandBuffer struct {
	context *VulkanContext
	pool    vk.CommandPool
	Handle  vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	// First recording error. Record calls have no error return, End reports it.
	err error
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		context: context,
		pool:    pool,
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
		PNext:              nil,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		return nil, vulkanError(core.ErrDevice, res, "failed to allocate command buffer")
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(v.context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		return vulkanError(core.ErrDevice, res, "failed to begin command buffer")
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	v.err = nil
	return nil
}

func (v *VulkanCommandBuffer) BeginRenderPass(pass renderer.RenderPass, target renderer.Framebuffer, clearColor math.Vec4) {
	rp, ok := pass.(*VulkanRenderpass)
	if !ok {
		v.fail("render pass", pass)
		return
	}
	fb, ok := target.(*VulkanFramebuffer)
	if !ok {
		v.fail("framebuffer", target)
		return
	}
	rp.RenderpassBegin(v, fb, clearColor)

	// Viewport and scissor are dynamic pipeline state.
	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    rp.W,
		Height:   rp.H,
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: uint32(rp.W), Height: uint32(rp.H)},
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline renderer.Pipeline) {
	p, ok := pipeline.(*VulkanPipeline)
	if !ok {
		v.fail("pipeline", pipeline)
		return
	}
	p.Bind(v, vk.PipelineBindPointGraphics)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline renderer.Pipeline, set renderer.DescriptorSet) {
	p, ok := pipeline.(*VulkanPipeline)
	if !ok {
		v.fail("pipeline", pipeline)
		return
	}
	ds, ok := set.(*VulkanDescriptorSet)
	if !ok {
		v.fail("descriptor set", set)
		return
	}
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, p.PipelineLayout, 0, 1, []vk.DescriptorSet{ds.Handle}, 0, nil)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer renderer.VertexBuffer) {
	b, ok := buffer.(*VulkanBuffer)
	if !ok {
		v.fail("vertex buffer", buffer)
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{0})
}

func (v *VulkanCommandBuffer) Draw(vertexCount uint32) {
	vk.CmdDraw(v.Handle, vertexCount, 1, 0, 0)
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return vulkanError(core.ErrDevice, res, "failed to end command buffer")
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return v.err
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) fail(what string, got interface{}) {
	if v.err != nil {
		return
	}
	v.err = fmt.Errorf("command buffer: %s of type %T does not belong to this backend: %w", what, got, core.ErrDevice)
	core.LogError(v.err.Error())
}
