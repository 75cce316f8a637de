package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/renderer"
)

// VulkanQueue submits recorded frames on the graphics queue and presents on
// the present queue, which may be the same family.
type VulkanQueue struct {
	context   *VulkanContext
	graphics  vk.Queue
	present   vk.Queue
	swapchain *VulkanSwapchain
	fences    *FencePool
}

func NewVulkanQueue(context *VulkanContext, swapchain *VulkanSwapchain, fences *FencePool) *VulkanQueue {
	return &VulkanQueue{
		context:   context,
		graphics:  context.Device.GraphicsQueue,
		present:   context.Device.PresentQueue,
		swapchain: swapchain,
		fences:    fences,
	}
}

// Submit waits on the image's acquire semaphore at colour output and signals
// its render-finished semaphore for Present. The returned signal wraps a
// pooled fence.
func (q *VulkanQueue) Submit(cmd renderer.CommandBuffer, imageIndex uint32) (renderer.CompletionSignal, error) {
	cb, ok := cmd.(*VulkanCommandBuffer)
	if !ok {
		return nil, fmt.Errorf("submit: command buffer of type %T does not belong to this backend: %w", cmd, core.ErrDevice)
	}
	if int(imageIndex) >= q.swapchain.ImageCount() {
		return nil, fmt.Errorf("submit: image %d out of range: %w", imageIndex, core.ErrDevice)
	}

	fence, err := q.fences.Get()
	if err != nil {
		return nil, err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{q.swapchain.imageAvailable[imageIndex]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{q.swapchain.renderFinished[imageIndex]},
	}
	if res := vk.QueueSubmit(q.graphics, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
		q.fences.Put(fence)
		return nil, vulkanError(core.ErrDevice, res, "vkQueueSubmit failed")
	}
	cb.UpdateSubmitted()

	ref := fenceRef{fence: fence, generation: fence.Generation}
	q.swapchain.imagesInFlight[imageIndex] = ref
	return &fenceSignal{ref: ref, pool: q.fences}, nil
}

func (q *VulkanQueue) WaitIdle() error {
	if res := vk.QueueWaitIdle(q.graphics); res != vk.Success {
		return vulkanError(core.ErrDevice, res, "vkQueueWaitIdle failed")
	}
	return nil
}
