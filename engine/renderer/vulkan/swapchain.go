package vulkan

import (
	"fmt"
	stdmath "math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

/**
 * @brief The swap chain and its per-image synchronisation. Each image owns a
 * view, a framebuffer, a render-finished semaphore and a reference to the
 * fence of the last submission that drew into it.
 */
type VulkanSwapchain struct {
	context *VulkanContext

	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageExtent vk.Extent2D

	imageCount uint32
	images     []vk.Image
	views      []vk.ImageView

	// framebuffers used for on-screen rendering.
	framebuffers []*VulkanFramebuffer

	// imageAvailable[i] is the semaphore the last acquire of image i signalled.
	// spareSemaphore is handed to the next acquire and swapped into the slot.
	imageAvailable []vk.Semaphore
	spareSemaphore vk.Semaphore
	renderFinished []vk.Semaphore
	imagesInFlight []fenceRef
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{context: context}
	support := &context.Device.SwapchainSupport

	if support.FormatCount == 0 {
		return nil, fmt.Errorf("surface reports no formats: %w", core.ErrConfiguration)
	}

	// Choose a swap surface format.
	swapchain.ImageFormat = support.Formats[0]
	for i := 0; i < int(support.FormatCount); i++ {
		format := support.Formats[i]
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	// FIFO is always available and paces the loop to the display.
	presentMode := vk.PresentModeFifo
	for i := 0; i < int(support.PresentModeCount); i++ {
		if support.PresentModes[i] == vk.PresentModeMailbox {
			presentMode = vk.PresentModeMailbox
			break
		}
	}

	// Swapchain extent
	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != stdmath.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	extent.Width = math.Clamp(extent.Width, minExtent.Width, maxExtent.Width)
	extent.Height = math.Clamp(extent.Height, minExtent.Height, maxExtent.Height)
	swapchain.ImageExtent = extent

	imageCount := math.Clamp(support.Capabilities.MinImageCount+1, 2, stdmath.MaxUint32)
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		return nil, vulkanError(core.ErrConfiguration, res, "failed to create swapchain")
	}
	swapchain.Handle = swapchainHandle

	// Images
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.imageCount, nil); res != vk.Success {
		swapchain.Destroy()
		return nil, vulkanError(core.ErrConfiguration, res, "failed to get swapchain images")
	}
	swapchain.images = make([]vk.Image, swapchain.imageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.imageCount, swapchain.images); res != vk.Success {
		swapchain.Destroy()
		return nil, vulkanError(core.ErrConfiguration, res, "failed to get swapchain images")
	}

	// Views
	swapchain.views = make([]vk.ImageView, 0, swapchain.imageCount)
	for i := 0; i < int(swapchain.imageCount); i++ {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		var view vk.ImageView
		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
			swapchain.Destroy()
			return nil, vulkanError(core.ErrConfiguration, res, "failed to create image view")
		}
		swapchain.views = append(swapchain.views, view)
	}

	// Sync objects
	swapchain.imageAvailable = make([]vk.Semaphore, 0, swapchain.imageCount)
	swapchain.renderFinished = make([]vk.Semaphore, 0, swapchain.imageCount)
	swapchain.imagesInFlight = make([]fenceRef, swapchain.imageCount)
	for i := 0; i < int(swapchain.imageCount); i++ {
		available, err := newSemaphore(context)
		if err != nil {
			swapchain.Destroy()
			return nil, err
		}
		swapchain.imageAvailable = append(swapchain.imageAvailable, available)
		finished, err := newSemaphore(context)
		if err != nil {
			swapchain.Destroy()
			return nil, err
		}
		swapchain.renderFinished = append(swapchain.renderFinished, finished)
	}
	spare, err := newSemaphore(context)
	if err != nil {
		swapchain.Destroy()
		return nil, err
	}
	swapchain.spareSemaphore = spare

	core.LogInfo("Swapchain created successfully with %d images of %dx%d.", swapchain.imageCount, extent.Width, extent.Height)
	return swapchain, nil
}

// CreateFramebuffers binds one framebuffer per image view to renderpass.
func (vs *VulkanSwapchain) CreateFramebuffers(renderpass *VulkanRenderpass) error {
	vs.framebuffers = make([]*VulkanFramebuffer, 0, vs.imageCount)
	for i := range vs.views {
		fb, err := FramebufferCreate(vs.context, renderpass, vs.ImageExtent.Width, vs.ImageExtent.Height, []vk.ImageView{vs.views[i]})
		if err != nil {
			return err
		}
		vs.framebuffers = append(vs.framebuffers, fb)
	}
	return nil
}

func (vs *VulkanSwapchain) ImageCount() int {
	return int(vs.imageCount)
}

func (vs *VulkanSwapchain) Extent() metadata.Extent2D {
	return metadata.Extent2D{Width: vs.ImageExtent.Width, Height: vs.ImageExtent.Height}
}

func (vs *VulkanSwapchain) Aspect() float32 {
	return vs.Extent().Aspect(1)
}

func (vs *VulkanSwapchain) Framebuffers() []renderer.Framebuffer {
	out := make([]renderer.Framebuffer, len(vs.framebuffers))
	for i, fb := range vs.framebuffers {
		out[i] = fb
	}
	return out
}

// AcquireNextImage returns an image whose previous submission has retired.
func (vs *VulkanSwapchain) AcquireNextImage(timeout time.Duration) (uint32, error) {
	deadline := time.Now().Add(timeout)
	var imageIndex uint32
	result := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, uint64(timeout.Nanoseconds()), vs.spareSemaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
	case vk.Timeout, vk.NotReady:
		err := fmt.Errorf("no swapchain image within %s: %w: %w", timeout, vk.Error(result), core.ErrTimeout)
		core.LogError(err.Error())
		return 0, err
	default:
		return 0, vulkanError(core.ErrDevice, result, "failed to acquire swapchain image")
	}
	if imageIndex >= vs.imageCount {
		return 0, fmt.Errorf("swapchain returned image %d of %d: %w", imageIndex, vs.imageCount, core.ErrDevice)
	}

	// The semaphore in the slot was waited on by the image's previous
	// submission, so it is free once that submission's fence fires. The
	// fence only gets what is left of the acquire timeout, zero polls it.
	if ref := vs.imagesInFlight[imageIndex]; ref.fence != nil && ref.fence.Generation == ref.generation {
		if err := ref.fence.FenceWait(vs.context, remainingTimeout(deadline, time.Now())); err != nil {
			return 0, err
		}
	}
	vs.imageAvailable[imageIndex], vs.spareSemaphore = vs.spareSemaphore, vs.imageAvailable[imageIndex]
	return imageIndex, nil
}

func (vs *VulkanSwapchain) Present(queue renderer.Queue, imageIndex uint32) error {
	q, ok := queue.(*VulkanQueue)
	if !ok {
		return fmt.Errorf("present: queue of type %T does not belong to this backend: %w", queue, core.ErrDevice)
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vs.renderFinished[imageIndex]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
		PResults:           nil,
	}

	switch result := vk.QueuePresent(q.present, &presentInfo); result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		core.LogDebug("Swapchain is suboptimal for the surface, keep presenting.")
		return nil
	case vk.ErrorOutOfDate:
		return vulkanError(core.ErrDevice, result, "swapchain out of date and cannot be recreated")
	default:
		return vulkanError(core.ErrDevice, result, "failed to present swapchain image")
	}
}

func (vs *VulkanSwapchain) Destroy() {
	device := vs.context.Device.LogicalDevice
	for _, fb := range vs.framebuffers {
		fb.Destroy(vs.context)
	}
	vs.framebuffers = nil

	for _, s := range vs.imageAvailable {
		vk.DestroySemaphore(device, s, vs.context.Allocator)
	}
	for _, s := range vs.renderFinished {
		vk.DestroySemaphore(device, s, vs.context.Allocator)
	}
	if vs.spareSemaphore != vk.NullSemaphore {
		vk.DestroySemaphore(device, vs.spareSemaphore, vs.context.Allocator)
		vs.spareSemaphore = vk.NullSemaphore
	}
	vs.imageAvailable = nil
	vs.renderFinished = nil
	vs.imagesInFlight = nil

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for _, view := range vs.views {
		vk.DestroyImageView(device, view, vs.context.Allocator)
	}
	vs.views = nil

	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

// remainingTimeout is the time left until deadline, never negative.
func remainingTimeout(deadline, now time.Time) time.Duration {
	if left := deadline.Sub(now); left > 0 {
		return left
	}
	return 0
}

func newSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &info, context.Allocator, &semaphore); res != vk.Success {
		return vk.NullSemaphore, vulkanError(core.ErrConfiguration, res, "failed to create semaphore")
	}
	return semaphore, nil
}
