package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
	// Generation is bumped every time the fence is reset for reuse.
	Generation uint64
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		return nil, vulkanError(core.ErrDevice, res, "failed to create fence")
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceStatus polls the fence without blocking.
func (vf *VulkanFence) FenceStatus(context *VulkanContext) (bool, error) {
	if vf.IsSignaled {
		return true, nil
	}
	switch res := vk.GetFenceStatus(context.Device.LogicalDevice, vf.Handle); res {
	case vk.Success:
		vf.IsSignaled = true
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, vulkanError(core.ErrDevice, res, "vk_fence_status")
	}
}

func (vf *VulkanFence) FenceWait(context *VulkanContext, timeout time.Duration) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		err := fmt.Errorf("vk_fence_wait - timed out after %s: %w", timeout, core.ErrTimeout)
		core.LogWarn(err.Error())
		return err
	default:
		return vulkanError(core.ErrDevice, result, "vk_fence_wait")
	}
}

// FenceReset unsignals the fence even when its status was never polled.
func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return vulkanError(core.ErrDevice, res, "failed to reset fence")
	}
	vf.IsSignaled = false
	vf.Generation++
	return nil
}

// FencePool recycles fences between submissions. Every fence it hands out is
// unsignaled.
type FencePool struct {
	context *VulkanContext
	free    []*VulkanFence
	all     []*VulkanFence
}

func NewFencePool(context *VulkanContext) *FencePool {
	return &FencePool{context: context}
}

func (fp *FencePool) Get() (*VulkanFence, error) {
	if n := len(fp.free); n > 0 {
		f := fp.free[n-1]
		fp.free = fp.free[:n-1]
		return f, nil
	}
	f, err := NewFence(fp.context, false)
	if err != nil {
		return nil, err
	}
	fp.all = append(fp.all, f)
	return f, nil
}

func (fp *FencePool) Put(f *VulkanFence) {
	if err := f.FenceReset(fp.context); err != nil {
		// A fence that cannot be reset is dropped from circulation.
		return
	}
	fp.free = append(fp.free, f)
}

func (fp *FencePool) Destroy() {
	for _, f := range fp.all {
		f.FenceDestroy(fp.context)
	}
	fp.all = nil
	fp.free = nil
}

// fenceRef pins a fence use so a later reuse is not mistaken for it.
type fenceRef struct {
	fence      *VulkanFence
	generation uint64
}

// fenceSignal is the completion signal of one queue submission.
type fenceSignal struct {
	ref  fenceRef
	pool *FencePool
}

func (s *fenceSignal) Status() (bool, error) {
	if s.ref.fence == nil || s.ref.fence.Generation != s.ref.generation {
		return true, nil
	}
	return s.ref.fence.FenceStatus(s.pool.context)
}

func (s *fenceSignal) Release() {
	if s.ref.fence == nil || s.ref.fence.Generation != s.ref.generation {
		return
	}
	s.pool.Put(s.ref.fence)
	s.ref.fence = nil
}
