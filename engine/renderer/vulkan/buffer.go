package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

/**
 * @brief A single linear buffer bound to its own allocation. Host-visible
 * buffers stay mapped for their whole lifetime.
 */
type VulkanBuffer struct {
	context *VulkanContext

	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
	Usage  vk.BufferUsageFlags

	mapped unsafe.Pointer
}

func BufferCreate(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	outBuffer := &VulkanBuffer{
		context: context,
		Size:    size,
		Usage:   usage,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &outBuffer.Handle); res != vk.Success {
		return nil, vulkanError(core.ErrDevice, res, "failed to create buffer")
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, outBuffer.Handle, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := context.FindMemoryIndex(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		outBuffer.Destroy()
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &outBuffer.Memory); res != vk.Success {
		outBuffer.Destroy()
		return nil, vulkanError(core.ErrDevice, res, "failed to allocate buffer memory")
	}

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, outBuffer.Handle, outBuffer.Memory, 0); res != vk.Success {
		outBuffer.Destroy()
		return nil, vulkanError(core.ErrDevice, res, "failed to bind buffer memory")
	}

	if properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		var pData unsafe.Pointer
		if res := vk.MapMemory(context.Device.LogicalDevice, outBuffer.Memory, 0, size, 0, &pData); res != vk.Success {
			outBuffer.Destroy()
			return nil, vulkanError(core.ErrDevice, res, "failed to map buffer memory")
		}
		outBuffer.mapped = pData
	}
	return outBuffer, nil
}

// LoadData copies data to the start of a mapped buffer. Memory is host
// coherent so no flush is needed.
func (b *VulkanBuffer) LoadData(data []byte) error {
	if b.mapped == nil {
		return fmt.Errorf("buffer is not host visible: %w", core.ErrDevice)
	}
	if vk.DeviceSize(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes into a %d byte buffer: %w", len(data), b.Size, core.ErrDevice)
	}
	vk.Memcopy(b.mapped, data)
	return nil
}

func (b *VulkanBuffer) Destroy() {
	device := b.context.Device.LogicalDevice
	if b.mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.mapped = nil
	}
	if b.Handle != nil {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = nil
	}
}

// NewVertexBuffer uploads vertices once. The buffer is never written again.
func NewVertexBuffer(context *VulkanContext, vertices []math.Vertex2D) (*VulkanBuffer, error) {
	data := sliceBytes(vertices)
	buffer, err := BufferCreate(
		context,
		vk.DeviceSize(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, fmt.Errorf("creating the vertex buffer: %w", err)
	}
	if err := buffer.LoadData(data); err != nil {
		buffer.Destroy()
		return nil, err
	}
	core.LogDebug("Vertex buffer created with %d vertices.", len(vertices))
	return buffer, nil
}

// VulkanUniformBuffer holds the frame uniforms for one swap chain image.
type VulkanUniformBuffer struct {
	*VulkanBuffer
}

func NewUniformBuffer(context *VulkanContext) (*VulkanUniformBuffer, error) {
	var ubo metadata.UniformFrameData
	buffer, err := BufferCreate(
		context,
		vk.DeviceSize(unsafe.Sizeof(ubo)),
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, fmt.Errorf("creating a uniform buffer: %w", err)
	}
	return &VulkanUniformBuffer{VulkanBuffer: buffer}, nil
}

func (u *VulkanUniformBuffer) Write(data metadata.UniformFrameData) error {
	return u.LoadData(rawBytes(&data))
}
