package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

// VulkanDescriptorSet binds one uniform buffer at binding 0.
type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
}

/**
 * @brief The descriptor layout, pool and the per-image sets pointing at
 * the per-image uniform buffers.
 */
type VulkanDescriptors struct {
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	Sets   []*VulkanDescriptorSet
}

func DescriptorSetLayoutCreate(context *VulkanContext) (vk.DescriptorSetLayout, error) {
	uboLayoutBinding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{uboLayoutBinding},
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		return nil, vulkanError(core.ErrConfiguration, res, "failed to create descriptor set layout")
	}
	return layout, nil
}

// DescriptorsCreate allocates one set per uniform buffer and points it at that buffer.
func DescriptorsCreate(context *VulkanContext, layout vk.DescriptorSetLayout, uniforms []*VulkanUniformBuffer) (*VulkanDescriptors, error) {
	count := uint32(len(uniforms))
	out := &VulkanDescriptors{Layout: layout}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{
			{
				Type:            vk.DescriptorTypeUniformBuffer,
				DescriptorCount: count,
			},
		},
		MaxSets: count,
	}
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &out.Pool); res != vk.Success {
		return nil, vulkanError(core.ErrConfiguration, res, "failed to create descriptor pool")
	}

	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     out.Pool,
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}
	handles := make([]vk.DescriptorSet, count)
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &handles[0]); res != vk.Success {
		out.Destroy(context)
		return nil, vulkanError(core.ErrConfiguration, res, "failed to allocate descriptor sets")
	}

	var ubo metadata.UniformFrameData
	for i, uniform := range uniforms {
		bufferInfo := vk.DescriptorBufferInfo{
			Buffer: uniform.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(len(rawBytes(&ubo))),
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          handles[i],
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
		}
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		out.Sets = append(out.Sets, &VulkanDescriptorSet{Handle: handles[i]})
	}
	core.LogDebug("Allocated %d descriptor sets.", count)
	return out, nil
}

// Destroy releases the pool (and with it the sets) and the layout.
func (d *VulkanDescriptors) Destroy(context *VulkanContext) {
	if d.Pool != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, d.Pool, context.Allocator)
		d.Pool = nil
	}
	if d.Layout != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, d.Layout, context.Allocator)
		d.Layout = nil
	}
	d.Sets = nil
}
