package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The shader module creation info. */
	CreateInfo vk.ShaderModuleCreateInfo
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderModule wraps precompiled SPIR-V bytes in a shader module for one stage.
func NewShaderModule(context *VulkanContext, name string, code []byte, shaderStageFlag vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	words, err := SpirvWords(code)
	if err != nil {
		core.LogError("unable to read shader module %s: %s", name, err)
		return nil, err
	}

	stage := &VulkanShaderStage{}
	stage.CreateInfo.SType = vk.StructureTypeShaderModuleCreateInfo
	// Use the resource's size and data directly.
	stage.CreateInfo.CodeSize = uint64(len(code))
	stage.CreateInfo.PCode = words

	if res := vk.CreateShaderModule(
		context.Device.LogicalDevice,
		&stage.CreateInfo,
		context.Allocator,
		&stage.Handle); res != vk.Success {
		return nil, vulkanError(core.ErrConfiguration, res, "failed to create shader module %s", name)
	}

	// Shader stage info
	stage.ShaderStageCreateInfo.SType = vk.StructureTypePipelineShaderStageCreateInfo
	stage.ShaderStageCreateInfo.Stage = shaderStageFlag
	stage.ShaderStageCreateInfo.Module = stage.Handle
	stage.ShaderStageCreateInfo.PName = VulkanSafeString("main")

	core.LogDebug("Shader module %s created (%d bytes).", name, len(code))
	return stage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = nil
	}
}
