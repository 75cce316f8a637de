package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

func DeviceCreate(context *VulkanContext) error {
	context.Device = &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1}
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(context.Device.GraphicsQueueIndex)}
	if context.Device.PresentQueueIndex != context.Device.GraphicsQueueIndex {
		indices = append(indices, uint32(context.Device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i].SType = vk.StructureTypeDeviceQueueCreateInfo
		queueCreateInfos[i].QueueFamilyIndex = indices[i]
		queueCreateInfos[i].QueueCount = 1
		queueCreateInfos[i].PQueuePriorities = []float32{1.0}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensionNames(context.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	if available[portabilitySubsetExtension] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
		extensionNames = append(extensionNames, portabilitySubsetExtension)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed to create logical device")
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	// Get queues.
	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.GraphicsQueueIndex), 0, &graphicsQueue)
	vk.GetDeviceQueue(device, uint32(context.Device.PresentQueueIndex), 0, &presentQueue)
	context.Device.GraphicsQueue = graphicsQueue
	context.Device.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	// Unset queues
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil

	// Destroy logical device
	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	core.LogInfo("Releasing physical device resources...")
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	context.Device.GraphicsQueueIndex = -1
	context.Device.PresentQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed to get surface capabilities")
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed to get surface formats")
	}
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return vulkanError(core.ErrConfiguration, res, "failed to get surface formats")
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed to get physical device surface present modes")
	}
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return vulkanError(core.ErrConfiguration, res, "failed to get physical device surface present modes")
		}
	}
	return nil
}

// SelectPhysicalDevice picks the first discrete GPU that meets the
// requirements, falling back to the first suitable device of any type.
func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed to enumerate physical devices")
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrConfiguration)
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed to enumerate physical devices")
	}

	for _, discrete := range []bool{true, false} {
		requirements := VulkanPhysicalDeviceRequirements{
			Graphics:             true,
			Present:              true,
			DiscreteGPU:          discrete,
			DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		}
		for _, physicalDevice := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
			properties.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
			memory.Deref()

			queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{}
			support := VulkanSwapchainSupportInfo{}
			if !PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, &requirements, &queueInfo, &support) {
				continue
			}

			logDeviceInfo(&properties, &memory)

			context.Device.PhysicalDevice = physicalDevice
			context.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
			context.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
			context.Device.SwapchainSupport = support

			// Keep a copy of properties, features and memory info for later use.
			context.Device.Properties = properties
			context.Device.Features = features
			context.Device.Memory = memory

			core.LogInfo("Physical device selected.")
			return nil
		}
	}

	err := fmt.Errorf("no physical devices were found which meet the requirements: %w", core.ErrConfiguration)
	core.LogError(err.Error())
	return err
}

func logDeviceInfo(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	core.LogInfo("Selected device: '%s'.", CString(properties.DeviceName[:]))
	// GPU type, etc.
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)

	// Vulkan API version.
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	// Memory information
	for j := 0; j < int(memory.MemoryHeapCount); j++ {
		memory.MemoryHeaps[j].Deref()
		memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo, outSwapchainSupport *VulkanSwapchainSupportInfo) bool {
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.PresentFamilyIndex = -1

	// Discrete GPU?
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("Device is not a discrete GPU, and one is required. Skipping.")
		return false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Look at each queue and see what queues it supports. A family that does
	// both graphics and present wins.
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		graphics := vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return false
		}
		present := supportsPresent.B()

		if graphics && outQueueInfo.GraphicsFamilyIndex < 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
		}
		if present && outQueueInfo.PresentFamilyIndex < 0 {
			outQueueInfo.PresentFamilyIndex = int32(i)
		}
		if graphics && present {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
			outQueueInfo.PresentFamilyIndex = int32(i)
			break
		}
	}

	core.LogDebug("Graphics | Present | Name")
	core.LogDebug("%8d | %7d | %s",
		outQueueInfo.GraphicsFamilyIndex,
		outQueueInfo.PresentFamilyIndex,
		CString(properties.DeviceName[:]))

	if requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0 {
		return false
	}
	if requirements.Present && outQueueInfo.PresentFamilyIndex < 0 {
		return false
	}

	// Device extensions.
	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensionNames(device)
		if err != nil {
			return false
		}
		for _, name := range requirements.DeviceExtensionNames {
			if !available[name] {
				core.LogInfo("Required extension not found: '%s', skipping device.", name)
				return false
			}
		}
	}

	// Query swapchain support.
	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		return false
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return false
	}

	core.LogInfo("Device meets queue requirements.")
	return true
}

func deviceExtensionNames(device vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, vulkanError(core.ErrConfiguration, res, "error in EnumerateDeviceExtensionProperties")
	}
	extensions := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
			return nil, vulkanError(core.ErrConfiguration, res, "error in EnumerateDeviceExtensionProperties")
		}
	}
	names := make(map[string]bool, count)
	for i := range extensions {
		extensions[i].Deref()
		names[CString(extensions[i].ExtensionName[:])] = true
	}
	return names, nil
}
