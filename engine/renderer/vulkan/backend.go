package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/math"
	"github.com/spaghettifunk/gdemo/engine/renderer"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// TriangleVertices is the static scene uploaded once at startup.
var TriangleVertices = []math.Vertex2D{
	{Position: math.NewVec2(-0.5, -0.25)},
	{Position: math.NewVec2(0, 0.5)},
	{Position: math.NewVec2(0.25, -0.1)},
}

// Window is what the backend needs from the platform layer to create an
// instance and a surface.
type Window interface {
	GetRequiredExtensionNames() []string
	VulkanProcAddress() unsafe.Pointer
	CreateSurface(instance interface{}) (uintptr, error)
}

type VulkanRendererOptions struct {
	// Validation enables the Khronos validation layer and the debug report callback.
	Validation bool
	// SPIR-V binaries for the two fixed stages.
	VertexShader   []byte
	FragmentShader []byte
}

type VulkanRenderer struct {
	window  Window
	options VulkanRendererOptions
	context *VulkanContext

	commandPool    *VulkanCommandPool
	fences         *FencePool
	queue          *VulkanQueue
	vertexBuffer   *VulkanBuffer
	uniformBuffers []*VulkanUniformBuffer
	descriptors    *VulkanDescriptors
	shaderStages   []*VulkanShaderStage
	pipeline       *VulkanPipeline
}

func New(p Window, options VulkanRendererOptions) *VulkanRenderer {
	return &VulkanRenderer{
		window:  p,
		options:  options,
		context: &VulkanContext{
			FramebufferWidth:  0,
			FramebufferHeight: 0,
			Allocator:         nil,
		},
	}
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := vr.window.VulkanProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil: %w", core.ErrConfiguration)
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w: %w", err, core.ErrConfiguration)
	}

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	// Debugger
	if vr.options.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
			PNext:       nil,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return vulkanError(core.ErrConfiguration, res, "vk.CreateDebugReportCallback failed")
		}
		vr.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.window.CreateSurface(vr.context.Instance)
	if err != nil {
		core.LogError("Failed to create platform surface!")
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vr.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}

	// Swapchain
	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc
	extent := sc.ImageExtent

	rp, err := RenderpassCreate(vr.context, 0, 0, float32(extent.Width), float32(extent.Height))
	if err != nil {
		return err
	}
	vr.context.MainRenderpass = rp

	// Swapchain framebuffers.
	if err := sc.CreateFramebuffers(rp); err != nil {
		return err
	}

	pool, err := NewVulkanCommandPool(vr.context, uint32(vr.context.Device.GraphicsQueueIndex))
	if err != nil {
		return err
	}
	vr.commandPool = pool
	vr.fences = NewFencePool(vr.context)
	vr.queue = NewVulkanQueue(vr.context, sc, vr.fences)

	if err := vr.createResources(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("gdemo"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := vr.window.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if vr.options.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	var layers []string
	if vr.options.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		layers = []string{validationLayerName}

		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			return vulkanError(core.ErrConfiguration, res, "failed to enumerate instance layers")
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			return vulkanError(core.ErrConfiguration, res, "failed to enumerate instance layers")
		}

		// Verify all required layers are available.
		for _, required := range layers {
			core.LogDebug("Searching for layer: %s...", required)
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				if required == CString(availableLayers[j].LayerName[:]) {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s: %w", required, core.ErrConfiguration)
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		return vulkanError(core.ErrConfiguration, res, "failed in creating the Vulkan Instance")
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		return fmt.Errorf("init instance: %w: %w", err, core.ErrConfiguration)
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

// createResources builds everything the frame loop records against.
func (vr *VulkanRenderer) createResources() error {
	vb, err := NewVertexBuffer(vr.context, TriangleVertices)
	if err != nil {
		return err
	}
	vr.vertexBuffer = vb

	for i := 0; i < vr.context.Swapchain.ImageCount(); i++ {
		ub, err := NewUniformBuffer(vr.context)
		if err != nil {
			return err
		}
		vr.uniformBuffers = append(vr.uniformBuffers, ub)
	}

	layout, err := DescriptorSetLayoutCreate(vr.context)
	if err != nil {
		return err
	}
	descriptors, err := DescriptorsCreate(vr.context, layout, vr.uniformBuffers)
	if err != nil {
		vk.DestroyDescriptorSetLayout(vr.context.Device.LogicalDevice, layout, vr.context.Allocator)
		return err
	}
	vr.descriptors = descriptors

	if len(vr.options.VertexShader) == 0 || len(vr.options.FragmentShader) == 0 {
		return fmt.Errorf("missing shader binaries: %w", core.ErrConfiguration)
	}
	vert, err := NewShaderModule(vr.context, "triangle.vert", vr.options.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return err
	}
	vr.shaderStages = append(vr.shaderStages, vert)
	frag, err := NewShaderModule(vr.context, "triangle.frag", vr.options.FragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return err
	}
	vr.shaderStages = append(vr.shaderStages, frag)

	stages := make([]vk.PipelineShaderStageCreateInfo, len(vr.shaderStages))
	for i, s := range vr.shaderStages {
		stages[i] = s.ShaderStageCreateInfo
	}

	rp := vr.context.MainRenderpass
	pipeline, err := NewGraphicsPipeline(vr.context, &VulkanPipelineConfig{
		Renderpass: rp,
		Stride:     uint32(unsafe.Sizeof(math.Vertex2D{})),
		Attributes: []vk.VertexInputAttributeDescription{
			{
				Location: 0,
				Binding:  0,
				Format:   vk.FormatR32g32Sfloat,
				Offset:   0,
			},
		},
		DescriptorSetLayouts: []vk.DescriptorSetLayout{layout},
		Stages:               stages,
		Viewport:             vk.Viewport{X: rp.X, Y: rp.Y, Width: rp.W, Height: rp.H, MinDepth: 0, MaxDepth: 1},
		Scissor: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: uint32(rp.W), Height: uint32(rp.H)},
		},
		CullMode:    vk.CullModeNone,
		IsWireframe: false,
	})
	if err != nil {
		return err
	}
	vr.pipeline = pipeline
	return nil
}

func (vr *VulkanRenderer) Surface() renderer.Surface {
	return vr.context.Swapchain
}

func (vr *VulkanRenderer) Queue() renderer.Queue {
	return vr.queue
}

func (vr *VulkanRenderer) CommandPool() renderer.CommandPool {
	return vr.commandPool
}

func (vr *VulkanRenderer) Resources() renderer.PipelineResources {
	res := renderer.PipelineResources{
		RenderPass:   vr.context.MainRenderpass,
		Pipeline:     vr.pipeline,
		VertexBuffer: vr.vertexBuffer,
		VertexCount:  uint32(len(TriangleVertices)),
	}
	for _, set := range vr.descriptors.Sets {
		res.DescriptorSets = append(res.DescriptorSets, set)
	}
	for _, ub := range vr.uniformBuffers {
		res.UniformBuffers = append(res.UniformBuffers, ub)
	}
	return res
}

func (vr *VulkanRenderer) WaitIdle() error {
	if vr.context.Device == nil || vr.context.Device.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); res != vk.Success {
		return vulkanError(core.ErrDevice, res, "vkDeviceWaitIdle failed")
	}
	return nil
}

// Shutdown destroys in the opposite order of creation. It tolerates a
// partially initialized renderer.
func (vr *VulkanRenderer) Shutdown() error {
	if err := vr.WaitIdle(); err != nil {
		core.LogWarn("Shutting down with a busy device: %s", err)
	}

	if vr.pipeline != nil {
		vr.pipeline.Destroy(vr.context)
		vr.pipeline = nil
	}
	for _, s := range vr.shaderStages {
		s.Destroy(vr.context)
	}
	vr.shaderStages = nil
	if vr.descriptors != nil {
		vr.descriptors.Destroy(vr.context)
		vr.descriptors = nil
	}
	for _, ub := range vr.uniformBuffers {
		ub.Destroy()
	}
	vr.uniformBuffers = nil
	if vr.vertexBuffer != nil {
		vr.vertexBuffer.Destroy()
		vr.vertexBuffer = nil
	}
	if vr.fences != nil {
		vr.fences.Destroy()
		vr.fences = nil
	}
	if vr.commandPool != nil {
		vr.commandPool.Destroy()
		vr.commandPool = nil
	}
	vr.queue = nil

	// Framebuffers go with the swapchain.
	if vr.context.Swapchain != nil {
		vr.context.Swapchain.Destroy()
		vr.context.Swapchain = nil
	}
	if vr.context.MainRenderpass != nil {
		vr.context.MainRenderpass.RenderpassDestroy(vr.context)
		vr.context.MainRenderpass = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	core.LogDebug("Destroying Vulkan surface...")
	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
