package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

const engineName = "Dragonfire Engine"

const validationLayer = "VK_LAYER_KHRONOS_validation"

// WindowSurface is the part of the platform window the backend needs.
type WindowSurface interface {
	GetRequiredExtensionNames() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (width, height uint32)
}

// VulkanContext owns the instance level objects and the device. It is
// shared by every other object of the backend.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback
	validation    bool

	Device   *VulkanDevice
	LockPool *VulkanLockPool
}

// NewContext loads vulkan, creates the instance and the window surface.
// The device is selected separately.
func NewContext(window WindowSurface, appName string, validation bool) (*VulkanContext, error) {
	if err := vk.Init(); err != nil {
		err = fmt.Errorf("failed to initialize vulkan: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	ctx := &VulkanContext{
		validation: validation,
		LockPool:   NewVulkanLockPool(),
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString(engineName),
	}

	extensions := window.GetRequiredExtensionNames()
	var flags vk.InstanceCreateFlags
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var layers []string
	if validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if !instanceLayerAvailable(validationLayer) {
			err := fmt.Errorf("required validation layer is missing: %s", validationLayer)
			core.LogError(err.Error())
			return nil, err
		}
		layers = append(layers, validationLayer)
		core.LogInfo("Validation layers enabled")
	}
	for _, ext := range extensions {
		core.LogDebug("instance extension: %s", ext)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		Flags:                   flags,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
	}
	if res := vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		core.LogError(err.Error())
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		return nil, err
	}
	logInstanceVersion(appInfo.ApiVersion)

	if validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(ctx.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			ctx.Destroy()
			return nil, err
		}
		ctx.debugCallback = dbg
	}

	surface, err := window.CreateSurface(ctx.Instance)
	if err != nil {
		err = fmt.Errorf("failed to create window surface: %w", err)
		core.LogError(err.Error())
		ctx.Destroy()
		return nil, err
	}
	ctx.Surface = surface
	return ctx, nil
}

func instanceLayerAvailable(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func logInstanceVersion(apiVersion uint32) {
	v := vk.Version(apiVersion)
	core.LogInfo("Vulkan instance created, version %d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// WaitIdle waits for every queue while holding all queue locks.
func (ctx *VulkanContext) WaitIdle() error {
	return ctx.LockPool.SafeDeviceCall(func() error {
		if res := vk.DeviceWaitIdle(ctx.Device.LogicalDevice); res != vk.Success {
			return resultError("vkDeviceWaitIdle", res)
		}
		return nil
	})
}

// Destroy releases the device, the surface, the debug callback and the
// instance, in that order.
func (ctx *VulkanContext) Destroy() {
	if ctx.Device != nil {
		ctx.Device.Destroy(ctx)
		ctx.Device = nil
	}
	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugCallback != nil {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = nil
	}
	if ctx.Instance != nil {
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
