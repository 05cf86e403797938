package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

const portabilitySubset = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type queueFamilyIndices struct {
	graphics, present, transfer uint32
}

// findQueueFamilies picks a graphics family, a present family (the
// graphics one when it can present) and a transfer family (a dedicated one
// when available).
func findQueueFamilies(families []vk.QueueFamilyProperties, supportsPresent func(index uint32) bool) (queueFamilyIndices, bool) {
	var out queueFamilyIndices
	graphicsFound, presentFound := false, false
	transferFound, dedicatedTransfer := false, false

	for i := range families {
		families[i].Deref()
		idx := uint32(i)
		flags := families[i].QueueFlags
		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		transfer := flags&vk.QueueFlags(vk.QueueTransferBit) != 0

		if graphics && !graphicsFound {
			out.graphics = idx
			graphicsFound = true
		}
		if supportsPresent(idx) {
			if !presentFound || (graphics && idx == out.graphics && out.present != out.graphics) {
				out.present = idx
				presentFound = true
			}
		}
		if transfer && !graphics && !dedicatedTransfer {
			out.transfer = idx
			transferFound, dedicatedTransfer = true, true
		}
	}
	if !transferFound && graphicsFound {
		// graphics queues always support transfers
		out.transfer = out.graphics
	}
	return out, graphicsFound && presentFound
}

func deviceTypeRank(t vk.PhysicalDeviceType) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 1
	default:
		return 0
	}
}

// pickDevice returns the index of the best suitable device: a discrete gpu
// if there is one, else the first suitable device. -1 if none is suitable.
func pickDevice(types []vk.PhysicalDeviceType, suitable []bool) int {
	best, bestRank := -1, -1
	for i, t := range types {
		if !suitable[i] {
			continue
		}
		if r := deviceTypeRank(t); r == 3 && r > bestRank {
			best, bestRank = i, r
		} else if best == -1 {
			best, bestRank = i, r
		}
	}
	return best
}

func hasExtensions(available, required []string) (missing string, ok bool) {
	set := make(map[string]struct{}, len(available))
	for _, name := range available {
		set[name] = struct{}{}
	}
	for _, name := range required {
		if _, found := set[name]; !found {
			return name, false
		}
	}
	return "", true
}

func deviceExtensions(pd vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		return nil, resultError("vkEnumerateDeviceExtensionProperties", res)
	}
	props := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, props); res != vk.Success {
		return nil, resultError("vkEnumerateDeviceExtensionProperties", res)
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, cString(props[i].ExtensionName[:]))
	}
	return names, nil
}

// SelectPhysicalDevice keeps the devices with graphics and present queues,
// the swapchain extension and at least one surface format and present mode.
func SelectPhysicalDevice(ctx *VulkanContext) (*VulkanDevice, []string, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil); res != vk.Success {
		return nil, nil, resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return nil, nil, fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrNoSuitableDevice)
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, physicalDevices); res != vk.Success {
		return nil, nil, resultError("vkEnumeratePhysicalDevices", res)
	}

	candidates := make([]*VulkanDevice, count)
	types := make([]vk.PhysicalDeviceType, count)
	suitable := make([]bool, count)
	extensions := make([][]string, count)

	for i, pd := range physicalDevices {
		dev := &VulkanDevice{PhysicalDevice: pd}
		vk.GetPhysicalDeviceProperties(pd, &dev.Properties)
		dev.Properties.Deref()
		dev.Properties.Limits.Deref()
		vk.GetPhysicalDeviceFeatures(pd, &dev.Features)
		dev.Features.Deref()
		vk.GetPhysicalDeviceMemoryProperties(pd, &dev.Memory)
		dev.Memory.Deref()

		candidates[i] = dev
		types[i] = dev.Properties.DeviceType
		name := cString(dev.Properties.DeviceName[:])

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

		indices, ok := findQueueFamilies(families, func(index uint32) bool {
			var supported vk.Bool32
			res := vk.GetPhysicalDeviceSurfaceSupport(pd, index, ctx.Surface, &supported)
			return res == vk.Success && supported == vk.True
		})
		if !ok {
			core.LogInfo("%s: no graphics or present queue, skipping", name)
			continue
		}

		available, err := deviceExtensions(pd)
		if err != nil {
			core.LogWarn("%s: %s, skipping", name, err)
			continue
		}
		if missing, ok := hasExtensions(available, []string{vk.KhrSwapchainExtensionName}); !ok {
			core.LogInfo("%s: required extension not found: '%s', skipping", name, missing)
			continue
		}
		support, err := querySwapchainSupport(pd, ctx.Surface)
		if err != nil || len(support.formats) == 0 || len(support.presentModes) == 0 {
			core.LogInfo("%s: required swapchain support not present, skipping", name)
			continue
		}

		dev.GraphicsQueueIndex = indices.graphics
		dev.PresentQueueIndex = indices.present
		dev.TransferQueueIndex = indices.transfer
		extensions[i] = available
		suitable[i] = true
	}

	best := pickDevice(types, suitable)
	if best < 0 {
		err := fmt.Errorf("%w: no physical device meets the requirements", core.ErrNoSuitableDevice)
		core.LogError(err.Error())
		return nil, nil, err
	}
	dev := candidates[best]

	core.LogInfo("Using gpu %s", cString(dev.Properties.DeviceName[:]))
	driver := vk.Version(dev.Properties.DriverVersion)
	api := vk.Version(dev.Properties.ApiVersion)
	core.LogInfo("GPU driver version %d.%d.%d, Vulkan API version %d.%d.%d",
		driver.Major(), driver.Minor(), driver.Patch(), api.Major(), api.Minor(), api.Patch())
	core.LogDebug("queue families: graphics %d, present %d, transfer %d",
		dev.GraphicsQueueIndex, dev.PresentQueueIndex, dev.TransferQueueIndex)

	return dev, extensions[best], nil
}

// DeviceCreate selects the physical device and creates the logical device
// with one queue per distinct family.
func DeviceCreate(ctx *VulkanContext) error {
	dev, available, err := SelectPhysicalDevice(ctx)
	if err != nil {
		return err
	}

	families := []uint32{dev.GraphicsQueueIndex}
	for _, idx := range []uint32{dev.PresentQueueIndex, dev.TransferQueueIndex} {
		seen := false
		for _, f := range families {
			seen = seen || f == idx
		}
		if !seen {
			families = append(families, idx)
		}
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, idx := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		ctx.LockPool.SetQueueFamily(idx)
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if _, ok := hasExtensions(available, []string{portabilitySubset}); ok {
		core.LogInfo("Adding required extension '%s'", portabilitySubset)
		extensionNames = append(extensionNames, portabilitySubset)
	}

	features := vk.PhysicalDeviceFeatures{}
	if dev.Features.SamplerAnisotropy == vk.True {
		features.SamplerAnisotropy = vk.True
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	var device vk.Device
	if res := vk.CreateDevice(dev.PhysicalDevice, &deviceCreateInfo, ctx.Allocator, &device); res != vk.Success {
		err := resultError("vkCreateDevice", res)
		core.LogError(err.Error())
		return err
	}
	dev.LogicalDevice = device

	vk.GetDeviceQueue(device, dev.GraphicsQueueIndex, 0, &dev.GraphicsQueue)
	vk.GetDeviceQueue(device, dev.PresentQueueIndex, 0, &dev.PresentQueue)
	vk.GetDeviceQueue(device, dev.TransferQueueIndex, 0, &dev.TransferQueue)

	depth, ok := chooseDepthFormat(func(f vk.Format) vk.FormatProperties {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(dev.PhysicalDevice, f, &props)
		props.Deref()
		return props
	})
	if !ok {
		vk.DestroyDevice(device, ctx.Allocator)
		err := fmt.Errorf("%w: no supported depth format", core.ErrNoSuitableDevice)
		core.LogError(err.Error())
		return err
	}
	dev.DepthFormat = depth

	ctx.Device = dev
	core.LogInfo("Logical device created")
	return nil
}

var depthCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// chooseDepthFormat returns the first candidate usable as an optimally
// tiled depth stencil attachment.
func chooseDepthFormat(query func(vk.Format) vk.FormatProperties) (vk.Format, bool) {
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range depthCandidates {
		props := query(f)
		if props.OptimalTilingFeatures&flags == flags {
			return f, true
		}
	}
	return vk.FormatUndefined, false
}

func hasStencil(f vk.Format) bool {
	return f == vk.FormatD32SfloatS8Uint || f == vk.FormatD24UnormS8Uint
}

func (d *VulkanDevice) Destroy(ctx *VulkanContext) {
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	d.TransferQueue = nil

	if d.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, ctx.Allocator)
		d.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
}
