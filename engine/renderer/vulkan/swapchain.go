package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"golang.org/x/exp/constraints"
)

// Swapchain is replaced wholesale when the surface changes.
type Swapchain struct {
	ctx *VulkanContext

	Handle      vk.Swapchain
	Format      vk.Format
	ColorSpace  vk.ColorSpace
	Extent      vk.Extent2D
	PresentMode vk.PresentMode
	Images      []vk.Image
	Views       []vk.ImageView

	CurrentImageIndex uint32
}

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

// swapchainSettings is everything derived from the surface support before
// the swapchain is created.
type swapchainSettings struct {
	extent        vk.Extent2D
	imageCount    uint32
	format        vk.SurfaceFormat
	presentMode   vk.PresentMode
	sharing       vk.SharingMode
	queueFamilies []uint32
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface) (swapchainSupport, error) {
	var support swapchainSupport

	if res := vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &support.capabilities); res != vk.Success {
		return support, resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	support.capabilities.Deref()
	support.capabilities.CurrentExtent.Deref()
	support.capabilities.MinImageExtent.Deref()
	support.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil); res != vk.Success {
		return support, resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	if formatCount > 0 {
		support.formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, support.formats); res != vk.Success {
			return support, resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for i := range support.formats {
			support.formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil); res != vk.Success {
		return support, resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	if modeCount > 0 {
		support.presentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, support.presentModes); res != vk.Success {
			return support, resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
	}
	return support, nil
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// chooseExtent uses the surface extent unless the surface lets the
// swapchain decide, in which case the requested resolution is clamped.
func chooseExtent(caps vk.SurfaceCapabilities, resolution [2]uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(resolution[0], caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(resolution[1], caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 {
		count = min(count, caps.MaxImageCount)
	}
	return count
}

func choosePresentMode(vsync bool, modes []vk.PresentMode) vk.PresentMode {
	preferred := []vk.PresentMode{vk.PresentModeMailbox}
	if !vsync {
		preferred = append(preferred, vk.PresentModeImmediate)
	}
	for _, want := range preferred {
		for _, mode := range modes {
			if mode == want {
				return mode
			}
		}
	}
	// always supported
	return vk.PresentModeFifo
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	preferred := vk.SurfaceFormat{
		Format:     vk.FormatB8g8r8a8Unorm,
		ColorSpace: vk.ColorSpaceSrgbNonlinear,
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return preferred
	}
	for _, f := range formats {
		if f.Format == preferred.Format && f.ColorSpace == preferred.ColorSpace {
			return f
		}
	}
	return formats[0]
}

func chooseSharing(graphics, present uint32) (vk.SharingMode, []uint32) {
	if graphics != present {
		return vk.SharingModeConcurrent, []uint32{graphics, present}
	}
	return vk.SharingModeExclusive, nil
}

func swapchainConfig(support swapchainSupport, resolution [2]uint32, vsync bool, graphics, present uint32) swapchainSettings {
	sharing, families := chooseSharing(graphics, present)
	return swapchainSettings{
		extent:        chooseExtent(support.capabilities, resolution),
		imageCount:    chooseImageCount(support.capabilities),
		format:        chooseSurfaceFormat(support.formats),
		presentMode:   choosePresentMode(vsync, support.presentModes),
		sharing:       sharing,
		queueFamilies: families,
	}
}

func chooseCompositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// NewSwapchain creates a swapchain for the context surface. old, when not
// nil, is handed to the driver for reuse and must be destroyed by the
// caller afterwards.
func NewSwapchain(ctx *VulkanContext, resolution [2]uint32, vsync bool, old *Swapchain) (*Swapchain, error) {
	dev := ctx.Device
	support, err := querySwapchainSupport(dev.PhysicalDevice, ctx.Surface)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if len(support.formats) == 0 {
		err := fmt.Errorf("%w: surface has no pixel formats", core.ErrNoSuitableDevice)
		core.LogError(err.Error())
		return nil, err
	}
	cfg := swapchainConfig(support, resolution, vsync, dev.GraphicsQueueIndex, dev.PresentQueueIndex)

	preTransform := support.capabilities.CurrentTransform
	if vk.SurfaceTransformFlagBits(support.capabilities.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		preTransform = vk.SurfaceTransformIdentityBit
	}

	oldHandle := vk.NullSwapchain
	if old != nil {
		oldHandle = old.Handle
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               ctx.Surface,
		MinImageCount:         cfg.imageCount,
		ImageFormat:           cfg.format.Format,
		ImageColorSpace:       cfg.format.ColorSpace,
		ImageExtent:           cfg.extent,
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode:      cfg.sharing,
		QueueFamilyIndexCount: uint32(len(cfg.queueFamilies)),
		PQueueFamilyIndices:   cfg.queueFamilies,
		PreTransform:          preTransform,
		CompositeAlpha:        chooseCompositeAlpha(support.capabilities.SupportedCompositeAlpha),
		PresentMode:           cfg.presentMode,
		Clipped:               vk.True,
		OldSwapchain:          oldHandle,
	}

	sc := &Swapchain{
		ctx:         ctx,
		Format:      cfg.format.Format,
		ColorSpace:  cfg.format.ColorSpace,
		Extent:      cfg.extent,
		PresentMode: cfg.presentMode,
	}
	if res := vk.CreateSwapchain(dev.LogicalDevice, &createInfo, ctx.Allocator, &sc.Handle); res != vk.Success {
		err := resultError("vkCreateSwapchainKHR", res)
		core.LogError(err.Error())
		return nil, err
	}

	var count uint32
	if res := vk.GetSwapchainImages(dev.LogicalDevice, sc.Handle, &count, nil); res != vk.Success {
		sc.Destroy()
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}
	sc.Images = make([]vk.Image, count)
	if res := vk.GetSwapchainImages(dev.LogicalDevice, sc.Handle, &count, sc.Images); res != vk.Success {
		sc.Destroy()
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}

	sc.Views = make([]vk.ImageView, 0, count)
	for _, img := range sc.Images {
		view, err := createImageView(ctx, img, sc.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.Views = append(sc.Views, view)
	}

	core.LogDebug("swapchain created: %d images, %dx%d, present mode %d",
		count, sc.Extent.Width, sc.Extent.Height, sc.PresentMode)
	return sc, nil
}

// swapchainResult maps the result of an acquire or a present. Suboptimal
// and out of date swapchains wrap core.ErrSwapchainStale.
func swapchainResult(op string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return fmt.Errorf("%w: %s returned %s", core.ErrSwapchainStale, op, VulkanResultString(res))
	default:
		return resultError(op, res)
	}
}

func staleOrError(err error) (bool, error) {
	if errors.Is(err, core.ErrSwapchainStale) {
		core.LogDebug(err.Error())
		return true, nil
	}
	return false, err
}

// Next acquires the next image and signals signal once it is usable.
func (sc *Swapchain) Next(signal vk.Semaphore) (stale bool, err error) {
	var idx uint32
	res := vk.AcquireNextImage(sc.ctx.Device.LogicalDevice, sc.Handle, vk.MaxUint64, signal, vk.NullFence, &idx)
	if res == vk.Success {
		sc.CurrentImageIndex = idx
	}
	return staleOrError(swapchainResult("vkAcquireNextImageKHR", res))
}

// present queues imageIndex for presentation once wait is signalled.
func (sc *Swapchain) present(queue vk.Queue, wait vk.Semaphore, imageIndex uint32) (stale bool, err error) {
	res := vk.QueuePresent(queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	})
	return staleOrError(swapchainResult("vkQueuePresentKHR", res))
}

func (sc *Swapchain) CurrentImage() vk.Image {
	return sc.Images[sc.CurrentImageIndex]
}

func (sc *Swapchain) CurrentImageView() vk.ImageView {
	return sc.Views[sc.CurrentImageIndex]
}

// Destroy releases the views, then the swapchain. The images are owned by
// the swapchain.
func (sc *Swapchain) Destroy() {
	dev := sc.ctx.Device.LogicalDevice
	for _, view := range sc.Views {
		vk.DestroyImageView(dev, view, sc.ctx.Allocator)
	}
	sc.Views = nil
	sc.Images = nil
	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(dev, sc.Handle, sc.ctx.Allocator)
		sc.Handle = vk.NullSwapchain
	}
}
