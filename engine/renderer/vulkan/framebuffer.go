package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

// createFramebuffers builds one framebuffer per swapchain view, all
// sharing the depth view.
func createFramebuffers(ctx *VulkanContext, rp *RenderPass, sc *Swapchain, depth *DepthImage) ([]vk.Framebuffer, error) {
	framebuffers := make([]vk.Framebuffer, 0, len(sc.Views))
	for _, view := range sc.Views {
		attachments := []vk.ImageView{view, depth.View}
		createInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      rp.Handle,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           sc.Extent.Width,
			Height:          sc.Extent.Height,
			Layers:          1,
		}
		var fb vk.Framebuffer
		if res := vk.CreateFramebuffer(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &fb); res != vk.Success {
			destroyFramebuffers(ctx, framebuffers)
			err := resultError("vkCreateFramebuffer", res)
			core.LogError(err.Error())
			return nil, err
		}
		framebuffers = append(framebuffers, fb)
	}
	return framebuffers, nil
}

func destroyFramebuffers(ctx *VulkanContext, framebuffers []vk.Framebuffer) {
	for _, fb := range framebuffers {
		vk.DestroyFramebuffer(ctx.Device.LogicalDevice, fb, ctx.Allocator)
	}
}
