package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

func createImageView(ctx *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(ctx.Device.LogicalDevice, &viewInfo, ctx.Allocator, &view); res != vk.Success {
		err := resultError("vkCreateImageView", res)
		core.LogError(err.Error())
		return vk.NullImageView, err
	}
	return view, nil
}

// DepthImage is the depth attachment shared by every framebuffer. It is
// rebuilt with the swapchain.
type DepthImage struct {
	ctx *VulkanContext

	Image  *Image
	View   vk.ImageView
	Format vk.Format
}

func NewDepthImage(ctx *VulkanContext, alloc *Allocator, extent vk.Extent2D) (*DepthImage, error) {
	format := ctx.Device.DepthFormat
	img, err := alloc.CreateImage(ImageInfo{
		Width:  extent.Width,
		Height: extent.Height,
		Format: format,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		Tiling: vk.ImageTilingOptimal,
	})
	if err != nil {
		core.LogError("failed to create depth image: %s", err)
		return nil, err
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if hasStencil(format) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	view, err := createImageView(ctx, img.Handle, format, aspect)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	return &DepthImage{ctx: ctx, Image: img, View: view, Format: format}, nil
}

func (d *DepthImage) Destroy() {
	if d.View != vk.NullImageView {
		vk.DestroyImageView(d.ctx.Device.LogicalDevice, d.View, d.ctx.Allocator)
		d.View = vk.NullImageView
	}
	if d.Image != nil {
		d.Image.Destroy()
		d.Image = nil
	}
}
