package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

// RenderPass is the single pass of the backend: one color attachment
// presented at the end and one depth attachment. The layout transitions
// of both attachments happen in the pass itself.
type RenderPass struct {
	Handle vk.RenderPass

	ClearColor [4]float32
	Depth      float32
	Stencil    uint32
}

func NewRenderPass(ctx *VulkanContext, colorFormat, depthFormat vk.Format) (*RenderPass, error) {
	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	depthReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthReference,
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		SrcAccessMask: 0,
		DstStageMask:  stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	rp := &RenderPass{
		ClearColor: [4]float32{0, 0, 0, 1},
		Depth:      1.0,
	}
	if res := vk.CreateRenderPass(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &rp.Handle); res != vk.Success {
		err := resultError("vkCreateRenderPass", res)
		core.LogError(err.Error())
		return nil, err
	}
	return rp, nil
}

func (rp *RenderPass) clearValues() []vk.ClearValue {
	values := make([]vk.ClearValue, 2)
	values[0].SetColor(rp.ClearColor[:])
	values[1].SetDepthStencil(rp.Depth, rp.Stencil)
	return values
}

// Begin starts the pass over the whole framebuffer. The draws come from
// secondary command buffers.
func (rp *RenderPass) Begin(cmd vk.CommandBuffer, framebuffer vk.Framebuffer, extent vk.Extent2D) {
	clear := rp.clearValues()
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cmd, &beginInfo, vk.SubpassContentsSecondaryCommandBuffers)
}

func (rp *RenderPass) End(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (rp *RenderPass) Destroy(ctx *VulkanContext) {
	if rp.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(ctx.Device.LogicalDevice, rp.Handle, ctx.Allocator)
		rp.Handle = vk.NullRenderPass
	}
}
