package vulkan

import (
	"fmt"
	"image"
	"image/color"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

const textureFormat = vk.FormatR8g8b8a8Srgb

// Texture is a sampled, shader read only image.
type Texture struct {
	ctx *VulkanContext

	Image   *Image
	View    vk.ImageView
	Sampler vk.Sampler
}

// tightPixels returns the pixels without row padding.
func tightPixels(img *image.RGBA) []byte {
	b := img.Bounds()
	rowBytes := b.Dx() * 4
	if img.Stride == rowBytes && len(img.Pix) == rowBytes*b.Dy() {
		return img.Pix
	}
	out := make([]byte, 0, rowBytes*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[start:start+rowBytes]...)
	}
	return out
}

func layoutBarrier(img vk.Image, from, to vk.ImageLayout, srcAccess, dstAccess vk.AccessFlagBits) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(dstAccess),
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
}

func samplerInfo(anisotropy bool, maxAnisotropy float32) vk.SamplerCreateInfo {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  0,
	}
	if anisotropy {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = maxAnisotropy
	}
	return info
}

// NewTexture uploads img as an sRGB texture. The device anisotropy limit
// is used when the feature was enabled.
func NewTexture(up *Uploader, alloc *Allocator, img *image.RGBA) (*Texture, error) {
	ctx := up.ctx
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", core.ErrResourceDecode)
	}
	width, height := uint32(b.Dx()), uint32(b.Dy())
	pixels := tightPixels(img)

	staging, err := alloc.CreateBuffer(uint64(len(pixels)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), true)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.Write(0, pixels); err != nil {
		return nil, err
	}

	t := &Texture{ctx: ctx}
	t.Image, err = alloc.CreateImage(ImageInfo{
		Width:  width,
		Height: height,
		Format: textureFormat,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		Tiling: vk.ImageTilingOptimal,
	})
	if err != nil {
		return nil, err
	}

	err = up.withOneShot(func(cmd vk.CommandBuffer) error {
		toTransfer := layoutBarrier(t.Image.Handle, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessTransferWriteBit)
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toTransfer})

		vk.CmdCopyBufferToImage(cmd, staging.Handle, t.Image.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
		}})

		toShader := layoutBarrier(t.Image.Handle, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessTransferWriteBit, vk.AccessShaderReadBit)
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toShader})
		return nil
	})
	if err != nil {
		t.Destroy()
		return nil, err
	}

	if t.View, err = createImageView(ctx, t.Image.Handle, textureFormat, vk.ImageAspectFlags(vk.ImageAspectColorBit)); err != nil {
		t.Destroy()
		return nil, err
	}

	dev := ctx.Device
	info := samplerInfo(dev.Features.SamplerAnisotropy == vk.True, dev.Properties.Limits.MaxSamplerAnisotropy)
	if res := vk.CreateSampler(dev.LogicalDevice, &info, ctx.Allocator, &t.Sampler); res != vk.Success {
		t.Destroy()
		err := resultError("vkCreateSampler", res)
		core.LogError(err.Error())
		return nil, err
	}
	return t, nil
}

// NewDefaultTexture is a 1x1 white texture bound by untextured materials.
func NewDefaultTexture(up *Uploader, alloc *Allocator) (*Texture, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return NewTexture(up, alloc, img)
}

func (t *Texture) Destroy() {
	dev := t.ctx.Device.LogicalDevice
	if t.Sampler != vk.NullSampler {
		vk.DestroySampler(dev, t.Sampler, t.ctx.Allocator)
		t.Sampler = vk.NullSampler
	}
	if t.View != vk.NullImageView {
		vk.DestroyImageView(dev, t.View, t.ctx.Allocator)
		t.View = vk.NullImageView
	}
	if t.Image != nil {
		t.Image.Destroy()
		t.Image = nil
	}
}
