package vulkan

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestTightPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(1, 1, color.RGBA{R: 9, A: 255})
	assert.Equal(t, img.Pix, tightPixels(img))

	sub := img.SubImage(image.Rect(1, 0, 2, 2)).(*image.RGBA)
	pixels := tightPixels(sub)
	assert.Len(t, pixels, 8)
	assert.Equal(t, []byte{9, 0, 0, 255}, pixels[4:])
}

func TestSamplerInfo(t *testing.T) {
	info := samplerInfo(true, 16)
	assert.Equal(t, vk.Bool32(vk.True), info.AnisotropyEnable)
	assert.Equal(t, float32(16), info.MaxAnisotropy)
	assert.Equal(t, vk.SamplerAddressModeRepeat, info.AddressModeW)
	assert.Equal(t, vk.BorderColorIntOpaqueBlack, info.BorderColor)
	assert.Equal(t, float32(0), info.MaxLod)

	info = samplerInfo(false, 16)
	assert.Equal(t, vk.Bool32(vk.False), info.AnisotropyEnable)
	assert.Equal(t, float32(1), info.MaxAnisotropy)
}

func TestLayoutBarrier(t *testing.T) {
	b := layoutBarrier(nil, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 0, vk.AccessTransferWriteBit)
	assert.Equal(t, vk.ImageLayoutUndefined, b.OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, b.NewLayout)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), b.DstAccessMask)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.SrcQueueFamilyIndex)
	assert.Equal(t, uint32(1), b.SubresourceRange.LayerCount)
}

func TestMaterialTextureFallsBackOnUploadFailure(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	defer core.SetLogOutput(os.Stderr)

	failed := materialTexture("brick", "textures/brick.png", func() (*Texture, error) {
		return nil, errors.New("out of device memory")
	})
	assert.Nil(t, failed)
	assert.Contains(t, buf.String(), "brick falls back to the default texture")
	assert.Contains(t, buf.String(), "textures/brick.png")

	uploaded := &Texture{}
	assert.Same(t, uploaded, materialTexture("brick", "textures/brick.png", func() (*Texture, error) {
		return uploaded, nil
	}))
}
