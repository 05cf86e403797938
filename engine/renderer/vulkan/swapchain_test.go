package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCapabilities() vk.SurfaceCapabilities {
	return vk.SurfaceCapabilities{
		MinImageCount:  2,
		MaxImageCount:  3,
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 1920, Height: 1080},
	}
}

func TestChooseExtent(t *testing.T) {
	caps := testCapabilities()
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, [2]uint32{800, 600}))
	assert.Equal(t, vk.Extent2D{Width: 1920, Height: 1080}, chooseExtent(caps, [2]uint32{4000, 3000}))
	assert.Equal(t, vk.Extent2D{Width: 1, Height: 1}, chooseExtent(caps, [2]uint32{0, 0}))

	caps.CurrentExtent = vk.Extent2D{Width: 1024, Height: 768}
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, chooseExtent(caps, [2]uint32{800, 600}))
}

func TestChooseImageCount(t *testing.T) {
	caps := testCapabilities()
	assert.Equal(t, uint32(3), chooseImageCount(caps))

	caps.MaxImageCount = 2
	assert.Equal(t, uint32(2), chooseImageCount(caps))

	// no upper bound
	caps.MaxImageCount = 0
	caps.MinImageCount = 4
	assert.Equal(t, uint32(5), chooseImageCount(caps))
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}
	noMailbox := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}

	tests := []struct {
		name  string
		vsync bool
		modes []vk.PresentMode
		want  vk.PresentMode
	}{
		{"vsync mailbox", true, all, vk.PresentModeMailbox},
		{"vsync fifo", true, noMailbox, vk.PresentModeFifo},
		{"no vsync mailbox", false, all, vk.PresentModeMailbox},
		{"no vsync immediate", false, noMailbox, vk.PresentModeImmediate},
		{"no vsync fifo", false, []vk.PresentMode{vk.PresentModeFifo}, vk.PresentModeFifo},
		{"nothing reported", false, nil, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, choosePresentMode(tt.vsync, tt.modes))
		})
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred}))
	assert.Equal(t, other, chooseSurfaceFormat([]vk.SurfaceFormat{other}))
	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatUndefined}}))
}

func TestChooseSharing(t *testing.T) {
	mode, families := chooseSharing(0, 0)
	assert.Equal(t, vk.SharingModeExclusive, mode)
	assert.Empty(t, families)

	mode, families = chooseSharing(0, 2)
	assert.Equal(t, vk.SharingModeConcurrent, mode)
	assert.Equal(t, []uint32{0, 2}, families)
}

func TestSwapchainConfigRoundTrip(t *testing.T) {
	support := swapchainSupport{
		capabilities: testCapabilities(),
		formats: []vk.SurfaceFormat{
			{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		},
		presentModes: []vk.PresentMode{vk.PresentModeFifo},
	}
	resolution := [2]uint32{1280, 720}

	first := swapchainConfig(support, resolution, true, 0, 0)
	second := swapchainConfig(support, resolution, true, 0, 0)

	assert.Equal(t, first.imageCount, second.imageCount)
	assert.Equal(t, first.format, second.format)
	assert.Equal(t, first.extent, second.extent)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, first.format.Format)
	assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, first.extent)
	assert.Equal(t, vk.PresentModeFifo, first.presentMode)
	assert.Equal(t, vk.SharingModeExclusive, first.sharing)
}

func TestChooseCompositeAlpha(t *testing.T) {
	assert.Equal(t, vk.CompositeAlphaOpaqueBit, chooseCompositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit|vk.CompositeAlphaInheritBit)))
	assert.Equal(t, vk.CompositeAlphaInheritBit, chooseCompositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit)))
}

func TestSwapchainResult(t *testing.T) {
	assert.NoError(t, swapchainResult("acquire", vk.Success))
	assert.ErrorIs(t, swapchainResult("acquire", vk.Suboptimal), core.ErrSwapchainStale)
	assert.ErrorIs(t, swapchainResult("present", vk.ErrorOutOfDate), core.ErrSwapchainStale)

	err := swapchainResult("present", vk.ErrorDeviceLost)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrSwapchainStale)

	stale, err := staleOrError(swapchainResult("acquire", vk.Suboptimal))
	assert.True(t, stale)
	assert.NoError(t, err)
}

func TestReplaceSwapchainHoldsPresentLock(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)
	pool.SetQueueFamily(1)
	old := &Swapchain{}
	b := &Backend{
		ctx: &VulkanContext{
			LockPool: pool,
			Device:   &VulkanDevice{GraphicsQueueIndex: 0, PresentQueueIndex: 1},
		},
		opts:      Options{VSync: true},
		swapchain: old,
	}

	prev := newSwapchain
	t.Cleanup(func() { newSwapchain = prev })
	newSwapchain = func(ctx *VulkanContext, resolution [2]uint32, vsync bool, oldSwapchain *Swapchain) (*Swapchain, error) {
		assert.False(t, pool.queueLock(1).TryLock(), "present queue is not locked")
		if graphics := pool.queueLock(0); graphics.TryLock() {
			graphics.Unlock()
		} else {
			t.Error("graphics queue is locked")
		}
		assert.Same(t, old, oldSwapchain)
		assert.Equal(t, [2]uint32{640, 480}, resolution)
		assert.True(t, vsync)
		return &Swapchain{}, nil
	}

	sc, err := b.replaceSwapchain(640, 480)
	require.NoError(t, err)
	assert.NotSame(t, old, sc)

	present := pool.queueLock(1)
	require.True(t, present.TryLock())
	present.Unlock()
}
