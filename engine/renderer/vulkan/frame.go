package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// frame is one slot of the ring: the objects a recorded frame uses until
// its fence is signalled.
type frame struct {
	ctx   *VulkanContext
	index int

	fence          vk.Fence
	imageAvailable vk.Semaphore
	renderDone     vk.Semaphore
	// staleAcquire is set when an acquire returned early. A suboptimal
	// acquire has already signalled imageAvailable.
	staleAcquire bool

	pool      vk.CommandPool
	primary   *CommandBuffer
	recorders []*recorder

	ubo *GpuObject[metadata.Ubo]
}

func createSemaphore(ctx *VulkanContext) (vk.Semaphore, error) {
	var s vk.Semaphore
	createInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &s); res != vk.Success {
		return vk.NullSemaphore, resultError("vkCreateSemaphore", res)
	}
	return s, nil
}

// newFrame creates the slot with its fence signalled, so the first wait
// returns at once.
func newFrame(ctx *VulkanContext, index, workers int, ubo *GpuObject[metadata.Ubo]) (*frame, error) {
	f := &frame{ctx: ctx, index: index, ubo: ubo}
	fail := func(err error) (*frame, error) {
		f.destroy()
		err = fmt.Errorf("failed to create frame %d: %w", index, err)
		core.LogError(err.Error())
		return nil, err
	}
	dev := ctx.Device.LogicalDevice

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	if res := vk.CreateFence(dev, &fenceInfo, ctx.Allocator, &f.fence); res != vk.Success {
		return fail(resultError("vkCreateFence", res))
	}
	var err error
	if f.imageAvailable, err = createSemaphore(ctx); err != nil {
		return fail(err)
	}
	if f.renderDone, err = createSemaphore(ctx); err != nil {
		return fail(err)
	}

	family := ctx.Device.GraphicsQueueIndex
	if f.pool, err = NewCommandPool(ctx, family, vk.CommandPoolCreateTransientBit); err != nil {
		return fail(err)
	}
	if f.primary, err = AllocateCommandBuffer(ctx, f.pool, true); err != nil {
		return fail(err)
	}

	f.recorders = make([]*recorder, 0, workers)
	for i := 0; i < workers; i++ {
		r, err := newRecorder(ctx, family)
		if err != nil {
			return fail(err)
		}
		f.recorders = append(f.recorders, r)
	}
	return f, nil
}

// wait blocks until the last submission of the slot completed.
func (f *frame) wait() error {
	res := vk.WaitForFences(f.ctx.Device.LogicalDevice, 1, []vk.Fence{f.fence}, vk.True, vk.MaxUint64)
	if res != vk.Success {
		return resultError("vkWaitForFences", res)
	}
	return nil
}

// reset unsignals the fence and resets every pool of the slot. The fence
// must have been waited.
func (f *frame) reset() error {
	dev := f.ctx.Device.LogicalDevice
	if res := vk.ResetFences(dev, 1, []vk.Fence{f.fence}); res != vk.Success {
		return resultError("vkResetFences", res)
	}
	if res := vk.ResetCommandPool(dev, f.pool, 0); res != vk.Success {
		return resultError("vkResetCommandPool", res)
	}
	f.primary.Reset()
	for _, r := range f.recorders {
		if err := r.reset(); err != nil {
			return err
		}
	}
	return nil
}

// recreateImageAvailable swaps the semaphore a stale acquire may have left
// signalled. The device must be idle.
func (f *frame) recreateImageAvailable() error {
	if !f.staleAcquire {
		return nil
	}
	s, err := createSemaphore(f.ctx)
	if err != nil {
		return err
	}
	vk.DestroySemaphore(f.ctx.Device.LogicalDevice, f.imageAvailable, f.ctx.Allocator)
	f.imageAvailable = s
	f.staleAcquire = false
	return nil
}

func (f *frame) destroy() {
	dev := f.ctx.Device.LogicalDevice
	for _, r := range f.recorders {
		r.destroy()
	}
	f.recorders = nil
	if f.pool != vk.NullCommandPool {
		if f.primary != nil {
			f.primary.Free(f.ctx, f.pool)
		}
		vk.DestroyCommandPool(dev, f.pool, f.ctx.Allocator)
		f.pool = vk.NullCommandPool
	}
	if f.imageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(dev, f.imageAvailable, f.ctx.Allocator)
		f.imageAvailable = vk.NullSemaphore
	}
	if f.renderDone != vk.NullSemaphore {
		vk.DestroySemaphore(dev, f.renderDone, f.ctx.Allocator)
		f.renderDone = vk.NullSemaphore
	}
	if f.fence != vk.NullFence {
		vk.DestroyFence(dev, f.fence, f.ctx.Allocator)
		f.fence = vk.NullFence
	}
	if f.ubo != nil {
		f.ubo.Destroy()
		f.ubo = nil
	}
}

// submission is the payload of metadata.PresentInfo. It keeps the
// swapchain the image was acquired from, which may already be retired
// when the frame is presented.
type submission struct {
	frame     *frame
	swapchain *Swapchain
}
