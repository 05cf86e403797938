package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Uploader runs one shot command buffers on the graphics queue. It owns
// the utility command pool shared by every loading goroutine.
type Uploader struct {
	ctx    *VulkanContext
	pool   vk.CommandPool
	queue  vk.Queue
	family uint32
}

func NewUploader(ctx *VulkanContext) (*Uploader, error) {
	family := ctx.Device.GraphicsQueueIndex
	pool, err := NewCommandPool(ctx, family, vk.CommandPoolCreateTransientBit|vk.CommandPoolCreateResetCommandBufferBit)
	if err != nil {
		return nil, err
	}
	return &Uploader{
		ctx:    ctx,
		pool:   pool,
		queue:  ctx.Device.GraphicsQueue,
		family: family,
	}, nil
}

// withOneShot records with record, submits and waits for the queue to go
// idle. The command buffer is freed even on error.
func (u *Uploader) withOneShot(record func(cmd vk.CommandBuffer) error) error {
	return u.ctx.LockPool.SafeCall(CommandPoolManagement, func() error {
		cb, err := AllocateCommandBuffer(u.ctx, u.pool, true)
		if err != nil {
			return err
		}
		defer cb.Free(u.ctx, u.pool)

		if err := cb.Begin(vk.CommandBufferUsageOneTimeSubmitBit, nil); err != nil {
			return err
		}
		if err := record(cb.Handle); err != nil {
			return err
		}
		if err := cb.End(); err != nil {
			return err
		}

		return u.ctx.LockPool.SafeQueueCall(u.family, func() error {
			submitInfo := vk.SubmitInfo{
				SType:              vk.StructureTypeSubmitInfo,
				CommandBufferCount: 1,
				PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
			}
			if res := vk.QueueSubmit(u.queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
				return resultError("vkQueueSubmit", res)
			}
			cb.UpdateSubmitted()
			if res := vk.QueueWaitIdle(u.queue); res != vk.Success {
				return resultError("vkQueueWaitIdle", res)
			}
			return nil
		})
	})
}

func (u *Uploader) Destroy() {
	if u.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(u.ctx.Device.LogicalDevice, u.pool, u.ctx.Allocator)
		u.pool = vk.NullCommandPool
	}
}
