package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

type CommandBufferState int

const (
	CommandBufferReady CommandBufferState = iota
	CommandBufferRecording
	CommandBufferRecordingEnded
	CommandBufferSubmitted
	CommandBufferNotAllocated
)

type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

// NewCommandPool creates a pool for family. Pools are externally
// synchronized: each one is used by a single goroutine at a time.
func NewCommandPool(ctx *VulkanContext, family uint32, flags vk.CommandPoolCreateFlagBits) (vk.CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: family,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &pool); res != vk.Success {
		err := resultError("vkCreateCommandPool", res)
		core.LogError(err.Error())
		return vk.NullCommandPool, err
	}
	return pool, nil
}

func AllocateCommandBuffer(ctx *VulkanContext, pool vk.CommandPool, primary bool) (*CommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if primary {
		level = vk.CommandBufferLevelPrimary
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(ctx.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := resultError("vkAllocateCommandBuffers", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &CommandBuffer{Handle: handles[0], State: CommandBufferReady}, nil
}

func (c *CommandBuffer) Free(ctx *VulkanContext, pool vk.CommandPool) {
	if c.Handle != nil {
		vk.FreeCommandBuffers(ctx.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{c.Handle})
		c.Handle = nil
	}
	c.State = CommandBufferNotAllocated
}

// Begin starts recording. inheritance is required for secondary buffers
// and ignored for primary ones.
func (c *CommandBuffer) Begin(flags vk.CommandBufferUsageFlagBits, inheritance *vk.CommandBufferInheritanceInfo) error {
	if c.State != CommandBufferReady {
		return fmt.Errorf("%w: begin on a command buffer in state %d", core.ErrProtocol, c.State)
	}
	beginInfo := commandBufferBeginInfo(flags, inheritance)
	if res := vk.BeginCommandBuffer(c.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	c.State = CommandBufferRecording
	return nil
}

func commandBufferBeginInfo(flags vk.CommandBufferUsageFlagBits, inheritance *vk.CommandBufferInheritanceInfo) vk.CommandBufferBeginInfo {
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(flags),
	}
	if inheritance != nil {
		info.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{*inheritance}
	}
	return info
}

func (c *CommandBuffer) End() error {
	if c.State != CommandBufferRecording {
		return fmt.Errorf("%w: end on a command buffer in state %d", core.ErrProtocol, c.State)
	}
	if res := vk.EndCommandBuffer(c.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	c.State = CommandBufferRecordingEnded
	return nil
}

func (c *CommandBuffer) UpdateSubmitted() {
	c.State = CommandBufferSubmitted
}

// Reset marks the buffer reusable after its pool was reset.
func (c *CommandBuffer) Reset() {
	c.State = CommandBufferReady
}
