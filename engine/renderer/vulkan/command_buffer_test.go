package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBufferBeginInfo(t *testing.T) {
	primary := commandBufferBeginInfo(vk.CommandBufferUsageOneTimeSubmitBit, nil)
	assert.Equal(t, vk.StructureTypeCommandBufferBeginInfo, primary.SType)
	assert.Equal(t, vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit), primary.Flags)
	assert.Empty(t, primary.PInheritanceInfo)

	inheritance := vk.CommandBufferInheritanceInfo{
		SType:   vk.StructureTypeCommandBufferInheritanceInfo,
		Subpass: 0,
	}
	secondary := commandBufferBeginInfo(vk.CommandBufferUsageRenderPassContinueBit, &inheritance)
	require.Len(t, secondary.PInheritanceInfo, 1)
	assert.Equal(t, inheritance, secondary.PInheritanceInfo[0])
}

func TestCommandBufferBeginRequiresReady(t *testing.T) {
	c := &CommandBuffer{State: CommandBufferRecording}
	assert.ErrorIs(t, c.Begin(vk.CommandBufferUsageOneTimeSubmitBit, nil), core.ErrProtocol)
}
