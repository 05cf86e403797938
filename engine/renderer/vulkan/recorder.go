package vulkan

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// recorder is the secondary command buffer of one worker in one frame.
// It has its own pool, so workers never share a pool.
type recorder struct {
	ctx  *VulkanContext
	pool vk.CommandPool
	cmd  *CommandBuffer

	inheritance vk.CommandBufferInheritanceInfo
	extent      vk.Extent2D
	globalSet   vk.DescriptorSet

	layout vk.PipelineLayout
	// draws are dropped until a valid mesh and material are bound again
	skipMesh     bool
	skipMaterial bool
}

var _ renderer.CommandRecorder = (*recorder)(nil)

func newRecorder(ctx *VulkanContext, family uint32) (*recorder, error) {
	pool, err := NewCommandPool(ctx, family, vk.CommandPoolCreateTransientBit)
	if err != nil {
		return nil, err
	}
	cmd, err := AllocateCommandBuffer(ctx, pool, false)
	if err != nil {
		vk.DestroyCommandPool(ctx.Device.LogicalDevice, pool, ctx.Allocator)
		return nil, err
	}
	return &recorder{ctx: ctx, pool: pool, cmd: cmd}, nil
}

// prepare points the recorder at the pass of the current frame.
func (r *recorder) prepare(rp *RenderPass, framebuffer vk.Framebuffer, extent vk.Extent2D, globalSet vk.DescriptorSet) {
	r.inheritance = vk.CommandBufferInheritanceInfo{
		SType:       vk.StructureTypeCommandBufferInheritanceInfo,
		RenderPass:  rp.Handle,
		Subpass:     0,
		Framebuffer: framebuffer,
	}
	r.extent = extent
	r.globalSet = globalSet
	r.layout = vk.NullPipelineLayout
}

func (r *recorder) reset() error {
	if res := vk.ResetCommandPool(r.ctx.Device.LogicalDevice, r.pool, 0); res != vk.Success {
		return resultError("vkResetCommandPool", res)
	}
	r.cmd.Reset()
	return nil
}

func (r *recorder) Begin() error {
	flags := vk.CommandBufferUsageOneTimeSubmitBit | vk.CommandBufferUsageRenderPassContinueBit
	if err := r.cmd.Begin(flags, &r.inheritance); err != nil {
		return err
	}
	vk.CmdSetViewport(r.cmd.Handle, 0, 1, []vk.Viewport{fullViewport(r.extent)})
	vk.CmdSetScissor(r.cmd.Handle, 0, 1, []vk.Rect2D{fullScissor(r.extent)})
	r.skipMesh = true
	r.skipMaterial = true
	return nil
}

func (r *recorder) End() error {
	return r.cmd.End()
}

func (r *recorder) BindMesh(mesh *metadata.Mesh) {
	m, ok := mesh.InternalData.(*Mesh)
	if !ok || m.vertices == nil {
		core.LogError("mesh %d (%s) has no gpu buffers, its draws are skipped", mesh.ID, mesh.Name)
		r.skipMesh = true
		return
	}
	m.Bind(r.cmd.Handle)
	r.skipMesh = false
}

func (r *recorder) BindMaterial(material *metadata.Material) {
	m, ok := material.InternalData.(*Material)
	if !ok || m.Pipeline == nil {
		core.LogError("material %d (%s) has no pipeline, its draws are skipped", material.ID, material.Name)
		r.skipMaterial = true
		return
	}
	m.Bind(r.cmd.Handle, r.globalSet)
	r.layout = m.Layout()
	r.skipMaterial = false
}

func (r *recorder) PushTransform(transform mgl32.Mat4) {
	if r.skipMesh || r.skipMaterial {
		return
	}
	vk.CmdPushConstants(r.cmd.Handle, r.layout, vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		0, pushConstantSize, unsafe.Pointer(&transform[0]))
}

func (r *recorder) DrawIndexed(indexCount uint32) {
	if r.skipMesh || r.skipMaterial {
		return
	}
	vk.CmdDrawIndexed(r.cmd.Handle, indexCount, 1, 0, 0, 0)
}

func (r *recorder) destroy() {
	if r.pool == vk.NullCommandPool {
		return
	}
	r.cmd.Free(r.ctx, r.pool)
	vk.DestroyCommandPool(r.ctx.Device.LogicalDevice, r.pool, r.ctx.Allocator)
	r.pool = vk.NullCommandPool
}
