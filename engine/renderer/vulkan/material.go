package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

// Material is a pipeline plus the texture its descriptor set samples.
type Material struct {
	ctx         *VulkanContext
	descriptors *Descriptors

	Name     string
	Pipeline *Pipeline
	// Texture is nil when the material samples the default texture.
	Texture *Texture
	set     vk.DescriptorSet
}

func NewMaterial(ctx *VulkanContext, descriptors *Descriptors, name string, pipeline *Pipeline, texture, fallback *Texture) (*Material, error) {
	sampled := texture
	if sampled == nil {
		sampled = fallback
	}
	set, err := descriptors.AllocateMaterial(sampled)
	if err != nil {
		core.LogError("failed to allocate descriptor set for material %s: %s", name, err)
		return nil, err
	}
	return &Material{
		ctx:         ctx,
		descriptors: descriptors,
		Name:        name,
		Pipeline:    pipeline,
		Texture:     texture,
		set:         set,
	}, nil
}

// Bind binds the pipeline, the global set of the frame and the material
// set.
func (m *Material) Bind(cmd vk.CommandBuffer, globalSet vk.DescriptorSet) {
	m.Pipeline.Bind(cmd)
	sets := []vk.DescriptorSet{globalSet, m.set}
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, m.Pipeline.Layout,
		globalSetIndex, uint32(len(sets)), sets, 0, nil)
}

func (m *Material) Layout() vk.PipelineLayout {
	return m.Pipeline.Layout
}

// Destroy waits for the device, then releases the descriptor set, the
// pipeline and the owned texture.
func (m *Material) Destroy() {
	if err := m.ctx.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle before destroying material %s: %s", m.Name, err)
	}
	if m.set != nil {
		m.descriptors.FreeMaterial(m.set)
		m.set = nil
	}
	if m.Pipeline != nil {
		m.Pipeline.Destroy(m.ctx)
		m.Pipeline = nil
	}
	if m.Texture != nil {
		m.Texture.Destroy()
		m.Texture = nil
	}
	core.LogDebug("material %s destroyed", m.Name)
}
