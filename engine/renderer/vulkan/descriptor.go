package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

const (
	globalSetIndex   = 0
	materialSetIndex = 1

	// maxMaterials bounds the material descriptor pool.
	maxMaterials = 256
)

/**
 * @brief Binding 0 of set 0: the global uniform block, read by the
 * vertex stage.
 */
func globalLayoutBindings() []vk.DescriptorSetLayoutBinding {
	return []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}}
}

/**
 * @brief Binding 0 of set 1: the material texture, sampled by the
 * fragment stage.
 */
func materialLayoutBindings() []vk.DescriptorSetLayoutBinding {
	return []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}}
}

func createSetLayout(ctx *VulkanContext, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &layout); res != vk.Success {
		err := resultError("vkCreateDescriptorSetLayout", res)
		core.LogError(err.Error())
		return vk.NullDescriptorSetLayout, err
	}
	return layout, nil
}

// DescriptorPool wraps a pool whose sets may be allocated and freed from
// several goroutines.
type DescriptorPool struct {
	ctx      *VulkanContext
	Handle   vk.DescriptorPool
	freeable bool
}

// poolSizes returns the pool capacity needed by count sets of bindings.
func poolSizes(bindings []vk.DescriptorSetLayoutBinding, count uint32) []vk.DescriptorPoolSize {
	totals := map[vk.DescriptorType]uint32{}
	var order []vk.DescriptorType
	for _, b := range bindings {
		if _, ok := totals[b.DescriptorType]; !ok {
			order = append(order, b.DescriptorType)
		}
		totals[b.DescriptorType] += b.DescriptorCount * count
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(order))
	for _, t := range order {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: totals[t]})
	}
	return sizes
}

func NewDescriptorPool(ctx *VulkanContext, bindings []vk.DescriptorSetLayoutBinding, maxSets uint32, freeable bool) (*DescriptorPool, error) {
	sizes := poolSizes(bindings, maxSets)
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if freeable {
		createInfo.Flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}
	pool := &DescriptorPool{ctx: ctx, freeable: freeable}
	if res := vk.CreateDescriptorPool(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &pool.Handle); res != vk.Success {
		err := resultError("vkCreateDescriptorPool", res)
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}

func (p *DescriptorPool) Allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	err := p.ctx.LockPool.SafeCall(DescriptorManagement, func() error {
		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p.Handle,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}
		if res := vk.AllocateDescriptorSets(p.ctx.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
			return resultError("vkAllocateDescriptorSets", res)
		}
		return nil
	})
	return set, err
}

func (p *DescriptorPool) Free(set vk.DescriptorSet) {
	if !p.freeable {
		return
	}
	_ = p.ctx.LockPool.SafeCall(DescriptorManagement, func() error {
		vk.FreeDescriptorSets(p.ctx.Device.LogicalDevice, p.Handle, 1, &set)
		return nil
	})
}

func (p *DescriptorPool) Destroy() {
	if p.Handle != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(p.ctx.Device.LogicalDevice, p.Handle, p.ctx.Allocator)
		p.Handle = vk.NullDescriptorPool
	}
}

func writeUniformBuffer(ctx *VulkanContext, set vk.DescriptorSet, buffer vk.Buffer, size uint64) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer,
			Offset: 0,
			Range:  vk.DeviceSize(size),
		}},
	}
	_ = ctx.LockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(ctx.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
}

func writeImageSampler(ctx *VulkanContext, set vk.DescriptorSet, texture *Texture) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     texture.Sampler,
			ImageView:   texture.View,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}
	_ = ctx.LockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(ctx.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
}

// Descriptors holds both set layouts, the per frame global sets and the
// pool material sets come from.
type Descriptors struct {
	ctx *VulkanContext

	GlobalLayout   vk.DescriptorSetLayout
	MaterialLayout vk.DescriptorSetLayout

	globalPool   *DescriptorPool
	materialPool *DescriptorPool
	GlobalSets   [metadata.FramesInFlight]vk.DescriptorSet
}

func NewDescriptors(ctx *VulkanContext, ubos [metadata.FramesInFlight]*GpuObject[metadata.Ubo]) (*Descriptors, error) {
	d := &Descriptors{ctx: ctx}
	var err error
	fail := func(err error) (*Descriptors, error) {
		d.Destroy()
		return nil, fmt.Errorf("failed to create descriptors: %w", err)
	}

	if d.GlobalLayout, err = createSetLayout(ctx, globalLayoutBindings()); err != nil {
		return fail(err)
	}
	if d.MaterialLayout, err = createSetLayout(ctx, materialLayoutBindings()); err != nil {
		return fail(err)
	}
	if d.globalPool, err = NewDescriptorPool(ctx, globalLayoutBindings(), metadata.FramesInFlight, false); err != nil {
		return fail(err)
	}
	if d.materialPool, err = NewDescriptorPool(ctx, materialLayoutBindings(), maxMaterials, true); err != nil {
		return fail(err)
	}
	for i := range d.GlobalSets {
		if d.GlobalSets[i], err = d.globalPool.Allocate(d.GlobalLayout); err != nil {
			return fail(err)
		}
		writeUniformBuffer(ctx, d.GlobalSets[i], ubos[i].Handle(), ubos[i].Size())
	}
	return d, nil
}

// SetLayouts is the pipeline layout order: global set, then material set.
func (d *Descriptors) SetLayouts() []vk.DescriptorSetLayout {
	return []vk.DescriptorSetLayout{d.GlobalLayout, d.MaterialLayout}
}

// AllocateMaterial returns a material set pointing at texture.
func (d *Descriptors) AllocateMaterial(texture *Texture) (vk.DescriptorSet, error) {
	set, err := d.materialPool.Allocate(d.MaterialLayout)
	if err != nil {
		return set, err
	}
	writeImageSampler(d.ctx, set, texture)
	return set, nil
}

// FreeMaterial returns set to the pool. Once the pool is destroyed its
// sets are already gone.
func (d *Descriptors) FreeMaterial(set vk.DescriptorSet) {
	if d.materialPool == nil {
		return
	}
	d.materialPool.Free(set)
}

func (d *Descriptors) Destroy() {
	dev := d.ctx.Device.LogicalDevice
	if d.materialPool != nil {
		d.materialPool.Destroy()
		d.materialPool = nil
	}
	if d.globalPool != nil {
		d.globalPool.Destroy()
		d.globalPool = nil
	}
	if d.MaterialLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(dev, d.MaterialLayout, d.ctx.Allocator)
		d.MaterialLayout = vk.NullDescriptorSetLayout
	}
	if d.GlobalLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(dev, d.GlobalLayout, d.ctx.Allocator)
		d.GlobalLayout = vk.NullDescriptorSetLayout
	}
}
