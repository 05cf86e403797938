package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestPoolSizes(t *testing.T) {
	sizes := poolSizes(materialLayoutBindings(), maxMaterials)
	assert.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: maxMaterials},
	}, sizes)

	mixed := append(globalLayoutBindings(), vk.DescriptorSetLayoutBinding{
		Binding:         1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 2,
	}, vk.DescriptorSetLayoutBinding{
		Binding:         2,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
	})
	assert.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 6},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 2},
	}, poolSizes(mixed, 2))
}

func TestLayoutBindingStages(t *testing.T) {
	global := globalLayoutBindings()
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit), global[0].StageFlags)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, global[0].DescriptorType)

	material := materialLayoutBindings()
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), material[0].StageFlags)
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, material[0].DescriptorType)
}
