package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// pushConstantSize holds one mat4 model transform.
const pushConstantSize = 64

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type Pipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	Layout vk.PipelineLayout
}

type reflectedStage struct {
	code       []byte
	stage      vk.ShaderStageFlagBits
	entryPoint string
}

// reflectStages finds the stage of every blob. A graphics pipeline needs
// a vertex stage and at most one blob per stage.
func reflectStages(blobs [][]byte) ([]reflectedStage, error) {
	out := make([]reflectedStage, 0, len(blobs))
	seen := make(map[vk.ShaderStageFlagBits]bool, len(blobs))
	for i, code := range blobs {
		stage, entry, err := ReflectStage(code)
		if err != nil {
			return nil, fmt.Errorf("%w: shader %d: %w", core.ErrPipelineCreate, i, err)
		}
		if stage == vk.ShaderStageComputeBit {
			return nil, fmt.Errorf("%w: shader %d is a compute shader", core.ErrPipelineCreate, i)
		}
		if seen[stage] {
			return nil, fmt.Errorf("%w: stage %#x given twice", core.ErrPipelineCreate, uint32(stage))
		}
		seen[stage] = true
		out = append(out, reflectedStage{code: code, stage: stage, entryPoint: entry})
	}
	if !seen[vk.ShaderStageVertexBit] {
		return nil, fmt.Errorf("%w: no vertex shader", core.ErrPipelineCreate)
	}
	return out, nil
}

// vertexInput describes metadata.Vertex: position, normal and uv at
// locations 0, 1 and 2 of binding 0.
func vertexInput() (vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	binding := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    metadata.VertexSize,
		InputRate: vk.VertexInputRateVertex,
	}
	attributes := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: metadata.VertexPositionOffset},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: metadata.VertexNormalOffset},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: metadata.VertexUVOffset},
	}
	return binding, attributes
}

func pushConstantRange() vk.PushConstantRange {
	return vk.PushConstantRange{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       pushConstantSize,
	}
}

// CreatePipeline builds the graphics pipeline for a set of SPIR-V blobs.
// Viewport and scissor are dynamic, extent only seeds their initial value.
func CreatePipeline(ctx *VulkanContext, cache *PipelineCache, renderPass *RenderPass, extent vk.Extent2D, shaderBlobs [][]byte, setLayouts []vk.DescriptorSetLayout) (*Pipeline, error) {
	reflected, err := reflectStages(shaderBlobs)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	dev := ctx.Device.LogicalDevice
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(reflected))
	defer func() {
		// modules are not needed once the pipeline exists
		for _, s := range stages {
			vk.DestroyShaderModule(dev, s.Module, ctx.Allocator)
		}
	}()
	for _, r := range reflected {
		module, err := createShaderModule(ctx, r.code)
		if err != nil {
			err = fmt.Errorf("%w: %w", core.ErrPipelineCreate, err)
			core.LogError(err.Error())
			return nil, err
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  module.stage,
			Module: module.module,
			PName:  VulkanSafeString(module.entryPoint),
		})
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{fullViewport(extent)},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{fullScissor(extent)},
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	binding, attributes := vertexInput()
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{binding},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushConstantRange()},
	}

	cacheHandle, err := cache.Handle()
	if err != nil {
		// a pipeline can still be built without the cache
		core.LogWarn("creating pipeline without cache: %s", err)
		cacheHandle = vk.NullPipelineCache
	}

	out := &Pipeline{}
	err = ctx.LockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreatePipelineLayout(dev, &layoutInfo, ctx.Allocator, &out.Layout); res != vk.Success {
			return resultError("vkCreatePipelineLayout", res, core.ErrPipelineCreate)
		}

		createInfo := vk.GraphicsPipelineCreateInfo{
			SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
			StageCount:          uint32(len(stages)),
			PStages:             stages,
			PVertexInputState:   &vertexInputInfo,
			PInputAssemblyState: &inputAssembly,
			PViewportState:      &viewportState,
			PRasterizationState: &rasterizer,
			PMultisampleState:   &multisampling,
			PDepthStencilState:  &depthStencil,
			PColorBlendState:    &colorBlend,
			PDynamicState:       &dynamicState,
			Layout:              out.Layout,
			RenderPass:          renderPass.Handle,
			Subpass:             0,
			BasePipelineHandle:  vk.NullPipeline,
			BasePipelineIndex:   -1,
		}
		pipelines := make([]vk.Pipeline, 1)
		if res := vk.CreateGraphicsPipelines(dev, cacheHandle, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, ctx.Allocator, pipelines); res != vk.Success {
			vk.DestroyPipelineLayout(dev, out.Layout, ctx.Allocator)
			out.Layout = vk.NullPipelineLayout
			return resultError("vkCreateGraphicsPipelines", res, core.ErrPipelineCreate)
		}
		out.Handle = pipelines[0]
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	cache.recordCreated()

	core.LogDebug("Graphics pipeline created with %d stages", len(stages))
	return out, nil
}

func fullViewport(extent vk.Extent2D) vk.Viewport {
	return vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func fullScissor(extent vk.Extent2D) vk.Rect2D {
	return vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: extent}
}

func (p *Pipeline) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, p.Handle)
}

func (p *Pipeline) Destroy(ctx *VulkanContext) {
	_ = ctx.LockPool.SafeCall(PipelineManagement, func() error {
		if p.Handle != vk.NullPipeline {
			vk.DestroyPipeline(ctx.Device.LogicalDevice, p.Handle, ctx.Allocator)
			p.Handle = vk.NullPipeline
		}
		if p.Layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(ctx.Device.LogicalDevice, p.Layout, ctx.Allocator)
			p.Layout = vk.NullPipelineLayout
		}
		return nil
	})
}
