package vulkan

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

const (
	spirvMagic      uint32 = 0x07230203
	spirvHeaderSize        = 5
	opEntryPoint    uint32 = 15
)

var executionModelStages = map[uint32]vk.ShaderStageFlagBits{
	0: vk.ShaderStageVertexBit,
	1: vk.ShaderStageTessellationControlBit,
	2: vk.ShaderStageTessellationEvaluationBit,
	3: vk.ShaderStageGeometryBit,
	4: vk.ShaderStageFragmentBit,
	5: vk.ShaderStageComputeBit,
}

// spirvWords decodes a module in either byte order.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of 4", core.ErrShaderReflect, len(code))
	}
	if len(code) < spirvHeaderSize*4 {
		return nil, fmt.Errorf("%w: truncated header", core.ErrShaderReflect)
	}
	words := bytesToCode(code)
	switch words[0] {
	case spirvMagic:
	case bits.ReverseBytes32(spirvMagic):
		for i := range words {
			words[i] = bits.ReverseBytes32(words[i])
		}
	default:
		return nil, fmt.Errorf("%w: bad magic %#08x", core.ErrShaderReflect, words[0])
	}
	return words, nil
}

// literalString reads a nul terminated string packed little end first
// into words.
func literalString(words []uint32) (string, bool) {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for i := 0; i < 4; i++ {
			c := byte(w >> (8 * i))
			if c == 0 {
				return string(buf), true
			}
			buf = append(buf, c)
		}
	}
	return "", false
}

// ReflectStage returns the stage and entry point name of the first
// OpEntryPoint of a SPIR-V module.
func ReflectStage(code []byte) (vk.ShaderStageFlagBits, string, error) {
	words, err := spirvWords(code)
	if err != nil {
		return 0, "", err
	}

	for pos := spirvHeaderSize; pos < len(words); {
		count := int(words[pos] >> 16)
		opcode := words[pos] & 0xFFFF
		if count == 0 || pos+count > len(words) {
			return 0, "", fmt.Errorf("%w: malformed instruction at word %d", core.ErrShaderReflect, pos)
		}
		if opcode == opEntryPoint {
			if count < 4 {
				return 0, "", fmt.Errorf("%w: short OpEntryPoint", core.ErrShaderReflect)
			}
			model := words[pos+1]
			stage, ok := executionModelStages[model]
			if !ok {
				return 0, "", fmt.Errorf("%w: unsupported execution model %d", core.ErrShaderReflect, model)
			}
			name, ok := literalString(words[pos+3 : pos+count])
			if !ok {
				return 0, "", fmt.Errorf("%w: unterminated entry point name", core.ErrShaderReflect)
			}
			return stage, name, nil
		}
		pos += count
	}
	return 0, "", fmt.Errorf("%w: no entry point", core.ErrShaderReflect)
}

func bytesToCode(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words
}

type shaderStage struct {
	module     vk.ShaderModule
	stage      vk.ShaderStageFlagBits
	entryPoint string
}

// shaderModuleCreateInfo takes the size in bytes, the code in words.
func shaderModuleCreateInfo(code []byte) vk.ShaderModuleCreateInfo {
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    bytesToCode(code),
	}
}

func createShaderModule(ctx *VulkanContext, code []byte) (shaderStage, error) {
	stage, entry, err := ReflectStage(code)
	if err != nil {
		return shaderStage{}, err
	}
	createInfo := shaderModuleCreateInfo(code)
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &module); res != vk.Success {
		return shaderStage{}, resultError("vkCreateShaderModule", res)
	}
	return shaderStage{module: module, stage: stage, entryPoint: entry}, nil
}
