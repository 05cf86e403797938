package vulkan

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spirvModule assembles a minimal module: header, OpCapability Shader and
// one OpEntryPoint.
func spirvModule(model uint32, name string, order binary.ByteOrder) []byte {
	nameWords := make([]uint32, len(name)/4+1)
	for i := 0; i < len(name); i++ {
		nameWords[i/4] |= uint32(name[i]) << (8 * (i % 4))
	}

	words := []uint32{spirvMagic, 0x00010000, 0, 16, 0}
	words = append(words, 2<<16|17, 1) // OpCapability Shader
	entry := []uint32{uint32(3+len(nameWords)+1)<<16 | opEntryPoint, model, 4}
	entry = append(entry, nameWords...)
	entry = append(entry, 7) // interface id
	words = append(words, entry...)

	out := make([]byte, len(words)*4)
	for i, w := range words {
		order.PutUint32(out[i*4:], w)
	}
	return out
}

func TestReflectStage(t *testing.T) {
	tests := []struct {
		model uint32
		want  vk.ShaderStageFlagBits
	}{
		{0, vk.ShaderStageVertexBit},
		{1, vk.ShaderStageTessellationControlBit},
		{2, vk.ShaderStageTessellationEvaluationBit},
		{3, vk.ShaderStageGeometryBit},
		{4, vk.ShaderStageFragmentBit},
		{5, vk.ShaderStageComputeBit},
	}
	for _, tt := range tests {
		stage, entry, err := ReflectStage(spirvModule(tt.model, "main", binary.LittleEndian))
		require.NoError(t, err)
		assert.Equal(t, tt.want, stage)
		assert.Equal(t, "main", entry)
	}
}

func TestReflectStageBigEndian(t *testing.T) {
	stage, entry, err := ReflectStage(spirvModule(4, "shade_pixels", binary.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, vk.ShaderStageFragmentBit, stage)
	assert.Equal(t, "shade_pixels", entry)
}

func TestReflectStageErrors(t *testing.T) {
	valid := spirvModule(0, "main", binary.LittleEndian)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0xFF

	noEntry := append([]byte(nil), valid[:7*4]...)

	truncated := append([]byte(nil), valid[:len(valid)-4]...)

	tests := map[string][]byte{
		"empty":          nil,
		"unaligned":      valid[:len(valid)-1],
		"short header":   valid[:8],
		"bad magic":      badMagic,
		"no entry point": noEntry,
		"truncated":      truncated,
		"unknown model":  spirvModule(42, "main", binary.LittleEndian),
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ReflectStage(code)
			assert.ErrorIs(t, err, core.ErrShaderReflect)
		})
	}
}

func TestBytesToCode(t *testing.T) {
	assert.Equal(t, []uint32{0x07230203, 1}, bytesToCode([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0}))
}

func TestShaderModuleCreateInfo(t *testing.T) {
	code := []byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0}
	info := shaderModuleCreateInfo(code)
	assert.Equal(t, uint64(8), info.CodeSize)
	assert.Len(t, info.PCode, 2)
}
