package loaders

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/dragonfire/engine/core"
)

type ShaderLoader struct{}

// Load reads a compiled SPIR-V module. The bytes are only checked for
// being a whole number of words; the backend reflects on them.
func (sl *ShaderLoader) Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, openError(core.ResourceKindShader, path, err)
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, decodeError(core.ResourceKindShader, path, fmt.Errorf("size %d is not a multiple of 4", len(data)))
	}
	return data, nil
}
