package metadata

import "path/filepath"

type ResourceType int

/** @brief Asset types known to the engine. */
const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeImage
	ResourceTypeMaterial
	ResourceTypeShader
	ResourceTypeModel
)

func (r ResourceType) String() string {
	switch r {
	case ResourceTypeImage:
		return "image"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeModel:
		return "model"
	default:
		return "none"
	}
}

// ResourceTypeOf classifies a file by its extension.
func ResourceTypeOf(path string) ResourceType {
	switch filepath.Ext(path) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp":
		return ResourceTypeImage
	case ".spv":
		return ResourceTypeShader
	case ".toml":
		return ResourceTypeMaterial
	case ".obj", ".gltf", ".glb":
		return ResourceTypeModel
	default:
		return ResourceTypeNone
	}
}
