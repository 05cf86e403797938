package metadata

/** @brief The name of the material used when none is requested. */
const DefaultMaterialName string = "base"

/**
 * @brief One entry of the materials database.
 */
type MaterialConfig struct {
	Name           string `toml:"-"`
	VertexShader   string `toml:"vertex"`
	FragmentShader string `toml:"fragment"`
	/** @brief Optional texture file, relative to the asset directory. */
	Texture string `toml:"texture"`
}

/**
 * @brief A pipeline plus the optional texture it samples.
 */
type Material struct {
	/** @brief Unique id, never reused. Used to skip redundant binds. */
	ID   uint64
	Name string
	/** @brief Backend specific pipeline and texture. */
	InternalData interface{}
}
