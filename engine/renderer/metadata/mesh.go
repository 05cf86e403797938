package metadata

/**
 * @brief A mesh uploaded to the GPU. Only the counts are kept on
 * the CPU side.
 */
type Mesh struct {
	/** @brief Unique id, never reused. Used to skip redundant binds. */
	ID          uint64
	Name        string
	VertexCount uint32
	IndexCount  uint32
	/** @brief Backend specific buffers. */
	InternalData interface{}
}
