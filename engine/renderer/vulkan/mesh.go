package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// Mesh is geometry in device local memory. Only the counts stay on the
// cpu.
type Mesh struct {
	vertices *Buffer
	indices  *Buffer

	VertexCount uint32
	IndexCount  uint32
}

func validateGeometry(vertices []metadata.Vertex, indices []uint32) error {
	if len(vertices) == 0 || len(indices) == 0 {
		return fmt.Errorf("%w: mesh needs vertices and indices", core.ErrResourceDecode)
	}
	if len(indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices do not form triangles", core.ErrResourceDecode, len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return fmt.Errorf("%w: index %d at %d is out of range for %d vertices", core.ErrResourceDecode, idx, i, len(vertices))
		}
	}
	return nil
}

// geometryBytes views the vertex and index slices as raw bytes.
func geometryBytes(vertices []metadata.Vertex, indices []uint32) ([]byte, []byte) {
	vb := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(metadata.VertexSize))
	ib := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
	return vb, ib
}

// NewMesh uploads the geometry through one staging buffer holding the
// vertex bytes followed by the index bytes.
func NewMesh(up *Uploader, alloc *Allocator, vertices []metadata.Vertex, indices []uint32) (*Mesh, error) {
	if err := validateGeometry(vertices, indices); err != nil {
		return nil, err
	}
	vb, ib := geometryBytes(vertices, indices)
	vertexSize, indexSize := uint64(len(vb)), uint64(len(ib))

	staging, err := alloc.CreateBuffer(vertexSize+indexSize, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), true)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.Write(0, vb); err != nil {
		return nil, err
	}
	if err := staging.Write(vertexSize, ib); err != nil {
		return nil, err
	}

	m := &Mesh{
		VertexCount: uint32(len(vertices)),
		IndexCount:  uint32(len(indices)),
	}
	m.vertices, err = alloc.CreateBuffer(vertexSize, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit), false)
	if err != nil {
		return nil, err
	}
	m.indices, err = alloc.CreateBuffer(indexSize, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit), false)
	if err != nil {
		m.Destroy()
		return nil, err
	}

	err = up.withOneShot(func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, staging.Handle, m.vertices.Handle, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vk.DeviceSize(vertexSize),
		}})
		vk.CmdCopyBuffer(cmd, staging.Handle, m.indices.Handle, 1, []vk.BufferCopy{{
			SrcOffset: vk.DeviceSize(vertexSize),
			DstOffset: 0,
			Size:      vk.DeviceSize(indexSize),
		}})
		return nil
	})
	if err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *Mesh) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindIndexBuffer(cmd, m.indices.Handle, 0, vk.IndexTypeUint32)
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{m.vertices.Handle}, []vk.DeviceSize{0})
}

func (m *Mesh) Destroy() {
	if m.indices != nil {
		m.indices.Destroy()
		m.indices = nil
	}
	if m.vertices != nil {
		m.vertices.Destroy()
		m.vertices = nil
	}
}
