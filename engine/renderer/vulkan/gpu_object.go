package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// GpuObject is a cpu visible buffer holding exactly one T. The memory is
// coherent, writes need no flush. There is no locking: the owner writes
// only while the gpu is not reading.
type GpuObject[T any] struct {
	buffer *Buffer
	view   *T
}

func NewGpuObject[T any](alloc *Allocator, usage vk.BufferUsageFlags) (*GpuObject[T], error) {
	var zero T
	buf, err := alloc.CreateBuffer(uint64(unsafe.Sizeof(zero)), usage, true)
	if err != nil {
		return nil, err
	}
	return &GpuObject[T]{
		buffer: buf,
		view:   (*T)(buf.Mapped()),
	}, nil
}

// Get returns the typed view over the mapping. It is invalid after Destroy.
func (o *GpuObject[T]) Get() *T {
	return o.view
}

func (o *GpuObject[T]) Set(v T) {
	*o.view = v
}

func (o *GpuObject[T]) Handle() vk.Buffer {
	return o.buffer.Handle
}

func (o *GpuObject[T]) Size() uint64 {
	return o.buffer.Size
}

func (o *GpuObject[T]) Destroy() {
	o.view = nil
	o.buffer.Destroy()
}
