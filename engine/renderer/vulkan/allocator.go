package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

// memoryDevice is the subset of device calls the allocator makes.
type memoryDevice interface {
	createBuffer(size uint64, usage vk.BufferUsageFlags) (vk.Buffer, vk.MemoryRequirements, error)
	createImage(info ImageInfo) (vk.Image, vk.MemoryRequirements, error)
	allocate(size vk.DeviceSize, memoryType uint32) (vk.DeviceMemory, error)
	bindBuffer(buffer vk.Buffer, memory vk.DeviceMemory) error
	bindImage(image vk.Image, memory vk.DeviceMemory) error
	mapMemory(memory vk.DeviceMemory, size uint64) (unsafe.Pointer, error)
	unmapMemory(memory vk.DeviceMemory)
	destroyBuffer(buffer vk.Buffer)
	destroyImage(image vk.Image)
	free(memory vk.DeviceMemory)
}

// Allocator creates memory backed buffers and images. Every issued
// resource holds a reference, the owner holds the first one.
type Allocator struct {
	device memoryDevice
	memory vk.PhysicalDeviceMemoryProperties

	mu        sync.Mutex
	refs      int
	destroyed bool
}

type ImageInfo struct {
	Width, Height uint32
	Format        vk.Format
	Usage         vk.ImageUsageFlags
	Tiling        vk.ImageTiling
}

type Buffer struct {
	alloc *Allocator

	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	mapped unsafe.Pointer

	destroyed bool
}

type Image struct {
	alloc *Allocator

	Handle vk.Image
	Memory vk.DeviceMemory
	Width  uint32
	Height uint32
	Format vk.Format

	destroyed bool
}

func NewAllocator(device vk.Device, memory vk.PhysicalDeviceMemoryProperties) *Allocator {
	return newAllocator(&vkMemoryDevice{device: device}, memory)
}

func newAllocator(device memoryDevice, memory vk.PhysicalDeviceMemoryProperties) *Allocator {
	return &Allocator{device: device, memory: memory, refs: 1}
}

func (a *Allocator) Retain() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return core.ErrAllocatorDestroyed
	}
	a.refs++
	return nil
}

func (a *Allocator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs > 0 {
		a.refs--
	}
}

func (a *Allocator) Refs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refs
}

// Destroy drops the owner reference. It fails while any buffer or image is
// alive.
func (a *Allocator) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return core.ErrAllocatorDestroyed
	}
	if a.refs > 1 {
		return fmt.Errorf("%w: %d resources outstanding", core.ErrAllocatorInUse, a.refs-1)
	}
	a.refs = 0
	a.destroyed = true
	return nil
}

// findMemoryType returns the first memory type allowed by typeBits that
// has all of flags.
func findMemoryType(memory vk.PhysicalDeviceMemoryProperties, typeBits uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < memory.MemoryTypeCount && i < vk.MaxMemoryTypes; i++ {
		memory.MemoryTypes[i].Deref()
		if typeBits&(1<<i) != 0 && memory.MemoryTypes[i].PropertyFlags&flags == flags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: bits %#x, flags %#x", core.ErrNoMemoryType, typeBits, uint32(flags))
}

func memoryFlags(cpuVisible bool) vk.MemoryPropertyFlags {
	if cpuVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// CreateBuffer creates a buffer with its own memory. Cpu visible buffers
// are coherent and stay mapped until destroyed.
func (a *Allocator) CreateBuffer(size uint64, usage vk.BufferUsageFlags, cpuVisible bool) (*Buffer, error) {
	if err := a.Retain(); err != nil {
		return nil, err
	}
	buf := &Buffer{alloc: a, Size: size}

	handle, reqs, err := a.device.createBuffer(size, usage)
	if err != nil {
		a.release()
		return nil, err
	}
	buf.Handle = handle

	memoryType, err := findMemoryType(a.memory, reqs.MemoryTypeBits, memoryFlags(cpuVisible))
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	if buf.Memory, err = a.device.allocate(reqs.Size, memoryType); err != nil {
		buf.Destroy()
		return nil, err
	}
	if err := a.device.bindBuffer(buf.Handle, buf.Memory); err != nil {
		buf.Destroy()
		return nil, err
	}
	if cpuVisible {
		if buf.mapped, err = a.device.mapMemory(buf.Memory, size); err != nil {
			buf.Destroy()
			return nil, err
		}
	}
	return buf, nil
}

// CreateImage creates a device local 2D image with its own memory.
func (a *Allocator) CreateImage(info ImageInfo) (*Image, error) {
	if err := a.Retain(); err != nil {
		return nil, err
	}
	img := &Image{alloc: a, Width: info.Width, Height: info.Height, Format: info.Format}

	handle, reqs, err := a.device.createImage(info)
	if err != nil {
		a.release()
		return nil, err
	}
	img.Handle = handle

	memoryType, err := findMemoryType(a.memory, reqs.MemoryTypeBits, memoryFlags(false))
	if err != nil {
		img.Destroy()
		return nil, err
	}
	if img.Memory, err = a.device.allocate(reqs.Size, memoryType); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := a.device.bindImage(img.Handle, img.Memory); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// Mapped returns the persistent mapping, nil for device local buffers.
func (b *Buffer) Mapped() unsafe.Pointer {
	return b.mapped
}

// Write copies data into a mapped buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.mapped == nil {
		return fmt.Errorf("buffer is not cpu visible")
	}
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.Size)
	}
	dst := unsafe.Slice((*byte)(unsafe.Add(b.mapped, offset)), len(data))
	copy(dst, data)
	return nil
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	dev := b.alloc.device
	if b.mapped != nil {
		dev.unmapMemory(b.Memory)
		b.mapped = nil
	}
	if b.Handle != vk.NullBuffer {
		dev.destroyBuffer(b.Handle)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		dev.free(b.Memory)
		b.Memory = vk.NullDeviceMemory
	}
	b.alloc.release()
}

func (i *Image) Destroy() {
	if i.destroyed {
		return
	}
	i.destroyed = true
	dev := i.alloc.device
	if i.Handle != vk.NullImage {
		dev.destroyImage(i.Handle)
		i.Handle = vk.NullImage
	}
	if i.Memory != vk.NullDeviceMemory {
		dev.free(i.Memory)
		i.Memory = vk.NullDeviceMemory
	}
	i.alloc.release()
}

type vkMemoryDevice struct {
	device vk.Device
}

func (d *vkMemoryDevice) createBuffer(size uint64, usage vk.BufferUsageFlags) (vk.Buffer, vk.MemoryRequirements, error) {
	var buffer vk.Buffer
	var reqs vk.MemoryRequirements
	res := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if res != vk.Success {
		return vk.NullBuffer, reqs, resultError("vkCreateBuffer", res)
	}
	vk.GetBufferMemoryRequirements(d.device, buffer, &reqs)
	reqs.Deref()
	return buffer, reqs, nil
}

func (d *vkMemoryDevice) createImage(info ImageInfo) (vk.Image, vk.MemoryRequirements, error) {
	var image vk.Image
	var reqs vk.MemoryRequirements
	res := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    info.Format,
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        info.Tiling,
		Usage:         info.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if res != vk.Success {
		return vk.NullImage, reqs, resultError("vkCreateImage", res)
	}
	vk.GetImageMemoryRequirements(d.device, image, &reqs)
	reqs.Deref()
	return image, reqs, nil
}

func (d *vkMemoryDevice) allocate(size vk.DeviceSize, memoryType uint32) (vk.DeviceMemory, error) {
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	}, nil, &memory)
	if res != vk.Success {
		return vk.NullDeviceMemory, resultError("vkAllocateMemory", res)
	}
	return memory, nil
}

func (d *vkMemoryDevice) bindBuffer(buffer vk.Buffer, memory vk.DeviceMemory) error {
	if res := vk.BindBufferMemory(d.device, buffer, memory, 0); res != vk.Success {
		return resultError("vkBindBufferMemory", res)
	}
	return nil
}

func (d *vkMemoryDevice) bindImage(image vk.Image, memory vk.DeviceMemory) error {
	if res := vk.BindImageMemory(d.device, image, memory, 0); res != vk.Success {
		return resultError("vkBindImageMemory", res)
	}
	return nil
}

func (d *vkMemoryDevice) mapMemory(memory vk.DeviceMemory, size uint64) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.device, memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		return nil, resultError("vkMapMemory", res)
	}
	return ptr, nil
}

func (d *vkMemoryDevice) unmapMemory(memory vk.DeviceMemory) {
	vk.UnmapMemory(d.device, memory)
}

func (d *vkMemoryDevice) destroyBuffer(buffer vk.Buffer) {
	vk.DestroyBuffer(d.device, buffer, nil)
}

func (d *vkMemoryDevice) destroyImage(image vk.Image) {
	vk.DestroyImage(d.device, image, nil)
}

func (d *vkMemoryDevice) free(memory vk.DeviceMemory) {
	vk.FreeMemory(d.device, memory, nil)
}
