package vulkan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

const (
	pipelineCacheFile = "pipeline_cache"

	cacheHeaderSize       = 16 + int(vk.UuidSize)
	cacheHeaderVersionOne = 1
)

var errCacheMismatch = errors.New("pipeline cache does not match the device")

// cacheHeader is the VK_PIPELINE_CACHE_HEADER_VERSION_ONE prefix of a
// pipeline cache blob.
type cacheHeader struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

// inspectCacheHeader parses the blob header and checks that it was written
// by the same driver and device.
func inspectCacheHeader(data []byte, props vk.PhysicalDeviceProperties) (cacheHeader, error) {
	var h cacheHeader
	if len(data) < cacheHeaderSize {
		return h, fmt.Errorf("%w: %d bytes is shorter than the header", errCacheMismatch, len(data))
	}
	h.Length = binary.LittleEndian.Uint32(data[0:])
	h.Version = binary.LittleEndian.Uint32(data[4:])
	h.VendorID = binary.LittleEndian.Uint32(data[8:])
	h.DeviceID = binary.LittleEndian.Uint32(data[12:])
	id, err := uuid.FromBytes(data[16:cacheHeaderSize])
	if err != nil {
		return h, fmt.Errorf("%w: %s", errCacheMismatch, err)
	}
	h.UUID = id

	deviceUUID, err := uuid.FromBytes(props.PipelineCacheUUID[:])
	if err != nil {
		return h, fmt.Errorf("%w: %s", errCacheMismatch, err)
	}

	switch {
	case int(h.Length) < cacheHeaderSize || int(h.Length) > len(data):
		return h, fmt.Errorf("%w: header length %d", errCacheMismatch, h.Length)
	case h.Version != cacheHeaderVersionOne:
		return h, fmt.Errorf("%w: header version %d", errCacheMismatch, h.Version)
	case h.VendorID != props.VendorID || h.DeviceID != props.DeviceID:
		return h, fmt.Errorf("%w: written for %#x:%#x", errCacheMismatch, h.VendorID, h.DeviceID)
	case h.UUID != deviceUUID:
		return h, fmt.Errorf("%w: uuid %s, device has %s", errCacheMismatch, h.UUID, deviceUUID)
	}
	return h, nil
}

// readCacheFile returns the stored blob, or nil when it is missing,
// unreadable or written for another device.
func readCacheFile(path string, props vk.PhysicalDeviceProperties) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			core.LogWarn("failed to read pipeline cache %s: %s", path, err)
		}
		return nil
	}
	if _, err := inspectCacheHeader(data, props); err != nil {
		core.LogWarn("ignoring pipeline cache %s: %s", path, err)
		return nil
	}
	return data
}

// writeCacheFile replaces path atomically.
func writeCacheFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, pipelineCacheFile+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type PipelineCacheStats struct {
	Created uint64
	Warm    bool
}

// PipelineCache is the driver cache shared by every pipeline. It is created
// on first use and persisted in the cache directory.
type PipelineCache struct {
	ctx  *VulkanContext
	path string

	once    sync.Once
	handle  vk.PipelineCache
	initErr error
	warm    bool

	created atomic.Uint64
}

func NewPipelineCache(ctx *VulkanContext, cacheDir string) *PipelineCache {
	return &PipelineCache{
		ctx:  ctx,
		path: filepath.Join(cacheDir, pipelineCacheFile),
	}
}

// Handle returns the cache, creating it the first time.
func (c *PipelineCache) Handle() (vk.PipelineCache, error) {
	c.once.Do(c.init)
	return c.handle, c.initErr
}

func (c *PipelineCache) init() {
	data := readCacheFile(c.path, c.ctx.Device.Properties)
	handle, res := c.create(data)
	if res != vk.Success && len(data) > 0 {
		core.LogWarn("driver rejected pipeline cache %s: %s", c.path, VulkanResultString(res))
		data = nil
		handle, res = c.create(nil)
	}
	if res != vk.Success {
		c.initErr = resultError("vkCreatePipelineCache", res)
		core.LogError(c.initErr.Error())
		return
	}
	c.handle = handle
	c.warm = len(data) > 0
	core.LogDebug("pipeline cache ready, warm: %t", c.warm)
}

func pipelineCacheCreateInfo(data []byte) vk.PipelineCacheCreateInfo {
	createInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if len(data) > 0 {
		createInfo.InitialDataSize = uint64(len(data))
		createInfo.PInitialData = unsafe.Pointer(&data[0])
	}
	return createInfo
}

func (c *PipelineCache) create(data []byte) (vk.PipelineCache, vk.Result) {
	createInfo := pipelineCacheCreateInfo(data)
	var handle vk.PipelineCache
	res := vk.CreatePipelineCache(c.ctx.Device.LogicalDevice, &createInfo, c.ctx.Allocator, &handle)
	return handle, res
}

func (c *PipelineCache) recordCreated() {
	c.created.Add(1)
}

func (c *PipelineCache) Stats() PipelineCacheStats {
	return PipelineCacheStats{Created: c.created.Load(), Warm: c.warm}
}

func (c *PipelineCache) initialized() bool {
	return c.handle != vk.NullPipelineCache
}

// Save writes the driver data to disk. Failures are only logged.
func (c *PipelineCache) Save() {
	if !c.initialized() {
		return
	}
	dev := c.ctx.Device.LogicalDevice

	var size uint64
	if res := vk.GetPipelineCacheData(dev, c.handle, &size, nil); res != vk.Success {
		core.LogWarn("failed to query pipeline cache size: %s", VulkanResultString(res))
		return
	}
	if size == 0 {
		return
	}
	data := make([]byte, size)
	if res := vk.GetPipelineCacheData(dev, c.handle, &size, unsafe.Pointer(&data[0])); res != vk.Success {
		core.LogWarn("failed to read pipeline cache data: %s", VulkanResultString(res))
		return
	}
	if err := writeCacheFile(c.path, data[:size]); err != nil {
		core.LogWarn("failed to save pipeline cache %s: %s", c.path, err)
		return
	}
	core.LogDebug("pipeline cache saved, %d bytes, %d pipelines created", size, c.created.Load())
}

// Destroy saves the cache and releases the handle.
func (c *PipelineCache) Destroy() {
	if !c.initialized() {
		return
	}
	c.Save()
	vk.DestroyPipelineCache(c.ctx.Device.LogicalDevice, c.handle, c.ctx.Allocator)
	c.handle = vk.NullPipelineCache
}
