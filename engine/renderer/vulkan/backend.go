package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/dragonfire/engine/assets"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/engine/renderer"
	"github.com/spaghettifunk/dragonfire/engine/renderer/metadata"
)

// AssetSource decodes the files the backend uploads.
type AssetSource interface {
	Model(path string) (*metadata.MeshData, error)
	Material(name string) (*assets.MaterialSource, error)
}

type Options struct {
	AppName string
	// Resolution is the initial swapchain size. Zero uses the window size.
	Resolution [2]uint32
	VSync      bool
	Validation bool
	// Workers must match the number of recording workers of the renderer.
	Workers int
	// CacheDir holds the pipeline cache between runs.
	CacheDir string
}

// Backend renders through Vulkan. Frame slots, the swapchain and every
// size dependent object are used from the goroutine driving the renderer,
// except Present which runs on the presentation goroutine.
type Backend struct {
	window WindowSurface
	assets AssetSource
	opts   Options

	ctx      *VulkanContext
	alloc    *Allocator
	uploader *Uploader
	cache    *PipelineCache

	swapchain    *Swapchain
	depth        *DepthImage
	renderPass   *RenderPass
	framebuffers []vk.Framebuffer
	descriptors  *Descriptors
	frames       [metadata.FramesInFlight]*frame

	defaultTexture *Texture
	materials      *MaterialCache

	ids        core.Identifier
	beginCount atomic.Uint64
	releases   releaseQueue

	mu          sync.Mutex
	meshes      map[uint64]*Mesh
	materialIDs map[*Material]uint64

	closed bool
}

var _ renderer.Backend = (*Backend)(nil)

// New creates the device and every object needed to record frames.
func New(window WindowSurface, source AssetSource, opts Options) (*Backend, error) {
	if opts.Workers <= 0 {
		opts.Workers = renderer.DefaultWorkers()
	}
	if opts.Resolution[0] == 0 || opts.Resolution[1] == 0 {
		w, h := window.FramebufferSize()
		opts.Resolution = [2]uint32{w, h}
	}

	b := &Backend{
		window:      window,
		assets:      source,
		opts:        opts,
		meshes:      make(map[uint64]*Mesh),
		materialIDs: make(map[*Material]uint64),
	}
	b.materials = NewMaterialCache(b.forgetMaterial)

	if err := b.init(); err != nil {
		b.destroy()
		return nil, err
	}
	core.LogInfo("Vulkan backend initialized: %dx%d, %d workers",
		b.swapchain.Extent.Width, b.swapchain.Extent.Height, opts.Workers)
	return b, nil
}

func (b *Backend) init() error {
	var err error
	if b.ctx, err = NewContext(b.window, b.opts.AppName, b.opts.Validation); err != nil {
		return err
	}
	if err = DeviceCreate(b.ctx); err != nil {
		return err
	}
	dev := b.ctx.Device

	b.alloc = NewAllocator(dev.LogicalDevice, dev.Memory)
	if b.uploader, err = NewUploader(b.ctx); err != nil {
		return err
	}
	b.cache = NewPipelineCache(b.ctx, b.opts.CacheDir)

	if b.swapchain, err = NewSwapchain(b.ctx, b.opts.Resolution, b.opts.VSync, nil); err != nil {
		return err
	}
	if b.renderPass, err = NewRenderPass(b.ctx, b.swapchain.Format, dev.DepthFormat); err != nil {
		return err
	}
	if b.depth, err = NewDepthImage(b.ctx, b.alloc, b.swapchain.Extent); err != nil {
		return err
	}
	if b.framebuffers, err = createFramebuffers(b.ctx, b.renderPass, b.swapchain, b.depth); err != nil {
		return err
	}

	var ubos [metadata.FramesInFlight]*GpuObject[metadata.Ubo]
	for i := range ubos {
		if ubos[i], err = NewGpuObject[metadata.Ubo](b.alloc, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)); err != nil {
			for _, u := range ubos[:i] {
				u.Destroy()
			}
			return err
		}
	}
	if b.descriptors, err = NewDescriptors(b.ctx, ubos); err != nil {
		for _, u := range ubos {
			u.Destroy()
		}
		return err
	}
	for i := range b.frames {
		if b.frames[i], err = newFrame(b.ctx, i, b.opts.Workers, ubos[i]); err != nil {
			// newFrame released ubos[i]
			for _, u := range ubos[i+1:] {
				u.Destroy()
			}
			return err
		}
	}

	if b.defaultTexture, err = NewDefaultTexture(b.uploader, b.alloc); err != nil {
		return err
	}
	return nil
}

func (b *Backend) WaitFrame(frame int) error {
	return b.frames[frame].wait()
}

func (b *Backend) AcquireImage(frame int) (bool, error) {
	f := b.frames[frame]
	stale, err := b.swapchain.Next(f.imageAvailable)
	if err != nil {
		core.LogError("failed to acquire swapchain image: %s", err)
		return false, err
	}
	if stale {
		f.staleAcquire = true
	}
	return stale, nil
}

// Recreate rebuilds the swapchain, the depth image and the framebuffers.
// The old ones are retired through the release queue: a frame recorded
// against them may still be waiting for presentation.
func (b *Backend) Recreate(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: window has no area", core.ErrSwapchainStale)
	}
	if err := b.ctx.WaitIdle(); err != nil {
		core.LogError(err.Error())
		return err
	}

	sc, err := b.replaceSwapchain(width, height)
	if err != nil {
		return err
	}
	if sc.Format != b.swapchain.Format {
		core.LogWarn("swapchain format changed from %d to %d", b.swapchain.Format, sc.Format)
	}
	depth, err := NewDepthImage(b.ctx, b.alloc, sc.Extent)
	if err != nil {
		sc.Destroy()
		return err
	}
	framebuffers, err := createFramebuffers(b.ctx, b.renderPass, sc, depth)
	if err != nil {
		depth.Destroy()
		sc.Destroy()
		return err
	}

	oldSwapchain, oldDepth, oldFramebuffers := b.swapchain, b.depth, b.framebuffers
	b.releases.push(b.beginCount.Load(), func() {
		destroyFramebuffers(b.ctx, oldFramebuffers)
		oldDepth.Destroy()
		oldSwapchain.Destroy()
	})
	b.swapchain, b.depth, b.framebuffers = sc, depth, framebuffers

	for _, f := range b.frames {
		if err := f.recreateImageAvailable(); err != nil {
			core.LogError(err.Error())
			return err
		}
	}

	core.LogInfo("swapchain resized to %dx%d", sc.Extent.Width, sc.Extent.Height)
	return nil
}

// newSwapchain is replaced in tests.
var newSwapchain = NewSwapchain

// replaceSwapchain creates the successor of the current swapchain. The old
// one is passed as oldSwapchain, which must be externally synchronized with
// vkQueuePresentKHR, so creation holds the present queue lock.
func (b *Backend) replaceSwapchain(width, height uint32) (*Swapchain, error) {
	var sc *Swapchain
	err := b.ctx.LockPool.SafeQueueCall(b.ctx.Device.PresentQueueIndex, func() error {
		var err error
		sc, err = newSwapchain(b.ctx, [2]uint32{width, height}, b.opts.VSync, b.swapchain)
		return err
	})
	return sc, err
}

func (b *Backend) BeginFrame(frame int, ubo metadata.Ubo) error {
	b.releases.collect(b.beginCount.Add(1) - 1)

	f := b.frames[frame]
	if err := f.reset(); err != nil {
		core.LogError("failed to reset frame %d: %s", frame, err)
		return err
	}
	f.ubo.Set(ubo)

	extent := b.swapchain.Extent
	framebuffer := b.framebuffers[b.swapchain.CurrentImageIndex]
	for _, r := range f.recorders {
		r.prepare(b.renderPass, framebuffer, extent, b.descriptors.GlobalSets[frame])
	}

	if err := f.primary.Begin(vk.CommandBufferUsageOneTimeSubmitBit, nil); err != nil {
		core.LogError("failed to begin frame %d: %s", frame, err)
		return err
	}
	b.renderPass.Begin(f.primary.Handle, framebuffer, extent)
	return nil
}

func (b *Backend) Recorder(frame, worker int) renderer.CommandRecorder {
	return b.frames[frame].recorders[worker]
}

func (b *Backend) EndFrame(frame int) (metadata.PresentInfo, error) {
	f := b.frames[frame]
	secondaries := make([]vk.CommandBuffer, len(f.recorders))
	for i, r := range f.recorders {
		secondaries[i] = r.cmd.Handle
	}
	vk.CmdExecuteCommands(f.primary.Handle, uint32(len(secondaries)), secondaries)
	b.renderPass.End(f.primary.Handle)
	if err := f.primary.End(); err != nil {
		core.LogError("failed to end frame %d: %s", frame, err)
		return metadata.PresentInfo{}, err
	}
	return metadata.PresentInfo{
		Frame:        frame,
		ImageIndex:   b.swapchain.CurrentImageIndex,
		InternalData: &submission{frame: f, swapchain: b.swapchain},
	}, nil
}

// Present submits the primary buffer of the frame and presents its image.
// Submission and presentation take their queue locks one after the other.
func (b *Backend) Present(info metadata.PresentInfo) (bool, error) {
	sub, ok := info.InternalData.(*submission)
	if !ok {
		return false, fmt.Errorf("%w: frame %d was not recorded by this backend", core.ErrProtocol, info.Frame)
	}
	f := sub.frame
	dev := b.ctx.Device

	err := b.ctx.LockPool.SafeQueueCall(dev.GraphicsQueueIndex, func() error {
		submitInfo := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   1,
			PWaitSemaphores:      []vk.Semaphore{f.imageAvailable},
			PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{f.primary.Handle},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{f.renderDone},
		}
		if res := vk.QueueSubmit(dev.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, f.fence); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		f.primary.UpdateSubmitted()
		return nil
	})
	if err != nil {
		return false, err
	}

	var stale bool
	err = b.ctx.LockPool.SafeQueueCall(dev.PresentQueueIndex, func() error {
		var err error
		stale, err = sub.swapchain.present(dev.PresentQueue, f.renderDone, info.ImageIndex)
		return err
	})
	return stale, err
}

func (b *Backend) WaitIdle() error {
	return b.ctx.WaitIdle()
}

// LoadMesh decodes a model file and uploads it.
func (b *Backend) LoadMesh(path string) (*metadata.Mesh, error) {
	data, err := b.assets.Model(path)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	data.Name = path
	return b.UploadMesh(data)
}

func (b *Backend) UploadMesh(data *metadata.MeshData) (*metadata.Mesh, error) {
	m, err := NewMesh(b.uploader, b.alloc, data.Vertices, data.Indices)
	if err != nil {
		err = core.NewResourceError(core.ResourceKindModel, data.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	id := b.ids.Next()
	b.mu.Lock()
	b.meshes[id] = m
	b.mu.Unlock()

	core.LogDebug("mesh %s uploaded: %d vertices, %d indices", data.Name, m.VertexCount, m.IndexCount)
	return &metadata.Mesh{
		ID:           id,
		Name:         data.Name,
		VertexCount:  m.VertexCount,
		IndexCount:   m.IndexCount,
		InternalData: m,
	}, nil
}

// LoadMaterial returns the cached material for name, building it the first
// time. Every call holds one reference, given back by ReleaseMaterial.
func (b *Backend) LoadMaterial(name string) (*metadata.Material, error) {
	m, err := b.materials.Acquire(name, func() (*Material, error) {
		return b.buildMaterial(name)
	})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	id, ok := b.materialIDs[m]
	if !ok {
		id = b.ids.Next()
		b.materialIDs[m] = id
	}
	b.mu.Unlock()

	return &metadata.Material{ID: id, Name: name, InternalData: m}, nil
}

func (b *Backend) buildMaterial(name string) (*Material, error) {
	src, err := b.assets.Material(name)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	var texture *Texture
	if src.Texture != nil {
		texture = materialTexture(name, src.Config.Texture, func() (*Texture, error) {
			return NewTexture(b.uploader, b.alloc, src.Texture.Pixels)
		})
	}

	pipeline, err := CreatePipeline(b.ctx, b.cache, b.renderPass, b.swapchain.Extent,
		[][]byte{src.Vertex, src.Fragment}, b.descriptors.SetLayouts())
	if err != nil {
		if texture != nil {
			texture.Destroy()
		}
		err = core.NewResourceError(core.ResourceKindMaterial, name, err)
		core.LogError(err.Error())
		return nil, err
	}

	m, err := NewMaterial(b.ctx, b.descriptors, name, pipeline, texture, b.defaultTexture)
	if err != nil {
		pipeline.Destroy(b.ctx)
		if texture != nil {
			texture.Destroy()
		}
		return nil, core.NewResourceError(core.ResourceKindMaterial, name, err)
	}
	core.LogInfo("material %s loaded", name)
	return m, nil
}

// materialTexture uploads the texture of a material. When the upload fails
// the material samples the default texture instead.
func materialTexture(material, path string, upload func() (*Texture, error)) *Texture {
	texture, err := upload()
	if err != nil {
		err = core.NewResourceError(core.ResourceKindTexture, path, err)
		core.LogWarn("material %s falls back to the default texture: %s", material, err)
		return nil
	}
	return texture
}

func (b *Backend) forgetMaterial(m *Material) {
	b.mu.Lock()
	delete(b.materialIDs, m)
	b.mu.Unlock()
}

func (b *Backend) InvalidateMaterial(name string) {
	b.materials.Invalidate(name)
	core.LogInfo("material %s will be rebuilt on next load", name)
}

// ReleaseMesh destroys the mesh once no frame in flight can use it.
func (b *Backend) ReleaseMesh(mesh *metadata.Mesh) {
	b.mu.Lock()
	m, ok := b.meshes[mesh.ID]
	delete(b.meshes, mesh.ID)
	b.mu.Unlock()
	if !ok {
		core.LogWarn("mesh %d (%s) released twice or not issued here", mesh.ID, mesh.Name)
		return
	}
	b.releases.push(b.beginCount.Load(), m.Destroy)
}

// ReleaseMaterial drops one reference once no frame in flight can use the
// material.
func (b *Backend) ReleaseMaterial(material *metadata.Material) {
	m, ok := material.InternalData.(*Material)
	if !ok {
		core.LogWarn("material %d (%s) was not issued here", material.ID, material.Name)
		return
	}
	b.releases.push(b.beginCount.Load(), func() {
		if !b.materials.Release(m) {
			core.LogWarn("material %s released more often than loaded", material.Name)
		}
	})
}

// Shutdown waits for the device and releases everything in reverse
// dependency order.
func (b *Backend) Shutdown() error {
	if b.closed {
		return errors.New("vulkan backend already shut down")
	}
	if err := b.ctx.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle: %s", err)
	}
	b.destroy()
	core.LogInfo("Vulkan backend shut down")
	return nil
}

func (b *Backend) destroy() {
	b.closed = true
	if b.ctx == nil {
		return
	}
	if b.ctx.Device == nil {
		b.ctx.Destroy()
		return
	}

	if b.uploader != nil {
		b.uploader.Destroy()
	}
	for i, f := range b.frames {
		if f != nil {
			f.destroy()
			b.frames[i] = nil
		}
	}

	if b.depth != nil {
		b.depth.Destroy()
	}
	destroyFramebuffers(b.ctx, b.framebuffers)
	b.framebuffers = nil
	if b.renderPass != nil {
		b.renderPass.Destroy(b.ctx)
	}
	if b.descriptors != nil {
		b.descriptors.Destroy()
	}
	if b.swapchain != nil {
		b.swapchain.Destroy()
	}

	pending := b.releases.flush()
	b.mu.Lock()
	meshes := b.meshes
	b.meshes = make(map[uint64]*Mesh)
	b.mu.Unlock()
	for _, m := range meshes {
		m.Destroy()
	}
	materials := b.materials.Drain()
	if b.defaultTexture != nil {
		b.defaultTexture.Destroy()
	}
	core.LogDebug("released %d pending, %d meshes and %d materials", pending, len(meshes), materials)

	if b.alloc != nil {
		if err := b.alloc.Destroy(); err != nil {
			core.LogFatal("failed to destroy gpu allocator: %s", err)
		}
	}
	if b.cache != nil {
		b.cache.Destroy()
	}
	b.ctx.Destroy()
}

// Stats reports the pipeline cache usage.
func (b *Backend) Stats() PipelineCacheStats {
	return b.cache.Stats()
}
