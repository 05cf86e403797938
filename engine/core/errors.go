package core

import (
	"errors"
	"fmt"
)

var (
	ErrSwapchainStale     = errors.New("swapchain out of date or suboptimal")
	ErrAllocatorInUse     = errors.New("allocator destroyed while still in use")
	ErrAllocatorDestroyed = errors.New("allocator already destroyed")
	ErrNoSuitableDevice   = errors.New("no suitable gpu found")
	ErrNoMemoryType       = errors.New("no suitable memory type")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrResourceDecode     = errors.New("resource could not be decoded")
	ErrShaderReflect      = errors.New("invalid spir-v module")
	ErrPipelineCreate     = errors.New("pipeline creation failed")
	ErrProtocol           = errors.New("render protocol violation")
	ErrUnknown            = errors.New("unknown")
)

type ResourceKind string

const (
	ResourceKindModel    ResourceKind = "model"
	ResourceKindTexture  ResourceKind = "texture"
	ResourceKindShader   ResourceKind = "shader"
	ResourceKindMaterial ResourceKind = "material"
)

// ResourceError reports a failed asset load. Err is one of the sentinels
// above, or wraps one.
type ResourceError struct {
	Kind ResourceKind
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("failed to load %s `%s`: %s", e.Kind, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

func NewResourceError(kind ResourceKind, path string, err error) *ResourceError {
	return &ResourceError{Kind: kind, Path: path, Err: err}
}
