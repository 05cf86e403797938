package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	NearPlane float32 = 0.1
	FarPlane  float32 = 1000.0
)

/**
 * @brief Represents a camera used for rendering. It owns the view,
 * perspective and orthographic matrices.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() so the
	 * view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation().
	 */
	EulerRotation mgl32.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool

	viewMatrix   mgl32.Mat4
	projection   mgl32.Mat4
	orthographic mgl32.Mat4

	fov    float32
	width  float32
	height float32
}

// NewCamera builds a camera at the origin for a viewport of the given size.
// fovDeg is the vertical field of view in degrees.
func NewCamera(width, height uint32, fovDeg float32) *Camera {
	c := &Camera{fov: fovDeg}
	c.Reset()
	c.SetViewport(width, height)
	return c
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.IsDirty = false
	c.viewMatrix = mgl32.Ident4()
}

// SetViewport rebuilds both projections for a new framebuffer size.
func (c *Camera) SetViewport(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	c.width = float32(width)
	c.height = float32(height)
	c.projection = mgl32.Perspective(mgl32.DegToRad(c.fov), c.width/c.height, NearPlane, FarPlane)
	c.orthographic = mgl32.Ortho(0, c.width, 0, c.height, NearPlane, FarPlane)
}

func (c *Camera) SetFOV(fovDeg float32) {
	c.fov = fovDeg
	c.SetViewport(uint32(c.width), uint32(c.height))
}

func (c *Camera) GetPosition() mgl32.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() mgl32.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

// LookAt points the camera from eye at target. The view is set directly
// and the Euler angles are left untouched.
func (c *Camera) LookAt(eye, target, up mgl32.Vec3) {
	c.Position = eye
	c.viewMatrix = mgl32.LookAtV(eye, target, up)
	c.IsDirty = false
}

func (c *Camera) View() mgl32.Mat4 {
	if c.IsDirty {
		rotation := mgl32.AnglesToQuat(c.EulerRotation.X(), c.EulerRotation.Y(), c.EulerRotation.Z(), mgl32.XYZ).Mat4()
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.viewMatrix = translation.Mul4(rotation).Inv()
		c.IsDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) Projection() mgl32.Mat4 {
	return c.projection
}

func (c *Camera) Orthographic() mgl32.Mat4 {
	return c.orthographic
}

func (c *Camera) Forward() mgl32.Vec3 {
	view := c.View()
	return mgl32.Vec3{-view.At(2, 0), -view.At(2, 1), -view.At(2, 2)}.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	view := c.View()
	return mgl32.Vec3{view.At(0, 0), view.At(0, 1), view.At(0, 2)}.Normalize()
}

func (c *Camera) MoveForward(amount float32) {
	c.Position = c.Position.Add(c.Forward().Mul(amount))
	c.IsDirty = true
}

func (c *Camera) MoveRight(amount float32) {
	c.Position = c.Position.Add(c.Right().Mul(amount))
	c.IsDirty = true
}

func (c *Camera) MoveUp(amount float32) {
	c.Position = c.Position.Add(mgl32.Vec3{0, 1, 0}.Mul(amount))
	c.IsDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := mgl32.DegToRad(89)
	c.EulerRotation[0] = mgl32.Clamp(c.EulerRotation[0], -limit, limit)

	c.IsDirty = true
}
