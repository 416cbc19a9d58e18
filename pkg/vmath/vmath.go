// Package vmath holds the small amount of rigid-body math the entity substrate needs:
// euler angles in degrees, 3x4 affine frames stored in mgl64 matrices and the
// reasonable-value bounds applied at every mutation boundary.
//
// Conventions: X forward, Y left, Z up. Angles are pitch (about Y), yaw (about Z)
// and roll (about X), in degrees. A frame's upper 3x3 holds the forward, left and up
// axes as columns, its fourth column holds the origin.
package vmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Vec3 = mgl64.Vec3

// Matrix3x4 is an affine rigid transform. The bottom row is always (0, 0, 0, 1).
type Matrix3x4 = mgl64.Mat4

// Angles are euler angles in degrees.
type Angles struct {
	Pitch float64 `json:"pitch" yaml:"pitch"`
	Yaw   float64 `json:"yaw" yaml:"yaw"`
	Roll  float64 `json:"roll" yaml:"roll"`
}

func (a Angles) IsZero() bool {
	return a.Pitch == 0 && a.Yaw == 0 && a.Roll == 0
}

func (a Angles) Array() [3]float64 {
	return [3]float64{a.Pitch, a.Yaw, a.Roll}
}

// ApproxEqual compares two angle triples component-wise, wrapping at 360 degrees.
func (a Angles) ApproxEqual(b Angles, eps float64) bool {
	return angleDiff(a.Pitch, b.Pitch) <= eps &&
		angleDiff(a.Yaw, b.Yaw) <= eps &&
		angleDiff(a.Roll, b.Roll) <= eps
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return math.Abs(d)
}

// Identity returns the identity frame.
func Identity() Matrix3x4 {
	return mgl64.Ident4()
}

// AngleMatrix builds the frame rotated by a and translated to origin.
func AngleMatrix(a Angles, origin Vec3) Matrix3x4 {
	sp, cp := math.Sincos(mgl64.DegToRad(a.Pitch))
	sy, cy := math.Sincos(mgl64.DegToRad(a.Yaw))
	sr, cr := math.Sincos(mgl64.DegToRad(a.Roll))

	var m Matrix3x4
	m.Set(0, 0, cp*cy)
	m.Set(1, 0, cp*sy)
	m.Set(2, 0, -sp)

	m.Set(0, 1, sr*sp*cy-cr*sy)
	m.Set(1, 1, sr*sp*sy+cr*cy)
	m.Set(2, 1, sr*cp)

	m.Set(0, 2, cr*sp*cy+sr*sy)
	m.Set(1, 2, cr*sp*sy-sr*cy)
	m.Set(2, 2, cr*cp)

	m.SetCol(3, origin.Vec4(1))
	return m
}

// MatrixAngles extracts euler angles from the rotation part of m.
func MatrixAngles(m Matrix3x4) Angles {
	fx, fy, fz := m.At(0, 0), m.At(1, 0), m.At(2, 0)
	lx, ly, lz := m.At(0, 1), m.At(1, 1), m.At(2, 1)
	uz := m.At(2, 2)

	xyDist := math.Sqrt(fx*fx + fy*fy)
	if xyDist > 0.001 {
		return Angles{
			Pitch: mgl64.RadToDeg(math.Atan2(-fz, xyDist)),
			Yaw:   mgl64.RadToDeg(math.Atan2(fy, fx)),
			Roll:  mgl64.RadToDeg(math.Atan2(lz, uz)),
		}
	}
	// gimbal lock, roll folds into yaw
	return Angles{
		Pitch: mgl64.RadToDeg(math.Atan2(-fz, xyDist)),
		Yaw:   mgl64.RadToDeg(math.Atan2(-lx, ly)),
	}
}

// Origin returns the translation column of m.
func Origin(m Matrix3x4) Vec3 {
	return m.Col(3).Vec3()
}

// SetOrigin replaces the translation column of m.
func SetOrigin(m Matrix3x4, origin Vec3) Matrix3x4 {
	m.SetCol(3, origin.Vec4(1))
	return m
}

// ConcatTransforms returns a*b: a point in b's space mapped through b then a.
func ConcatTransforms(a, b Matrix3x4) Matrix3x4 {
	return a.Mul4(b)
}

// TransformPoint maps p from local space into the space of m.
func TransformPoint(p Vec3, m Matrix3x4) Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// ITransformPoint maps p from the space of m back into local space.
func ITransformPoint(p Vec3, m Matrix3x4) Vec3 {
	return IRotate(p.Sub(Origin(m)), m)
}

// Rotate applies only the rotation part of m.
func Rotate(v Vec3, m Matrix3x4) Vec3 {
	return m.Mat3().Mul3x1(v)
}

// IRotate applies the inverse rotation of m. Frames are orthonormal so the
// transpose is the inverse.
func IRotate(v Vec3, m Matrix3x4) Vec3 {
	return m.Mat3().Transpose().Mul3x1(v)
}

// InvertAffine inverts a rigid frame.
func InvertAffine(m Matrix3x4) Matrix3x4 {
	rt := m.Mat3().Transpose()
	t := rt.Mul3x1(Origin(m)).Mul(-1)

	out := rt.Mat4()
	out.SetCol(3, t.Vec4(1))
	return out
}

// TransformAABB returns the world-space box enclosing the local box [mins, maxs]
// after it is mapped through m.
func TransformAABB(m Matrix3x4, mins, maxs Vec3) (Vec3, Vec3) {
	center := mins.Add(maxs).Mul(0.5)
	extent := maxs.Sub(mins).Mul(0.5)
	worldCenter := TransformPoint(center, m)

	var worldExtent Vec3
	for row := 0; row < 3; row++ {
		worldExtent[row] = math.Abs(m.At(row, 0))*extent[0] +
			math.Abs(m.At(row, 1))*extent[1] +
			math.Abs(m.At(row, 2))*extent[2]
	}
	return worldCenter.Sub(worldExtent), worldCenter.Add(worldExtent)
}

// BoxesOverlap reports whether two closed boxes intersect.
func BoxesOverlap(aMins, aMaxs, bMins, bMaxs Vec3) bool {
	for i := 0; i < 3; i++ {
		if aMins[i] > bMaxs[i] || bMins[i] > aMaxs[i] {
			return false
		}
	}
	return true
}
