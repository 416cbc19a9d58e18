package vmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertVecNear(t *testing.T, want, got Vec3, delta float64) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], delta, "want %v got %v", want, got)
}

func assertMatNear(t *testing.T, want, got Matrix3x4, delta float64) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], delta, "want %v got %v", want, got)
}

func TestAngleMatrixIdentity(t *testing.T) {
	m := AngleMatrix(Angles{}, Vec3{1, 2, 3})
	assertMatNear(t, Identity(), SetOrigin(m, Vec3{}), eps)
	assert.Equal(t, Vec3{1, 2, 3}, Origin(m))
}

func TestAngleMatrixYawRotatesForwardToLeft(t *testing.T) {
	m := AngleMatrix(Angles{Yaw: 90}, Vec3{})
	got := Rotate(Vec3{1, 0, 0}, m)
	assertVecNear(t, Vec3{0, 1, 0}, got, eps)
}

func TestAngleMatrixPitchDownIsPositive(t *testing.T) {
	m := AngleMatrix(Angles{Pitch: 90}, Vec3{})
	got := Rotate(Vec3{1, 0, 0}, m)
	assertVecNear(t, Vec3{0, 0, -1}, got, eps)
}

func TestMatrixAnglesRoundTrip(t *testing.T) {
	cases := []Angles{
		{},
		{Pitch: 30, Yaw: 45, Roll: 10},
		{Pitch: -60, Yaw: -170, Roll: 80},
		{Pitch: 5, Yaw: 179, Roll: -179},
	}
	for _, a := range cases {
		got := MatrixAngles(AngleMatrix(a, Vec3{}))
		assert.True(t, got.ApproxEqual(a, 1e-7), "want %v got %v", a, got)
	}
}

func TestMatrixAnglesGimbalLock(t *testing.T) {
	a := Angles{Pitch: 90, Yaw: 30}
	got := MatrixAngles(AngleMatrix(a, Vec3{}))
	assert.InDelta(t, 90, got.Pitch, 1e-7)
	assert.Zero(t, got.Roll)

	// the extracted angles must describe the same orientation
	want := AngleMatrix(a, Vec3{})
	assertMatNear(t, want, AngleMatrix(got, Vec3{}), 1e-7)
}

func TestInvertAffine(t *testing.T) {
	m := AngleMatrix(Angles{Pitch: 12, Yaw: 77, Roll: -33}, Vec3{10, -4, 7})
	inv := InvertAffine(m)
	assertMatNear(t, Identity(), ConcatTransforms(m, inv), eps)

	p := Vec3{3, 2, 1}
	assertVecNear(t, p, ITransformPoint(TransformPoint(p, m), m), eps)
	assertVecNear(t, p, TransformPoint(TransformPoint(p, m), inv), eps)
}

func TestTransformAABB(t *testing.T) {
	m := AngleMatrix(Angles{Yaw: 90}, Vec3{100, 0, 0})
	mins, maxs := TransformAABB(m, Vec3{-2, -1, 0}, Vec3{2, 1, 4})
	assertVecNear(t, Vec3{99, -2, 0}, mins, eps)
	assertVecNear(t, Vec3{101, 2, 4}, maxs, eps)
}

func TestBoxesOverlap(t *testing.T) {
	assert.True(t, BoxesOverlap(Vec3{0, 0, 0}, Vec3{1, 1, 1}, Vec3{1, 1, 1}, Vec3{2, 2, 2}))
	assert.False(t, BoxesOverlap(Vec3{0, 0, 0}, Vec3{1, 1, 1}, Vec3{1.5, 0, 0}, Vec3{2, 1, 1}))
}

func TestLimits(t *testing.T) {
	l := DefaultLimits()
	require.True(t, l.OriginOK(Vec3{100, -100, 0}))
	assert.False(t, l.OriginOK(Vec3{1e30, 0, 0}))
	assert.False(t, l.OriginOK(Vec3{math.NaN(), 0, 0}))
	assert.False(t, l.AnglesOK(Angles{Yaw: math.Inf(1)}))
	assert.False(t, l.VelocityOK(Vec3{0, 0, -1e7}))

	unbounded := Limits{}
	assert.True(t, unbounded.OriginOK(Vec3{1e30, 0, 0}))
	assert.False(t, unbounded.OriginOK(Vec3{math.Inf(-1), 0, 0}))
}
