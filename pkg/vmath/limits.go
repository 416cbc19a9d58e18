package vmath

import "math"

const (
	DefaultMaxCoord      = 16384.0 * 2
	DefaultMaxEulerAngle = 360.0 * 1000
	DefaultMaxSpeed      = 4096.0 * 4
)

// Limits bound the magnitudes accepted by pose and velocity mutations.
// A zero field disables only the magnitude check; non-finite values are always rejected.
type Limits struct {
	MaxCoord float64 `yaml:"max_coord" json:"max_coord"`
	MaxAngle float64 `yaml:"max_angle" json:"max_angle"`
	MaxSpeed float64 `yaml:"max_speed" json:"max_speed"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxCoord: DefaultMaxCoord,
		MaxAngle: DefaultMaxEulerAngle,
		MaxSpeed: DefaultMaxSpeed,
	}
}

func (l Limits) OriginOK(v Vec3) bool {
	return within(v[0], l.MaxCoord) && within(v[1], l.MaxCoord) && within(v[2], l.MaxCoord)
}

func (l Limits) AnglesOK(a Angles) bool {
	return within(a.Pitch, l.MaxAngle) && within(a.Yaw, l.MaxAngle) && within(a.Roll, l.MaxAngle)
}

func (l Limits) VelocityOK(v Vec3) bool {
	return within(v[0], l.MaxSpeed) && within(v[1], l.MaxSpeed) && within(v[2], l.MaxSpeed)
}

func within(x, bound float64) bool {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return false
	}
	return bound <= 0 || math.Abs(x) <= bound
}
