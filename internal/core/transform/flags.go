package transform

import "strings"

// ChangeFlags describe what changed on a node when invalidation is triggered.
type ChangeFlags uint8

const (
	PositionChanged ChangeFlags = 1 << iota
	AnglesChanged
	VelocityChanged
	AnimationChanged
)

func (f ChangeFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&PositionChanged != 0 {
		parts = append(parts, "position")
	}
	if f&AnglesChanged != 0 {
		parts = append(parts, "angles")
	}
	if f&VelocityChanged != 0 {
		parts = append(parts, "velocity")
	}
	if f&AnimationChanged != 0 {
		parts = append(parts, "animation")
	}
	return strings.Join(parts, "|")
}

// DirtyBits mark cached absolute state as stale.
type DirtyBits uint8

const (
	DirtyAbsTransform DirtyBits = 1 << iota
	DirtyAbsVelocity
)

// Solidity is the collision classification derived from the root ancestor.
type Solidity uint8

const (
	SolidityDynamic Solidity = iota
	SolidityStatic
)

func (s Solidity) String() string {
	if s == SolidityStatic {
		return "static"
	}
	return "dynamic"
}
