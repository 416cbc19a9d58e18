package world

import "errors"

var (
	ErrNoLevel             = errors.New("world needs a level")
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
)
