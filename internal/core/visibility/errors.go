package visibility

import "errors"

var (
	ErrInvalidGrid = errors.New("invalid grid level")
)
