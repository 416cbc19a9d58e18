package server

import "errors"

var (
	ErrBadOrigin    = errors.New("origin must be three finite comma-separated numbers")
	ErrListenFailed = errors.New("failed to create listener")
)
