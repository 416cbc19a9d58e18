package entity

import "errors"

var (
	ErrRegistryFull = errors.New("entity registry is full")
)
