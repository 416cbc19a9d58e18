package netstate

import "errors"

var (
	ErrNotStruct      = errors.New("schema source is not a struct")
	ErrDuplicateField = errors.New("duplicate replicated field name")
)
