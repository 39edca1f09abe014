package control

import "errors"

var (
	// ErrNotAdjustable is returned when changing converter or preamp
	// settings on a chain whose node is not user-editable.
	ErrNotAdjustable = errors.New("control: node settings are not adjustable")

	// ErrMissingEngineNodes is returned by New when the chain nodes are incomplete.
	ErrMissingEngineNodes = errors.New("control: chain nodes are required")
)
