package mfli

import "errors"

// Domain errors for the MFLI driver.
var (
	// ErrOutOfRange is returned when a setting is outside the instrument's
	// accepted values.
	ErrOutOfRange = errors.New("mfli: value out of range")

	// ErrInvalidConfig is returned by New for a bad device, demodulator,
	// signal output or aux output mapping.
	ErrInvalidConfig = errors.New("mfli: invalid driver configuration")

	// ErrNodeUnavailable is returned by a session when a node cannot be read
	// or written.
	ErrNodeUnavailable = errors.New("mfli: node unavailable")
)
