package nodes

import "errors"

// Domain errors for device nodes.
var (
	// ErrInvalidParameter is returned when a manual setting is out of range.
	ErrInvalidParameter = errors.New("nodes: invalid parameter")

	// ErrNilDriver is returned when an instrument node is built without a driver.
	ErrNilDriver = errors.New("nodes: driver is required")
)
