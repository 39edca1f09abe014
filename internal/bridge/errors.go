package bridge

import "errors"

var (
	// ErrInvalidCommand is returned for a command name the bridge does not know.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrInvalidParameters is returned when a command's parameters are
	// missing or malformed.
	ErrInvalidParameters = errors.New("bridge: invalid parameters")
)
