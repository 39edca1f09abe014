package keithley2182a

import "errors"

// Domain errors for the 2182A driver.
var (
	// ErrOutOfRange is returned when a setting is outside the instrument's
	// accepted values. Nothing is written to the instrument.
	ErrOutOfRange = errors.New("keithley2182a: value out of range")

	// ErrBadResponse is returned when a query reply cannot be parsed.
	ErrBadResponse = errors.New("keithley2182a: unparseable response")

	// ErrTransport wraps failures reported by a Transport.
	ErrTransport = errors.New("keithley2182a: transport failure")
)
