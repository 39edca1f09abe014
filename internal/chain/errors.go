package chain

import "errors"

// Domain errors for the signal chain engine.
var (
	// ErrZeroTransconductance is returned by SetCurrentTarget when the
	// effective transconductance is zero and no voltage can produce the
	// requested current.
	ErrZeroTransconductance = errors.New("chain: effective transconductance is zero")

	// ErrInvalidSetpoint is returned for non-finite current targets, or when
	// the required source voltage overflows.
	ErrInvalidSetpoint = errors.New("chain: invalid current setpoint")

	// ErrInvalidFrequency is returned for negative or non-finite frequencies.
	ErrInvalidFrequency = errors.New("chain: invalid reference frequency")

	// ErrGuardUnavailable is returned in fail-closed guard mode when the
	// guard cannot read the values it needs.
	ErrGuardUnavailable = errors.New("chain: overload guard unavailable")

	// ErrInvalidAdvisoryConfig is returned when R_est, margin or the
	// amplitude convention are out of range.
	ErrInvalidAdvisoryConfig = errors.New("chain: invalid advisory configuration")

	// ErrMissingNode is returned by New when one of the four nodes is nil.
	ErrMissingNode = errors.New("chain: missing node")
)
