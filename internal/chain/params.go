package chain

import "fmt"

// The methods below flatten the node parameters onto the engine so callers
// can drive the whole chain through one object. They forward without
// computation.

// ExcitationLevel returns the source level in volts.
func (e *Engine) ExcitationLevel() (float64, error) {
	v, err := e.src.Level()
	if err != nil {
		return 0, fmt.Errorf("source: reading level: %w", err)
	}
	return v, nil
}

// SetExcitationLevel writes the source level directly, bypassing the
// current setpoint and the guard.
func (e *Engine) SetExcitationLevel(volts float64) error {
	if err := e.src.SetLevel(volts); err != nil {
		return fmt.Errorf("source: setting level: %w", err)
	}
	return nil
}

// OutputEnabled reports whether the source output is on.
func (e *Engine) OutputEnabled() (bool, error) {
	on, err := e.src.OutputEnabled()
	if err != nil {
		return false, fmt.Errorf("source: reading output state: %w", err)
	}
	return on, nil
}

// SetOutputEnabled switches the source output.
func (e *Engine) SetOutputEnabled(on bool) error {
	if err := e.src.SetOutputEnabled(on); err != nil {
		return fmt.Errorf("source: setting output state: %w", err)
	}
	return nil
}

// TimeConstant returns the demodulator time constant in seconds.
func (e *Engine) TimeConstant() (float64, error) {
	tc, err := e.lockin.TimeConstant()
	if err != nil {
		return 0, fmt.Errorf("lockin: reading time constant: %w", err)
	}
	return tc, nil
}

// SetTimeConstant writes the demodulator time constant.
func (e *Engine) SetTimeConstant(seconds float64) error {
	if err := e.lockin.SetTimeConstant(seconds); err != nil {
		return fmt.Errorf("lockin: setting time constant: %w", err)
	}
	return nil
}

// Sensitivity returns the lock-in sensitivity in volts.
func (e *Engine) Sensitivity() (float64, error) {
	s, err := e.lockin.Sensitivity()
	if err != nil {
		return 0, fmt.Errorf("lockin: reading sensitivity: %w", err)
	}
	return s, nil
}

// SetSensitivity writes the lock-in sensitivity.
func (e *Engine) SetSensitivity(volts float64) error {
	if err := e.lockin.SetSensitivity(volts); err != nil {
		return fmt.Errorf("lockin: setting sensitivity: %w", err)
	}
	return nil
}

// InputRange returns the lock-in signal input range in volts.
func (e *Engine) InputRange() (float64, error) {
	r, err := e.lockin.InputRange()
	if err != nil {
		return 0, fmt.Errorf("lockin: reading input range: %w", err)
	}
	return r, nil
}

// SetInputRange writes the lock-in signal input range.
func (e *Engine) SetInputRange(volts float64) error {
	if err := e.lockin.SetInputRange(volts); err != nil {
		return fmt.Errorf("lockin: setting input range: %w", err)
	}
	return nil
}

// X returns the in-phase demodulator output.
func (e *Engine) X() (float64, error) { return wrapRead("X", e.lockin.X) }

// Y returns the quadrature demodulator output.
func (e *Engine) Y() (float64, error) { return wrapRead("Y", e.lockin.Y) }

// R returns the demodulator magnitude.
func (e *Engine) R() (float64, error) { return wrapRead("R", e.lockin.R) }

// Theta returns the demodulator phase in degrees.
func (e *Engine) Theta() (float64, error) { return wrapRead("Theta", e.lockin.Theta) }

func wrapRead(name string, read func() (float64, error)) (float64, error) {
	v, err := read()
	if err != nil {
		return 0, fmt.Errorf("lockin: reading %s: %w", name, err)
	}
	return v, nil
}

// Transconductance returns the converter gm magnitude in A/V.
func (e *Engine) Transconductance() (float64, error) {
	gm, err := e.conv.Transconductance()
	if err != nil {
		return 0, fmt.Errorf("converter: reading transconductance: %w", err)
	}
	return gm, nil
}

// ConverterInverted returns the converter inversion flag.
func (e *Engine) ConverterInverted() (bool, error) {
	inv, err := e.conv.Inverted()
	if err != nil {
		return false, fmt.Errorf("converter: reading invert: %w", err)
	}
	return inv, nil
}

// Gain returns the amplifier gain magnitude in V/V.
func (e *Engine) Gain() (float64, error) {
	gv, err := e.amp.Gain()
	if err != nil {
		return 0, fmt.Errorf("amplifier: reading gain: %w", err)
	}
	return gv, nil
}

// AmplifierInverted returns the amplifier inversion flag.
func (e *Engine) AmplifierInverted() (bool, error) {
	inv, err := e.amp.Inverted()
	if err != nil {
		return false, fmt.Errorf("amplifier: reading invert: %w", err)
	}
	return inv, nil
}
