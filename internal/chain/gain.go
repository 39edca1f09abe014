package chain

import "fmt"

// Effective folds an inversion flag into a gain magnitude.
// It is used separately for the converter transconductance and the
// amplifier voltage gain, since each side inverts independently.
func Effective(magnitude float64, invert bool) float64 {
	if invert {
		return -magnitude
	}
	return magnitude
}

// effectiveTransconductance reads gm and its inversion flag live from the
// converter.
func (e *Engine) effectiveTransconductance() (float64, error) {
	gm, err := e.conv.Transconductance()
	if err != nil {
		return 0, fmt.Errorf("converter: reading transconductance: %w", err)
	}
	inv, err := e.conv.Inverted()
	if err != nil {
		return 0, fmt.Errorf("converter: reading invert: %w", err)
	}
	return Effective(gm, inv), nil
}

// effectiveGain reads the amplifier gain and its inversion flag live.
func (e *Engine) effectiveGain() (float64, error) {
	gv, err := e.amp.Gain()
	if err != nil {
		return 0, fmt.Errorf("amplifier: reading gain: %w", err)
	}
	inv, err := e.amp.Inverted()
	if err != nil {
		return 0, fmt.Errorf("amplifier: reading invert: %w", err)
	}
	return Effective(gv, inv), nil
}

// EffectiveTransconductance returns the signed transconductance in A/V.
func (e *Engine) EffectiveTransconductance() (float64, error) {
	return e.effectiveTransconductance()
}

// EffectiveGain returns the signed amplifier gain in V/V.
func (e *Engine) EffectiveGain() (float64, error) {
	return e.effectiveGain()
}
