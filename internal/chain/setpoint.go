package chain

import (
	"fmt"
	"math"
)

// SetCurrentTarget drives the source so the converter delivers amps.
//
// The sequence is fixed: read gm_eff, refuse a zero transconductance,
// compute V = amps/gm_eff, run the overload guard, write the source level,
// then enable the output. Nothing is written when gm_eff is zero or, in
// fail-closed mode, when the guard cannot evaluate.
//
// The target is not stored. Calling this twice with the same value while
// another actor changes the converter gain is not idempotent.
func (e *Engine) SetCurrentTarget(amps float64) error {
	if math.IsNaN(amps) || math.IsInf(amps, 0) {
		return fmt.Errorf("%w: %v A", ErrInvalidSetpoint, amps)
	}

	gmEff, err := e.effectiveTransconductance()
	if err != nil {
		return err
	}
	if gmEff == 0 {
		return ErrZeroTransconductance
	}
	if math.IsNaN(gmEff) || math.IsInf(gmEff, 0) {
		return fmt.Errorf("%w: transconductance %v A/V is not finite", ErrInvalidSetpoint, gmEff)
	}

	volts := amps / gmEff
	if math.IsInf(volts, 0) {
		return fmt.Errorf("%w: %v A needs an unbounded source voltage", ErrInvalidSetpoint, amps)
	}

	if err := e.CheckOverload(amps); err != nil {
		return err
	}

	level := volts
	if e.polarity == PolarityMagnitude {
		level = math.Abs(volts)
	}
	if err := e.src.SetLevel(level); err != nil {
		return fmt.Errorf("source: setting level: %w", err)
	}
	if err := e.src.SetOutputEnabled(true); err != nil {
		return fmt.Errorf("source: enabling output: %w", err)
	}

	e.logger.Debug("current target applied",
		"target_a", amps,
		"gm_eff", gmEff,
		"level_v", level,
		"polarity", e.polarity.String(),
	)
	return nil
}

// CommandedCurrent recomputes the open-loop current from the live source
// level and transconductance: gm_eff * level in signed mode, or
// |gm_eff| * level in magnitude mode.
func (e *Engine) CommandedCurrent() (float64, error) {
	gmEff, err := e.effectiveTransconductance()
	if err != nil {
		return 0, err
	}
	level, err := e.src.Level()
	if err != nil {
		return 0, fmt.Errorf("source: reading level: %w", err)
	}
	if e.polarity == PolarityMagnitude {
		return math.Abs(gmEff) * level, nil
	}
	return gmEff * level, nil
}
