package chain

import (
	"fmt"
	"math"
)

// GuardThresholdFraction is the share of the lock-in input range above
// which a predicted input voltage raises an advisory.
const GuardThresholdFraction = 0.8

// Advisory is the non-fatal outcome of the overload guard: the predicted
// preamp output would exceed the guard threshold.
type Advisory struct {
	TargetA     float64 `json:"target_a"`
	PredictedV  float64 `json:"predicted_v"`
	ThresholdV  float64 `json:"threshold_v"`
	InputRangeV float64 `json:"input_range_v"`
	REstOhm     float64 `json:"r_est_ohm"`
	GainEff     float64 `json:"gain_eff"`
}

// String renders the advisory with three significant figures.
func (a Advisory) String() string {
	return fmt.Sprintf(
		"predicted lock-in input %.3g V exceeds %.0f%% of input range (threshold %.3g V); reduce the current or raise the input range",
		a.PredictedV, GuardThresholdFraction*100, a.ThresholdV,
	)
}

// CheckOverload predicts the lock-in input for a current target and emits
// an Advisory when it would exceed GuardThresholdFraction of the input
// range. SetCurrentTarget calls it before every level write.
//
// It does nothing when R_est is unset or zero. Advisories never produce an
// error; the only error returned is ErrGuardUnavailable in fail-closed mode.
func (e *Engine) CheckOverload(amps float64) error {
	rEst, ok := e.advisory.rEst()
	if !ok {
		return nil
	}

	gvEff, err := e.effectiveGain()
	if err != nil {
		return e.guardReadFailed("amplifier gain", err)
	}
	inputRange, err := e.lockin.InputRange()
	if err != nil {
		return e.guardReadFailed("input range", err)
	}

	predicted := math.Abs(amps) * rEst * math.Abs(gvEff)
	threshold := GuardThresholdFraction * inputRange
	if predicted <= threshold {
		return nil
	}

	adv := Advisory{
		TargetA:     amps,
		PredictedV:  predicted,
		ThresholdV:  threshold,
		InputRangeV: inputRange,
		REstOhm:     rEst,
		GainEff:     gvEff,
	}
	e.logger.Warn("overload advisory",
		"predicted_v", fmt.Sprintf("%.3g", predicted),
		"threshold_v", fmt.Sprintf("%.3g", threshold),
		"target_a", amps,
	)
	if e.onAdvisory != nil {
		e.onAdvisory(adv)
	}
	return nil
}

func (e *Engine) guardReadFailed(what string, err error) error {
	if e.guardMode == GuardFailOpen {
		e.logger.Debug("overload guard skipped", "reading", what, "error", err)
		return nil
	}
	return fmt.Errorf("%w: reading %s: %w", ErrGuardUnavailable, what, err)
}
