package chain

import (
	"fmt"
	"math"
)

// AmplitudeConvention records how the excitation level is quoted.
// It is carried as configuration data; no formula converts between
// conventions.
type AmplitudeConvention string

// Supported amplitude conventions.
const (
	ConventionRMS        AmplitudeConvention = "rms"
	ConventionAmplitude  AmplitudeConvention = "amplitude"
	ConventionPeakToPeak AmplitudeConvention = "peak_to_peak"
)

// DefaultMargin is the sensitivity headroom applied to the live R readout.
const DefaultMargin = 3.0

// AdvisoryConfig holds the user-supplied scalars used only for derived
// readbacks and the overload guard. None of them affect control.
type AdvisoryConfig struct {
	// REst is the estimated sample impedance in ohms. Nil or zero means
	// unknown: the guard is skipped and MeasuredCurrent reports no value.
	REst *float64 `json:"r_est_ohm"`

	// Margin is the multiplier for RecommendedSensitivity. Must be >= 1.
	Margin float64 `json:"margin"`

	Convention AmplitudeConvention `json:"amplitude_convention"`
}

// DefaultAdvisoryConfig returns an advisory config with R_est unset.
func DefaultAdvisoryConfig() AdvisoryConfig {
	return AdvisoryConfig{
		Margin:     DefaultMargin,
		Convention: ConventionRMS,
	}
}

// Validate checks R_est >= 0, margin >= 1 and the convention.
func (c AdvisoryConfig) Validate() error {
	if c.REst != nil && (*c.REst < 0 || math.IsNaN(*c.REst) || math.IsInf(*c.REst, 0)) {
		return fmt.Errorf("%w: r_est must be a finite value >= 0, got %v", ErrInvalidAdvisoryConfig, *c.REst)
	}
	if c.Margin < 1 || math.IsNaN(c.Margin) || math.IsInf(c.Margin, 0) {
		return fmt.Errorf("%w: margin must be a finite value >= 1, got %v", ErrInvalidAdvisoryConfig, c.Margin)
	}
	switch c.Convention {
	case ConventionRMS, ConventionAmplitude, ConventionPeakToPeak:
	default:
		return fmt.Errorf("%w: unknown amplitude convention %q", ErrInvalidAdvisoryConfig, c.Convention)
	}
	return nil
}

// rEst returns the impedance estimate and whether it is usable.
func (c AdvisoryConfig) rEst() (float64, bool) {
	if c.REst == nil || *c.REst == 0 {
		return 0, false
	}
	return *c.REst, true
}

// clone returns a copy that does not share the REst pointer.
func (c AdvisoryConfig) clone() AdvisoryConfig {
	if c.REst != nil {
		r := *c.REst
		c.REst = &r
	}
	return c
}

// Ohms returns a pointer to r, for filling AdvisoryConfig.REst.
func Ohms(r float64) *float64 {
	return &r
}
