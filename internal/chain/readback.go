package chain

import (
	"fmt"
	"math"
	"math/cmplx"
)

// SampleVoltage reconstructs the complex voltage across the sample as
// (X + iY) / gv_eff. It returns 0 when the amplifier gain is zero, without
// reading the demodulator.
func (e *Engine) SampleVoltage() (complex128, error) {
	gvEff, err := e.effectiveGain()
	if err != nil {
		return 0, err
	}
	if gvEff == 0 {
		return 0, nil
	}
	x, y, err := e.readXY()
	if err != nil {
		return 0, err
	}
	return sampleVoltage(x, y, gvEff), nil
}

// readXY returns X and Y from one demodulator sample when the lock-in
// supports it, otherwise from two separate readouts.
func (e *Engine) readXY() (x, y float64, err error) {
	if e.demod != nil {
		if x, y, err = e.demod.Demodulate(); err != nil {
			return 0, 0, fmt.Errorf("lockin: demodulating: %w", err)
		}
		return x, y, nil
	}
	if x, err = e.lockin.X(); err != nil {
		return 0, 0, fmt.Errorf("lockin: reading X: %w", err)
	}
	if y, err = e.lockin.Y(); err != nil {
		return 0, 0, fmt.Errorf("lockin: reading Y: %w", err)
	}
	return x, y, nil
}

// MeasuredCurrent returns |SampleVoltage| / R_est. ok is false when R_est
// is unset or zero; no device is read in that case.
func (e *Engine) MeasuredCurrent() (amps float64, ok bool, err error) {
	rEst, ok := e.advisory.rEst()
	if !ok {
		return 0, false, nil
	}
	vs, err := e.SampleVoltage()
	if err != nil {
		return 0, false, err
	}
	return cmplx.Abs(vs) / rEst, true, nil
}

// RecommendedSensitivity returns margin * R, using the lock-in's live
// magnitude readout rather than R_est.
func (e *Engine) RecommendedSensitivity() (float64, error) {
	r, err := e.lockin.R()
	if err != nil {
		return 0, fmt.Errorf("lockin: reading R: %w", err)
	}
	return e.advisory.Margin * r, nil
}

func sampleVoltage(x, y, gvEff float64) complex128 {
	if gvEff == 0 {
		return 0
	}
	return complex(x, y) / complex(gvEff, 0)
}

// Readback is a single pass over every readout and derived quantity.
type Readback struct {
	X     float64 `json:"x_v"`
	Y     float64 `json:"y_v"`
	R     float64 `json:"r_v"`
	Theta float64 `json:"theta_deg"`

	FrequencyHz   float64 `json:"frequency_hz"`
	ExcitationV   float64 `json:"excitation_v"`
	OutputEnabled bool    `json:"output_enabled"`

	SampleVoltageRe float64 `json:"sample_voltage_re_v"`
	SampleVoltageIm float64 `json:"sample_voltage_im_v"`

	// MeasuredCurrentA is nil when R_est is unset or zero.
	MeasuredCurrentA        *float64 `json:"measured_current_a"`
	CommandedCurrentA       float64  `json:"commanded_current_a"`
	RecommendedSensitivityV float64  `json:"recommended_sensitivity_v"`
}

// SampleVoltage returns the complex sample voltage of the snapshot.
func (r Readback) SampleVoltage() complex128 {
	return complex(r.SampleVoltageRe, r.SampleVoltageIm)
}

// Readback gathers the readouts and derives the sample voltage, measured
// current, commanded current and recommended sensitivity from them.
//
// With a Demodulator lock-in, X and Y come from one sample and R and Theta
// are computed from that pair, so R == |X + iY| within the snapshot.
// Otherwise each channel is a separate readout and may come from a
// different sample.
func (e *Engine) Readback() (Readback, error) {
	var rb Readback
	var err error

	if e.demod != nil {
		if rb.X, rb.Y, err = e.readXY(); err != nil {
			return Readback{}, err
		}
		rb.R = math.Hypot(rb.X, rb.Y)
		rb.Theta = math.Atan2(rb.Y, rb.X) * 180 / math.Pi
	} else if err = e.readChannels(&rb); err != nil {
		return Readback{}, err
	}
	if rb.FrequencyHz, err = e.ReferenceFrequency(); err != nil {
		return Readback{}, err
	}
	if rb.ExcitationV, err = e.src.Level(); err != nil {
		return Readback{}, fmt.Errorf("source: reading level: %w", err)
	}
	if rb.OutputEnabled, err = e.src.OutputEnabled(); err != nil {
		return Readback{}, fmt.Errorf("source: reading output state: %w", err)
	}

	gvEff, err := e.effectiveGain()
	if err != nil {
		return Readback{}, err
	}
	vs := sampleVoltage(rb.X, rb.Y, gvEff)
	rb.SampleVoltageRe, rb.SampleVoltageIm = real(vs), imag(vs)

	if rEst, ok := e.advisory.rEst(); ok {
		i := cmplx.Abs(vs) / rEst
		rb.MeasuredCurrentA = &i
	}

	if rb.CommandedCurrentA, err = e.CommandedCurrent(); err != nil {
		return Readback{}, err
	}
	rb.RecommendedSensitivityV = e.advisory.Margin * rb.R
	return rb, nil
}

func (e *Engine) readChannels(rb *Readback) error {
	var err error
	if rb.X, err = e.lockin.X(); err != nil {
		return fmt.Errorf("lockin: reading X: %w", err)
	}
	if rb.Y, err = e.lockin.Y(); err != nil {
		return fmt.Errorf("lockin: reading Y: %w", err)
	}
	if rb.R, err = e.lockin.R(); err != nil {
		return fmt.Errorf("lockin: reading R: %w", err)
	}
	if rb.Theta, err = e.lockin.Theta(); err != nil {
		return fmt.Errorf("lockin: reading Theta: %w", err)
	}
	return nil
}
