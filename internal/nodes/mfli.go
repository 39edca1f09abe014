package nodes

import (
	"github.com/nerrad567/signalchain-core/internal/drivers/mfli"
)

// MFLISource uses an MFLI signal output as the excitation source. Its
// frequency is the demodulator oscillator, so it takes part in frequency
// coupling.
type MFLISource struct {
	drv *mfli.Driver
}

// NewMFLISource wraps a driver as a chain.Source.
func NewMFLISource(drv *mfli.Driver) (*MFLISource, error) {
	if drv == nil {
		return nil, ErrNilDriver
	}
	return &MFLISource{drv: drv}, nil
}

// Level returns the output amplitude in volts.
func (s *MFLISource) Level() (float64, error) { return s.drv.Amplitude() }

// SetLevel sets the output amplitude.
func (s *MFLISource) SetLevel(volts float64) error { return s.drv.SetAmplitude(volts) }

// OutputEnabled reports whether the signal output is on.
func (s *MFLISource) OutputEnabled() (bool, error) { return s.drv.OutputOn() }

// SetOutputEnabled switches the signal output.
func (s *MFLISource) SetOutputEnabled(on bool) error { return s.drv.SetOutputOn(on) }

// Frequency returns the oscillator frequency in Hz.
func (s *MFLISource) Frequency() (float64, error) { return s.drv.Frequency() }

// SetFrequency sets the oscillator frequency.
func (s *MFLISource) SetFrequency(hz float64) error { return s.drv.SetFrequency(hz) }

// MFLILockIn uses an MFLI demodulator as the chain's lock-in.
type MFLILockIn struct {
	drv *mfli.Driver
}

// NewMFLILockIn wraps a driver as a chain.LockIn.
func NewMFLILockIn(drv *mfli.Driver) (*MFLILockIn, error) {
	if drv == nil {
		return nil, ErrNilDriver
	}
	return &MFLILockIn{drv: drv}, nil
}

// Frequency returns the demodulator frequency in Hz.
func (l *MFLILockIn) Frequency() (float64, error) { return l.drv.Frequency() }

// SetFrequency sets the demodulator frequency.
func (l *MFLILockIn) SetFrequency(hz float64) error { return l.drv.SetFrequency(hz) }

// TimeConstant returns the filter time constant in seconds.
func (l *MFLILockIn) TimeConstant() (float64, error) { return l.drv.TimeConstant() }

// SetTimeConstant sets the filter time constant.
func (l *MFLILockIn) SetTimeConstant(seconds float64) error { return l.drv.SetTimeConstant(seconds) }

// Sensitivity returns the demodulator range in volts.
func (l *MFLILockIn) Sensitivity() (float64, error) { return l.drv.Sensitivity() }

// SetSensitivity sets the demodulator range.
func (l *MFLILockIn) SetSensitivity(volts float64) error { return l.drv.SetSensitivity(volts) }

// InputRange returns the signal input range in volts.
func (l *MFLILockIn) InputRange() (float64, error) { return l.drv.InputRange() }

// SetInputRange sets the signal input range.
func (l *MFLILockIn) SetInputRange(volts float64) error { return l.drv.SetInputRange(volts) }

// X returns the in-phase component in volts.
func (l *MFLILockIn) X() (float64, error) { return l.drv.Readout(mfli.OutputX) }

// Y returns the quadrature component in volts.
func (l *MFLILockIn) Y() (float64, error) { return l.drv.Readout(mfli.OutputY) }

// R returns the magnitude in volts.
func (l *MFLILockIn) R() (float64, error) { return l.drv.Readout(mfli.OutputR) }

// Theta returns the phase in degrees.
func (l *MFLILockIn) Theta() (float64, error) { return l.drv.Readout(mfli.OutputTheta) }

// Demodulate returns X and Y in volts from a single demodulator sample.
func (l *MFLILockIn) Demodulate() (x, y float64, err error) { return l.drv.Demodulate() }
