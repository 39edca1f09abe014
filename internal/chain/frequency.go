package chain

import (
	"fmt"
	"math"
)

// SetReferenceFrequency writes hz to the source (when it has frequency
// control) and then to the lock-in.
//
// The two writes are not atomic. If the source write fails the lock-in is
// left untouched; if the lock-in write fails the source already carries
// the new value and the two are out of step until the next call.
func (e *Engine) SetReferenceFrequency(hz float64) error {
	if hz < 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("%w: %v Hz", ErrInvalidFrequency, hz)
	}

	if e.srcFreq != nil {
		if err := e.srcFreq.SetFrequency(hz); err != nil {
			return fmt.Errorf("source: setting frequency: %w", err)
		}
	}
	if err := e.lockin.SetFrequency(hz); err != nil {
		return fmt.Errorf("lockin: setting frequency: %w", err)
	}
	return nil
}

// ReferenceFrequency returns the lock-in demodulator frequency. The source
// frequency is never read back here.
func (e *Engine) ReferenceFrequency() (float64, error) {
	hz, err := e.lockin.Frequency()
	if err != nil {
		return 0, fmt.Errorf("lockin: reading frequency: %w", err)
	}
	return hz, nil
}
