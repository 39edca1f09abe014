package nodes

import (
	"fmt"
	"math"
	"sync"
)

// Default manual settings.
const (
	DefaultTransconductance = 1e-3 // A/V
	DefaultPreampGain       = 100  // V/V
)

// Coupling is the preamplifier input coupling.
type Coupling string

// Supported couplings.
const (
	CouplingAC Coupling = "AC"
	CouplingDC Coupling = "DC"
)

// ConverterSettings are the user-entered values of a V->I transformer.
type ConverterSettings struct {
	TransconductanceAPerV float64  `json:"gm_a_per_v"`
	Invert                bool     `json:"invert"`
	PhaseDeg              float64  `json:"phase_deg"`
	PrimaryImpedanceOhm   *float64 `json:"primary_impedance_ohm,omitempty"`
}

// Validate checks gm >= 0, phase in [-180, 180] and impedance >= 0.
func (s ConverterSettings) Validate() error {
	if err := nonNegative("gm_a_per_v", s.TransconductanceAPerV); err != nil {
		return err
	}
	if math.IsNaN(s.PhaseDeg) || s.PhaseDeg < -180 || s.PhaseDeg > 180 {
		return fmt.Errorf("%w: phase_deg %v not in [-180, 180]", ErrInvalidParameter, s.PhaseDeg)
	}
	if s.PrimaryImpedanceOhm != nil {
		if err := nonNegative("primary_impedance_ohm", *s.PrimaryImpedanceOhm); err != nil {
			return err
		}
	}
	return nil
}

// ManualConverter is a V->I transformer whose settings are typed in by
// the user. It is safe for concurrent use.
type ManualConverter struct {
	mu sync.RWMutex
	s  ConverterSettings
}

// NewManualConverter returns a converter with gm = DefaultTransconductance.
func NewManualConverter() *ManualConverter {
	return &ManualConverter{s: ConverterSettings{TransconductanceAPerV: DefaultTransconductance}}
}

// Transconductance implements chain.Converter.
func (c *ManualConverter) Transconductance() (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.TransconductanceAPerV, nil
}

// Inverted implements chain.Converter.
func (c *ManualConverter) Inverted() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.Invert, nil
}

// Settings returns a copy of the current settings.
func (c *ManualConverter) Settings() ConverterSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.s
	if s.PrimaryImpedanceOhm != nil {
		z := *s.PrimaryImpedanceOhm
		s.PrimaryImpedanceOhm = &z
	}
	return s
}

// Apply replaces all settings after validating them.
func (c *ManualConverter) Apply(s ConverterSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.PrimaryImpedanceOhm != nil {
		z := *s.PrimaryImpedanceOhm
		s.PrimaryImpedanceOhm = &z
	}
	c.mu.Lock()
	c.s = s
	c.mu.Unlock()
	return nil
}

// SetTransconductance sets the gm magnitude in A/V.
func (c *ManualConverter) SetTransconductance(gm float64) error {
	if err := nonNegative("gm_a_per_v", gm); err != nil {
		return err
	}
	c.mu.Lock()
	c.s.TransconductanceAPerV = gm
	c.mu.Unlock()
	return nil
}

// SetInverted sets the inversion flag.
func (c *ManualConverter) SetInverted(inv bool) {
	c.mu.Lock()
	c.s.Invert = inv
	c.mu.Unlock()
}

// PreampSettings are the user-entered values of a voltage preamplifier.
type PreampSettings struct {
	GainVPerV   float64  `json:"gain_v_per_v"`
	Invert      bool     `json:"invert"`
	Coupling    Coupling `json:"coupling"`
	BandwidthHz *float64 `json:"bandwidth_hz,omitempty"`
}

// Validate checks gain >= 0, the coupling and bandwidth > 0.
func (s PreampSettings) Validate() error {
	if err := nonNegative("gain_v_per_v", s.GainVPerV); err != nil {
		return err
	}
	if s.Coupling != CouplingAC && s.Coupling != CouplingDC {
		return fmt.Errorf("%w: coupling %q must be AC or DC", ErrInvalidParameter, s.Coupling)
	}
	if s.BandwidthHz != nil && !(*s.BandwidthHz > 0) {
		return fmt.Errorf("%w: bandwidth_hz %v must be positive", ErrInvalidParameter, *s.BandwidthHz)
	}
	return nil
}

// ManualPreamp is a voltage preamplifier whose settings are typed in by
// the user. It is safe for concurrent use.
type ManualPreamp struct {
	mu sync.RWMutex
	s  PreampSettings
}

// NewManualPreamp returns an AC-coupled preamp with gain = DefaultPreampGain.
func NewManualPreamp() *ManualPreamp {
	return &ManualPreamp{s: PreampSettings{GainVPerV: DefaultPreampGain, Coupling: CouplingAC}}
}

// Gain implements chain.Amplifier.
func (p *ManualPreamp) Gain() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s.GainVPerV, nil
}

// Inverted implements chain.Amplifier.
func (p *ManualPreamp) Inverted() (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s.Invert, nil
}

// Settings returns a copy of the current settings.
func (p *ManualPreamp) Settings() PreampSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.s
	if s.BandwidthHz != nil {
		bw := *s.BandwidthHz
		s.BandwidthHz = &bw
	}
	return s
}

// Apply replaces all settings after validating them.
func (p *ManualPreamp) Apply(s PreampSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.BandwidthHz != nil {
		bw := *s.BandwidthHz
		s.BandwidthHz = &bw
	}
	p.mu.Lock()
	p.s = s
	p.mu.Unlock()
	return nil
}

// SetGain sets the gain magnitude in V/V.
func (p *ManualPreamp) SetGain(gain float64) error {
	if err := nonNegative("gain_v_per_v", gain); err != nil {
		return err
	}
	p.mu.Lock()
	p.s.GainVPerV = gain
	p.mu.Unlock()
	return nil
}

// SetInverted sets the inversion flag.
func (p *ManualPreamp) SetInverted(inv bool) {
	p.mu.Lock()
	p.s.Invert = inv
	p.mu.Unlock()
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s %v must be a finite value >= 0", ErrInvalidParameter, name, v)
	}
	return nil
}
