package mfli

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Output is the signal routed to an auxiliary output.
type Output int

// Aux output selections, numbered as the instrument's outputselect node.
const (
	OutputManual Output = -1
	OutputX      Output = 0
	OutputY      Output = 1
	OutputR      Output = 2
	OutputTheta  Output = 3
)

// String returns the readout name.
func (o Output) String() string {
	switch o {
	case OutputManual:
		return "manual"
	case OutputX:
		return "X"
	case OutputY:
		return "Y"
	case OutputR:
		return "R"
	case OutputTheta:
		return "Theta"
	default:
		return fmt.Sprintf("Output(%d)", int(o))
	}
}

// ParseOutput maps a readout name to an Output.
func ParseOutput(name string) (Output, error) {
	switch name {
	case "manual":
		return OutputManual, nil
	case "X":
		return OutputX, nil
	case "Y":
		return OutputY, nil
	case "R":
		return OutputR, nil
	case "Theta":
		return OutputTheta, nil
	default:
		return 0, fmt.Errorf("%w: unknown output %q", ErrInvalidConfig, name)
	}
}

// Instrument limits.
const (
	MinFrequency    = 1e-3
	MaxFrequency    = 5e6
	MaxAmplitude    = 1.5
	MaxSigoutOffset = 1.0
	MaxAuxOffset    = 10.0
	MaxPhase        = 180.0
)

var (
	// Sensitivities is the demodulator range ladder in volts.
	Sensitivities = []float64{
		1e-9, 3e-9, 10e-9, 30e-9, 100e-9, 300e-9,
		1e-6, 3e-6, 10e-6, 30e-6, 100e-6, 300e-6,
		1e-3, 3e-3, 10e-3, 30e-3, 100e-3, 300e-3, 1.0,
	}

	// InputRanges are the signal input ranges in volts.
	InputRanges = []float64{10e-3, 100e-3, 1.0, 10.0}

	// SigoutRanges are the signal output ranges in volts.
	SigoutRanges = []float64{0.01, 0.1, 1, 10}
)

// Config selects the channels a Driver uses.
type Config struct {
	Device  string
	Demod   int
	Sigout  int
	AuxOuts map[string]int // readout name -> aux output index
}

// Driver is one MFLI demodulator plus one signal output.
//
// It holds no cached values; every call reads or writes a node.
type Driver struct {
	session Session
	dev     string
	demod   int
	sigout  int
	auxouts map[Output]int
}

// New builds a Driver and routes each mapped aux output to its readout.
func New(session Session, cfg Config) (*Driver, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: session is required", ErrInvalidConfig)
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidConfig)
	}
	if cfg.Demod < 0 || cfg.Demod > 3 {
		return nil, fmt.Errorf("%w: demod %d", ErrInvalidConfig, cfg.Demod)
	}
	if cfg.Sigout < 0 {
		return nil, fmt.Errorf("%w: sigout %d", ErrInvalidConfig, cfg.Sigout)
	}

	d := &Driver{
		session: session,
		dev:     cfg.Device,
		demod:   cfg.Demod,
		sigout:  cfg.Sigout,
		auxouts: make(map[Output]int, len(cfg.AuxOuts)),
	}

	// Deterministic routing order keeps node writes reproducible.
	names := make([]string, 0, len(cfg.AuxOuts))
	for name := range cfg.AuxOuts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out, err := ParseOutput(name)
		if err != nil {
			return nil, err
		}
		if out == OutputManual {
			return nil, fmt.Errorf("%w: manual is not a readout", ErrInvalidConfig)
		}
		idx := cfg.AuxOuts[name]
		if idx < 0 || idx > 3 {
			return nil, fmt.Errorf("%w: auxout %s index %d", ErrInvalidConfig, name, idx)
		}
		d.auxouts[out] = idx
		if err := session.SetInt(d.auxPath(idx, "outputselect"), int64(out)); err != nil {
			return nil, fmt.Errorf("routing auxout %d to %s: %w", idx, name, err)
		}
	}
	return d, nil
}

// Device returns the device id.
func (d *Driver) Device() string { return d.dev }

func (d *Driver) demodPath(leaf string) string {
	return fmt.Sprintf("/%s/demods/%d/%s", d.dev, d.demod, leaf)
}

func (d *Driver) siginPath(leaf string) string {
	return fmt.Sprintf("/%s/sigins/%d/%s", d.dev, d.demod, leaf)
}

func (d *Driver) sigoutPath(leaf string) string {
	return fmt.Sprintf("/%s/sigouts/%d/%s", d.dev, d.sigout, leaf)
}

func (d *Driver) auxPath(idx int, leaf string) string {
	return fmt.Sprintf("/%s/auxouts/%d/%s", d.dev, idx, leaf)
}

func checkRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fmt.Errorf("%w: %s %v not in [%g, %g]", ErrOutOfRange, name, v, lo, hi)
	}
	return nil
}

func checkEnum(name string, v float64, allowed []float64) error {
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("%w: %s %v not one of %v", ErrOutOfRange, name, v, allowed)
	}
	return nil
}

// Frequency returns the demodulator frequency in Hz.
func (d *Driver) Frequency() (float64, error) {
	return d.session.GetDouble(d.demodPath("freq"))
}

// SetFrequency sets the demodulator frequency.
func (d *Driver) SetFrequency(hz float64) error {
	if err := checkRange("frequency", hz, MinFrequency, MaxFrequency); err != nil {
		return err
	}
	return d.session.SetDouble(d.demodPath("freq"), hz)
}

// Phase returns the demodulator phase shift in degrees.
func (d *Driver) Phase() (float64, error) {
	return d.session.GetDouble(d.demodPath("phaseshift"))
}

// SetPhase sets the demodulator phase shift.
func (d *Driver) SetPhase(deg float64) error {
	if err := checkRange("phase", deg, -MaxPhase, MaxPhase); err != nil {
		return err
	}
	return d.session.SetDouble(d.demodPath("phaseshift"), deg)
}

// TimeConstant returns the demodulator filter time constant in seconds.
func (d *Driver) TimeConstant() (float64, error) {
	return d.session.GetDouble(d.demodPath("timeconstant"))
}

// SetTimeConstant sets the filter time constant. It must be positive.
func (d *Driver) SetTimeConstant(seconds float64) error {
	if math.IsNaN(seconds) || seconds <= 0 {
		return fmt.Errorf("%w: time constant %v must be positive", ErrOutOfRange, seconds)
	}
	return d.session.SetDouble(d.demodPath("timeconstant"), seconds)
}

// Sensitivity returns the demodulator range in volts.
func (d *Driver) Sensitivity() (float64, error) {
	return d.session.GetDouble(d.demodPath("range"))
}

// SetSensitivity sets the demodulator range to one of Sensitivities.
func (d *Driver) SetSensitivity(volts float64) error {
	if err := checkEnum("sensitivity", volts, Sensitivities); err != nil {
		return err
	}
	return d.session.SetDouble(d.demodPath("range"), volts)
}

// InputRange returns the signal input range in volts.
func (d *Driver) InputRange() (float64, error) {
	return d.session.GetDouble(d.siginPath("range"))
}

// SetInputRange sets the signal input range to one of InputRanges.
func (d *Driver) SetInputRange(volts float64) error {
	if err := checkEnum("input range", volts, InputRanges); err != nil {
		return err
	}
	return d.session.SetDouble(d.siginPath("range"), volts)
}

// OutputOn reports whether the signal output is switched on.
func (d *Driver) OutputOn() (bool, error) {
	v, err := d.session.GetInt(d.sigoutPath("on"))
	return v != 0, err
}

// SetOutputOn switches the signal output.
func (d *Driver) SetOutputOn(on bool) error {
	var v int64
	if on {
		v = 1
	}
	return d.session.SetInt(d.sigoutPath("on"), v)
}

// Amplitude returns the first mixer channel amplitude in volts.
func (d *Driver) Amplitude() (float64, error) {
	return d.session.GetDouble(d.sigoutPath("amplitudes/0"))
}

// SetAmplitude sets the first mixer channel amplitude. A negative value
// drives the output in antiphase.
func (d *Driver) SetAmplitude(volts float64) error {
	if err := checkRange("amplitude", volts, -MaxAmplitude, MaxAmplitude); err != nil {
		return err
	}
	return d.session.SetDouble(d.sigoutPath("amplitudes/0"), volts)
}

// SigoutRange returns the signal output range in volts.
func (d *Driver) SigoutRange() (float64, error) {
	return d.session.GetDouble(d.sigoutPath("range"))
}

// SetSigoutRange sets the signal output range to one of SigoutRanges.
func (d *Driver) SetSigoutRange(volts float64) error {
	if err := checkEnum("sigout range", volts, SigoutRanges); err != nil {
		return err
	}
	return d.session.SetDouble(d.sigoutPath("range"), volts)
}

// SigoutOffset returns the signal output DC offset in volts.
func (d *Driver) SigoutOffset() (float64, error) {
	return d.session.GetDouble(d.sigoutPath("offset"))
}

// SetSigoutOffset sets the signal output DC offset.
func (d *Driver) SetSigoutOffset(volts float64) error {
	if err := checkRange("sigout offset", volts, -MaxSigoutOffset, MaxSigoutOffset); err != nil {
		return err
	}
	return d.session.SetDouble(d.sigoutPath("offset"), volts)
}

// MixerAmplitude returns the amplitude of a signal output mixer channel.
func (d *Driver) MixerAmplitude(channel int) (float64, error) {
	return d.session.GetDouble(d.sigoutPath(fmt.Sprintf("amplitudes/%d", channel)))
}

// SetMixerAmplitude sets a mixer channel amplitude, relative to the output
// range.
func (d *Driver) SetMixerAmplitude(channel int, amp float64) error {
	if err := checkRange("mixer amplitude", amp, -1, 1); err != nil {
		return err
	}
	return d.session.SetDouble(d.sigoutPath(fmt.Sprintf("amplitudes/%d", channel)), amp)
}

// MixerEnable returns the enable mode of a mixer channel.
func (d *Driver) MixerEnable(channel int) (int, error) {
	v, err := d.session.GetInt(d.sigoutPath(fmt.Sprintf("enables/%d", channel)))
	return int(v), err
}

// SetMixerEnable sets the enable mode (0-3) of a mixer channel.
func (d *Driver) SetMixerEnable(channel, mode int) error {
	if mode < 0 || mode > 3 {
		return fmt.Errorf("%w: mixer enable %d not in [0, 3]", ErrOutOfRange, mode)
	}
	return d.session.SetInt(d.sigoutPath(fmt.Sprintf("enables/%d", channel)), int64(mode))
}

// AuxScale returns the scale applied to a mapped readout's aux output.
func (d *Driver) AuxScale(out Output) (float64, error) {
	idx, err := d.auxIndex(out)
	if err != nil {
		return 0, err
	}
	return d.session.GetDouble(d.auxPath(idx, "scale"))
}

// SetAuxScale sets the scale (V per unit) of a mapped readout's aux output.
func (d *Driver) SetAuxScale(out Output, scale float64) error {
	idx, err := d.auxIndex(out)
	if err != nil {
		return err
	}
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: aux scale %v", ErrOutOfRange, scale)
	}
	return d.session.SetDouble(d.auxPath(idx, "scale"), scale)
}

// AuxOffset returns the offset of a mapped readout's aux output.
func (d *Driver) AuxOffset(out Output) (float64, error) {
	idx, err := d.auxIndex(out)
	if err != nil {
		return 0, err
	}
	return d.session.GetDouble(d.auxPath(idx, "offset"))
}

// SetAuxOffset sets the offset of a mapped readout's aux output.
func (d *Driver) SetAuxOffset(out Output, volts float64) error {
	idx, err := d.auxIndex(out)
	if err != nil {
		return err
	}
	if err := checkRange("aux offset", volts, -MaxAuxOffset, MaxAuxOffset); err != nil {
		return err
	}
	return d.session.SetDouble(d.auxPath(idx, "offset"), volts)
}

// AuxOutputSelect reads back what an aux output is routed to.
func (d *Driver) AuxOutputSelect(idx int) (Output, error) {
	v, err := d.session.GetInt(d.auxPath(idx, "outputselect"))
	if err != nil {
		return 0, err
	}
	return Output(v), nil
}

func (d *Driver) auxIndex(out Output) (int, error) {
	idx, ok := d.auxouts[out]
	if !ok {
		return 0, fmt.Errorf("%w: no aux output mapped to %s", ErrInvalidConfig, out)
	}
	return idx, nil
}

// Sample reads one demodulator sample.
func (d *Driver) Sample() (Sample, error) {
	return d.session.GetSample(d.demodPath("sample"))
}

// Demodulate returns X and Y from one demodulator sample. Aux output
// routing is not consulted.
func (d *Driver) Demodulate() (x, y float64, err error) {
	s, err := d.Sample()
	if err != nil {
		return 0, 0, err
	}
	return s.X, s.Y, nil
}

// Readout returns X, Y or R in volts, or Theta in degrees. A readout routed
// to an aux output is read from that output's value; otherwise it is
// computed from a demodulator sample.
func (d *Driver) Readout(out Output) (float64, error) {
	if idx, ok := d.auxouts[out]; ok {
		return d.session.GetDouble(d.auxPath(idx, "value"))
	}

	s, err := d.Sample()
	if err != nil {
		return 0, err
	}
	switch out {
	case OutputX:
		return s.X, nil
	case OutputY:
		return s.Y, nil
	case OutputR:
		return math.Hypot(s.X, s.Y), nil
	case OutputTheta:
		return math.Atan2(s.Y, s.X) * 180 / math.Pi, nil
	default:
		return 0, fmt.Errorf("%w: %s is not a readout", ErrInvalidConfig, out)
	}
}
