package keithley2182a

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Transport carries SCPI commands to the instrument. Commands and replies
// carry no terminator.
type Transport interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
}

// Mode is the measurement function.
type Mode string

// Measurement functions, as sent to SENS:FUNC.
const (
	ModeVoltage     Mode = "VOLT:DC"
	ModeTemperature Mode = "TEMP"
)

// TemperatureUnit is the unit temperature readings are reported in.
type TemperatureUnit string

// Temperature units, as sent to UNIT:TEMP.
const (
	Kelvin     TemperatureUnit = "K"
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

// TriggerSource selects what starts a measurement.
type TriggerSource string

// Trigger sources, as sent to TRIG:SOUR.
const (
	TriggerImmediate TriggerSource = "IMM"
	TriggerExternal  TriggerSource = "EXT"
	TriggerTimer     TriggerSource = "TIM"
	TriggerManual    TriggerSource = "MAN"
	TriggerBus       TriggerSource = "BUS"
)

// Speed is a preset trading noise for reading rate.
type Speed string

// Speed presets.
const (
	SpeedFast   Speed = "fast"
	SpeedMedium Speed = "medium"
	SpeedSlow   Speed = "slow"
)

type speedPreset struct {
	nplc          float64
	analogFilter  bool
	digitalFilter bool
}

var speedPresets = map[Speed]speedPreset{
	SpeedFast:   {nplc: 0.1},
	SpeedMedium: {nplc: 1},
	SpeedSlow:   {nplc: 10, analogFilter: true, digitalFilter: true},
}

// Instrument limits.
const (
	MinNPLC          = 0.01
	MaxNPLC          = 10.0
	MinRange         = 1e-6
	MaxRange         = 120.0
	MinAperture      = 0.0002
	MaxAperture      = 0.2
	MinAverageCount  = 1
	MaxAverageCount  = 100
	MaxTriggerDelay  = 999999.999
	LowNoiseAverages = 10
)

var (
	// VoltageRanges are the fixed DC voltage ranges in volts.
	VoltageRanges = []float64{0.1, 1, 10, 100}

	// LineFrequencies are the accepted power line frequencies in Hz.
	LineFrequencies = []float64{50, 60}
)

// Driver is a 2182A reached through a Transport. It is safe for concurrent
// use; commands are serialised.
type Driver struct {
	mu    sync.Mutex
	t     Transport
	armed bool
}

// New returns a driver over t.
func New(t Transport) (*Driver, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrTransport)
	}
	return &Driver{t: t}, nil
}

func checkRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fmt.Errorf("%w: %s %v not in [%g, %g]", ErrOutOfRange, name, v, lo, hi)
	}
	return nil
}

func (d *Driver) write(cmd string) error {
	if err := d.t.Write(cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, cmd, err)
	}
	return nil
}

func (d *Driver) query(cmd string) (string, error) {
	reply, err := d.t.Query(cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTransport, cmd, err)
	}
	return strings.TrimSpace(reply), nil
}

func (d *Driver) queryFloat(cmd string) (float64, error) {
	reply, err := d.query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s returned %q", ErrBadResponse, cmd, reply)
	}
	return v, nil
}

// queryBool accepts both 1/0 and ON/OFF replies.
func (d *Driver) queryBool(cmd string) (bool, error) {
	reply, err := d.query(cmd)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(reply) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s returned %q", ErrBadResponse, cmd, reply)
}

// queryString strips surrounding quotes and upper-cases the reply.
func (d *Driver) queryString(cmd string) (string, error) {
	reply, err := d.query(cmd)
	if err != nil {
		return "", err
	}
	if len(reply) >= 2 && (reply[0] == '"' || reply[0] == '\'') && reply[len(reply)-1] == reply[0] {
		reply = reply[1 : len(reply)-1]
	}
	return strings.ToUpper(reply), nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// Mode returns the measurement function.
func (d *Driver) Mode() (Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode()
}

func (d *Driver) mode() (Mode, error) {
	reply, err := d.queryString("SENS:FUNC?")
	if err != nil {
		return "", err
	}
	switch Mode(reply) {
	case ModeVoltage, ModeTemperature:
		return Mode(reply), nil
	}
	return "", fmt.Errorf("%w: SENS:FUNC? returned %q", ErrBadResponse, reply)
}

// SetMode selects the measurement function.
func (d *Driver) SetMode(m Mode) error {
	if m != ModeVoltage && m != ModeTemperature {
		return fmt.Errorf("%w: mode %q", ErrOutOfRange, m)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SENS:FUNC %q", string(m)))
}

// NPLC returns the integration time in power line cycles.
func (d *Driver) NPLC() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("SENS:NPLC?")
}

// SetNPLC sets the integration time in power line cycles.
func (d *Driver) SetNPLC(n float64) error {
	if err := checkRange("nplc", n, MinNPLC, MaxNPLC); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SENS:NPLC %g", n))
}

// Range returns the measurement range in volts.
func (d *Driver) Range() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("SENS:RANG?")
}

// SetRange sets a fixed measurement range. The instrument picks the
// smallest range that holds v.
func (d *Driver) SetRange(v float64) error {
	if err := checkRange("range", v, MinRange, MaxRange); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SENS:RANG %g", v))
}

// AutoRange reports whether auto ranging is on.
func (d *Driver) AutoRange() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryBool("SENS:RANG:AUTO?")
}

// SetAutoRange turns auto ranging on or off.
func (d *Driver) SetAutoRange(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SENS:RANG:AUTO %d", boolInt(on)))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LineFrequency returns the power line frequency in Hz.
func (d *Driver) LineFrequency() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("SYST:LFR?")
}

// SetLineFrequency sets the power line frequency used for NPLC timing.
func (d *Driver) SetLineFrequency(hz float64) error {
	if !slices.Contains(LineFrequencies, hz) {
		return fmt.Errorf("%w: line frequency %v not one of %v", ErrOutOfRange, hz, LineFrequencies)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SYST:LFR %g", hz))
}

// Aperture returns the integration time in seconds.
func (d *Driver) Aperture() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("SENS:APER?")
}

// SetAperture sets the integration time in seconds, as an alternative to
// SetNPLC.
func (d *Driver) SetAperture(s float64) error {
	if err := checkRange("aperture", s, MinAperture, MaxAperture); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SENS:APER %g", s))
}

// TemperatureUnits returns the unit temperature readings use.
func (d *Driver) TemperatureUnits() (TemperatureUnit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperatureUnits()
}

func (d *Driver) temperatureUnits() (TemperatureUnit, error) {
	reply, err := d.queryString("UNIT:TEMP?")
	if err != nil {
		return "", err
	}
	switch u := TemperatureUnit(reply); u {
	case Kelvin, Celsius, Fahrenheit:
		return u, nil
	}
	return "", fmt.Errorf("%w: UNIT:TEMP? returned %q", ErrBadResponse, reply)
}

// SetTemperatureUnits selects the temperature unit.
func (d *Driver) SetTemperatureUnits(u TemperatureUnit) error {
	if u != Kelvin && u != Celsius && u != Fahrenheit {
		return fmt.Errorf("%w: temperature unit %q", ErrOutOfRange, u)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("UNIT:TEMP " + string(u))
}

// Averaging reports whether the averaging filter is on.
func (d *Driver) Averaging() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryBool("SENS:AVER?")
}

// SetAveraging turns the averaging filter on or off.
func (d *Driver) SetAveraging(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("SENS:AVER " + onOff(on))
}

// AveragingCount returns the number of readings averaged.
func (d *Driver) AveragingCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.averagingCount()
}

func (d *Driver) averagingCount() (int, error) {
	reply, err := d.query("SENS:AVER:COUN?")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(reply)
	if err != nil {
		// Some firmware answers in float notation.
		f, ferr := strconv.ParseFloat(reply, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("%w: SENS:AVER:COUN? returned %q", ErrBadResponse, reply)
		}
		n = int(f)
	}
	return n, nil
}

// SetAveragingCount sets the number of readings averaged.
func (d *Driver) SetAveragingCount(n int) error {
	if n < MinAverageCount || n > MaxAverageCount {
		return fmt.Errorf("%w: averaging count %d not in [%d, %d]", ErrOutOfRange, n, MinAverageCount, MaxAverageCount)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("SENS:AVER:COUN %d", n))
}

// TriggerSource returns the trigger source.
func (d *Driver) TriggerSource() (TriggerSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggerSource()
}

func (d *Driver) triggerSource() (TriggerSource, error) {
	reply, err := d.queryString("TRIG:SOUR?")
	if err != nil {
		return "", err
	}
	src := TriggerSource(reply)
	if !validTrigger(src) {
		return "", fmt.Errorf("%w: TRIG:SOUR? returned %q", ErrBadResponse, reply)
	}
	return src, nil
}

func validTrigger(src TriggerSource) bool {
	switch src {
	case TriggerImmediate, TriggerExternal, TriggerTimer, TriggerManual, TriggerBus:
		return true
	}
	return false
}

// SetTriggerSource selects the trigger source.
func (d *Driver) SetTriggerSource(src TriggerSource) error {
	if !validTrigger(src) {
		return fmt.Errorf("%w: trigger source %q", ErrOutOfRange, src)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("TRIG:SOUR " + string(src))
}

// TriggerDelay returns the trigger delay in seconds.
func (d *Driver) TriggerDelay() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("TRIG:DEL?")
}

// SetTriggerDelay sets the trigger delay in seconds.
func (d *Driver) SetTriggerDelay(s float64) error {
	if err := checkRange("trigger delay", s, 0, MaxTriggerDelay); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fmt.Sprintf("TRIG:DEL %g", s))
}

// SetDisplay turns the front panel display on or off.
func (d *Driver) SetDisplay(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("DISP:ENAB " + onOff(on))
}

// SetAutoImpedance turns automatic input impedance selection on or off.
func (d *Driver) SetAutoImpedance(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("SENS:VOLT:DC:IMP:AUTO " + onOff(on))
}

// AnalogFilter reports whether the analog low-pass filter is on.
func (d *Driver) AnalogFilter() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryBool("SENS:VOLT:DC:LPAS?")
}

// SetAnalogFilter turns the analog low-pass filter on or off.
func (d *Driver) SetAnalogFilter(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("SENS:VOLT:DC:LPAS " + onOff(on))
}

// DigitalFilter reports whether the digital filter is on.
func (d *Driver) DigitalFilter() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryBool("SENS:VOLT:DC:DFIL?")
}

// SetDigitalFilter turns the digital filter on or off.
func (d *Driver) SetDigitalFilter(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("SENS:VOLT:DC:DFIL " + onOff(on))
}

// AutoZero reports whether auto-zero is on.
func (d *Driver) AutoZero() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryBool("SENS:VOLT:DC:AZER?")
}

// SetAutoZero turns auto-zero on or off.
func (d *Driver) SetAutoZero(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("SENS:VOLT:DC:AZER " + onOff(on))
}

// MeasureVoltage configures DC voltage and takes one reading.
func (d *Driver) MeasureVoltage() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("MEAS:VOLT:DC?")
}

// MeasureTemperature configures temperature and takes one reading in the
// selected unit.
func (d *Driver) MeasureTemperature() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("MEAS:TEMP?")
}

// Fetch returns the last reading without triggering a new one.
func (d *Driver) Fetch() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("FETC?")
}

// Read triggers a measurement and returns its reading.
func (d *Driver) Read() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFloat("READ?")
}

// Initiate moves the instrument from idle to waiting for a trigger.
func (d *Driver) Initiate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initiate()
}

func (d *Driver) initiate() error {
	if err := d.write("INIT"); err != nil {
		return err
	}
	d.armed = true
	return nil
}

// Abort returns the instrument to idle.
func (d *Driver) Abort() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write("ABOR"); err != nil {
		return err
	}
	d.armed = false
	return nil
}

// Trigger sends a bus trigger, initiating first if the instrument is idle.
func (d *Driver) Trigger() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed {
		if err := d.initiate(); err != nil {
			return err
		}
	}
	return d.write("*TRG")
}

// Reset restores power-on defaults and waits for the instrument to finish.
func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write("*RST"); err != nil {
		return err
	}
	d.armed = false
	_, err := d.query("*OPC?")
	return err
}

// SelfTest runs the built-in self test and reports whether it passed.
func (d *Driver) SelfTest() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reply, err := d.query("*TST?")
	if err != nil {
		return false, err
	}
	code, err := strconv.Atoi(reply)
	if err != nil {
		return false, fmt.Errorf("%w: *TST? returned %q", ErrBadResponse, reply)
	}
	return code == 0, nil
}

// InstrumentError is one entry of the instrument's error queue. Code 0
// means the queue is empty.
type InstrumentError struct {
	Code    int
	Message string
}

// NextError pops the oldest entry of the error queue.
func (d *Driver) NextError() (InstrumentError, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reply, err := d.query("SYST:ERR?")
	if err != nil {
		return InstrumentError{}, err
	}
	codeStr, msg, _ := strings.Cut(reply, ",")
	code, err := strconv.Atoi(strings.TrimSpace(codeStr))
	if err != nil {
		return InstrumentError{}, fmt.Errorf("%w: SYST:ERR? returned %q", ErrBadResponse, reply)
	}
	return InstrumentError{Code: code, Message: strings.Trim(strings.TrimSpace(msg), `"`)}, nil
}

// ClearErrors empties the error queue.
func (d *Driver) ClearErrors() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write("*CLS")
}

// VoltageConfig is a complete DC voltage setup.
type VoltageConfig struct {
	// Range is used only when AutoRange is false; zero keeps the current
	// range.
	Range     float64
	AutoRange bool
	NPLC      float64
	AutoZero  bool
}

// ConfigureVoltage validates cfg and applies it. An invalid field leaves
// the instrument untouched.
func (d *Driver) ConfigureVoltage(cfg VoltageConfig) error {
	if !cfg.AutoRange && cfg.Range != 0 {
		if err := checkRange("range", cfg.Range, MinRange, MaxRange); err != nil {
			return err
		}
	}
	if err := checkRange("nplc", cfg.NPLC, MinNPLC, MaxNPLC); err != nil {
		return err
	}

	if err := d.SetMode(ModeVoltage); err != nil {
		return err
	}
	if err := d.SetAutoRange(cfg.AutoRange); err != nil {
		return err
	}
	if !cfg.AutoRange && cfg.Range != 0 {
		if err := d.SetRange(cfg.Range); err != nil {
			return err
		}
	}
	if err := d.SetNPLC(cfg.NPLC); err != nil {
		return err
	}
	return d.SetAutoZero(cfg.AutoZero)
}

// ConfigureTemperature validates and applies a temperature setup.
func (d *Driver) ConfigureTemperature(u TemperatureUnit, nplc float64) error {
	if u != Kelvin && u != Celsius && u != Fahrenheit {
		return fmt.Errorf("%w: temperature unit %q", ErrOutOfRange, u)
	}
	if err := checkRange("nplc", nplc, MinNPLC, MaxNPLC); err != nil {
		return err
	}
	if err := d.SetMode(ModeTemperature); err != nil {
		return err
	}
	if err := d.SetTemperatureUnits(u); err != nil {
		return err
	}
	return d.SetNPLC(nplc)
}

// SetSpeed applies a speed preset: NPLC plus both filters.
func (d *Driver) SetSpeed(s Speed) error {
	p, ok := speedPresets[s]
	if !ok {
		return fmt.Errorf("%w: speed %q", ErrOutOfRange, s)
	}
	if err := d.SetNPLC(p.nplc); err != nil {
		return err
	}
	if err := d.SetAnalogFilter(p.analogFilter); err != nil {
		return err
	}
	return d.SetDigitalFilter(p.digitalFilter)
}

// OptimizeForLowNoise selects the slow preset with auto-zero, averaging
// over LowNoiseAverages readings and automatic input impedance.
func (d *Driver) OptimizeForLowNoise() error {
	steps := []func() error{
		func() error { return d.SetSpeed(SpeedSlow) },
		func() error { return d.SetAutoZero(true) },
		func() error { return d.SetAveraging(true) },
		func() error { return d.SetAveragingCount(LowNoiseAverages) },
		func() error { return d.SetAutoImpedance(true) },
	}
	return runSteps(steps)
}

// OptimizeForSpeed selects the fast preset with auto-zero and averaging off.
func (d *Driver) OptimizeForSpeed() error {
	steps := []func() error{
		func() error { return d.SetSpeed(SpeedFast) },
		func() error { return d.SetAutoZero(false) },
		func() error { return d.SetAveraging(false) },
	}
	return runSteps(steps)
}

func runSteps(steps []func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Status is a snapshot of the measurement configuration. Fields that do
// not apply to the current mode are left zero.
type Status struct {
	Mode             Mode
	Range            float64
	AutoRange        bool
	NPLC             float64
	Averaging        bool
	AveragingCount   int // only read while averaging is on
	TriggerSource    TriggerSource
	TriggerDelay     float64
	TemperatureUnits TemperatureUnit // temperature mode only
	AutoZero         bool            // voltage mode only
}

// Status reads the measurement configuration.
func (d *Driver) Status() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		st  Status
		err error
	)
	if st.Mode, err = d.mode(); err != nil {
		return Status{}, err
	}
	if st.Range, err = d.queryFloat("SENS:RANG?"); err != nil {
		return Status{}, err
	}
	if st.AutoRange, err = d.queryBool("SENS:RANG:AUTO?"); err != nil {
		return Status{}, err
	}
	if st.NPLC, err = d.queryFloat("SENS:NPLC?"); err != nil {
		return Status{}, err
	}
	if st.Averaging, err = d.queryBool("SENS:AVER?"); err != nil {
		return Status{}, err
	}
	if st.Averaging {
		if st.AveragingCount, err = d.averagingCount(); err != nil {
			return Status{}, err
		}
	}
	if st.TriggerSource, err = d.triggerSource(); err != nil {
		return Status{}, err
	}
	if st.TriggerDelay, err = d.queryFloat("TRIG:DEL?"); err != nil {
		return Status{}, err
	}
	switch st.Mode {
	case ModeTemperature:
		st.TemperatureUnits, err = d.temperatureUnits()
	case ModeVoltage:
		st.AutoZero, err = d.queryBool("SENS:VOLT:DC:AZER?")
	}
	if err != nil {
		return Status{}, err
	}
	return st, nil
}
