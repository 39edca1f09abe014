package chain

import "fmt"

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// GuardMode selects what the overload guard does when it cannot read the
// amplifier gain or the lock-in input range.
type GuardMode int

const (
	// GuardFailOpen skips the guard and lets the setpoint proceed.
	GuardFailOpen GuardMode = iota

	// GuardFailClosed refuses the setpoint with ErrGuardUnavailable.
	GuardFailClosed
)

// Polarity selects how SetCurrentTarget writes the source level.
type Polarity int

const (
	// PolaritySigned writes V = I/gm_eff with its sign, so the commanded
	// current round-trips exactly for either inversion state.
	PolaritySigned Polarity = iota

	// PolarityMagnitude writes |V| only. CommandedCurrent then reports the
	// current magnitude |gm_eff| * level.
	PolarityMagnitude
)

// String returns the configuration name of the polarity.
func (p Polarity) String() string {
	switch p {
	case PolaritySigned:
		return "signed"
	case PolarityMagnitude:
		return "magnitude"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// ParsePolarity maps a configuration name to a Polarity.
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "signed", "":
		return PolaritySigned, nil
	case "magnitude":
		return PolarityMagnitude, nil
	default:
		return 0, fmt.Errorf("chain: unknown polarity %q", s)
	}
}

// Options configure an Engine. The zero value is usable: advisory defaults,
// fail-open guard, signed polarity, no logging.
type Options struct {
	Advisory  AdvisoryConfig
	GuardMode GuardMode
	Polarity  Polarity
	Logger    Logger

	// OnAdvisory receives every overload advisory. It runs synchronously
	// inside SetCurrentTarget and must not call back into the engine.
	OnAdvisory func(Advisory)
}

// Engine composes a source, converter, amplifier and lock-in into one
// virtual instrument. See the package documentation for its state and
// concurrency rules.
type Engine struct {
	src     Source
	srcFreq FrequencyController // nil when the source has no frequency control
	conv    Converter
	amp     Amplifier
	lockin  LockIn
	demod   Demodulator // nil when the lock-in has no single-sample read

	advisory   AdvisoryConfig
	guardMode  GuardMode
	polarity   Polarity
	logger     Logger
	onAdvisory func(Advisory)
}

// New builds an Engine from its four nodes.
//
// Whether the source takes part in frequency coupling is decided here,
// once, by checking whether it implements FrequencyController. The
// lock-in's Demodulator capability is detected the same way.
//
// Returns ErrMissingNode if any node is nil, or ErrInvalidAdvisoryConfig if
// the advisory options are out of range.
func New(nodes Nodes, opts Options) (*Engine, error) {
	switch {
	case nodes.Source == nil:
		return nil, fmt.Errorf("%w: source", ErrMissingNode)
	case nodes.Converter == nil:
		return nil, fmt.Errorf("%w: converter", ErrMissingNode)
	case nodes.Amplifier == nil:
		return nil, fmt.Errorf("%w: amplifier", ErrMissingNode)
	case nodes.LockIn == nil:
		return nil, fmt.Errorf("%w: lockin", ErrMissingNode)
	}

	advisory := opts.Advisory.clone()
	if advisory.Margin == 0 {
		advisory.Margin = DefaultMargin
	}
	if advisory.Convention == "" {
		advisory.Convention = ConventionRMS
	}
	if err := advisory.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	e := &Engine{
		src:        nodes.Source,
		conv:       nodes.Converter,
		amp:        nodes.Amplifier,
		lockin:     nodes.LockIn,
		advisory:   advisory,
		guardMode:  opts.GuardMode,
		polarity:   opts.Polarity,
		logger:     logger,
		onAdvisory: opts.OnAdvisory,
	}
	if fc, ok := nodes.Source.(FrequencyController); ok {
		e.srcFreq = fc
	}
	if d, ok := nodes.LockIn.(Demodulator); ok {
		e.demod = d
	}
	return e, nil
}

// HasSourceFrequencyControl reports whether SetReferenceFrequency also
// writes the source frequency.
func (e *Engine) HasSourceFrequencyControl() bool {
	return e.srcFreq != nil
}

// Polarity returns the configured excitation polarity.
func (e *Engine) Polarity() Polarity {
	return e.polarity
}

// GuardMode returns the configured guard failure mode.
func (e *Engine) GuardMode() GuardMode {
	return e.guardMode
}

// AdvisoryConfig returns a copy of the advisory scalars.
func (e *Engine) AdvisoryConfig() AdvisoryConfig {
	return e.advisory.clone()
}

// SetAdvisoryConfig replaces the advisory scalars after validating them.
func (e *Engine) SetAdvisoryConfig(c AdvisoryConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.advisory = c.clone()
	return nil
}
