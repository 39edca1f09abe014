package chain

// Source is an excitation output with a settable level and enable switch.
// The level is in volts; the amplitude convention is recorded in
// AdvisoryConfig and not interpreted here.
type Source interface {
	Level() (float64, error)
	SetLevel(volts float64) error
	OutputEnabled() (bool, error)
	SetOutputEnabled(on bool) error
}

// FrequencyController is implemented by nodes with a settable reference
// frequency. A Source that also implements it has its frequency kept in
// step with the lock-in.
type FrequencyController interface {
	Frequency() (float64, error)
	SetFrequency(hz float64) error
}

// Converter is a voltage-to-current transformer with a manually entered
// transconductance magnitude (A/V, never negative) and inversion flag.
type Converter interface {
	Transconductance() (float64, error)
	Inverted() (bool, error)
}

// Amplifier is a voltage preamplifier with a manually entered gain
// magnitude (V/V, never negative) and inversion flag.
type Amplifier interface {
	Gain() (float64, error)
	Inverted() (bool, error)
}

// LockIn is a single demodulator. X, Y and R are in volts, Theta in degrees.
type LockIn interface {
	FrequencyController

	TimeConstant() (float64, error)
	SetTimeConstant(seconds float64) error
	Sensitivity() (float64, error)
	SetSensitivity(volts float64) error
	InputRange() (float64, error)
	SetInputRange(volts float64) error

	X() (float64, error)
	Y() (float64, error)
	R() (float64, error)
	Theta() (float64, error)
}

// Demodulator is implemented by lock-ins that can return X and Y from a
// single demodulator sample. When the LockIn implements it, the sample
// voltage and Readback take every readout from one sample.
type Demodulator interface {
	Demodulate() (x, y float64, err error)
}

// Nodes are the four collaborators an Engine is built from.
type Nodes struct {
	Source    Source
	Converter Converter
	Amplifier Amplifier
	LockIn    LockIn
}
